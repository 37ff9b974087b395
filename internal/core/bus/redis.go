package bus

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"animehub/internal/core/metrics"
)

// RedisChannel carries storage changes between processes sharing a Redis
// medium. Every process is one tab; own announcements are filtered by origin.
type RedisChannel struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	pubsub    *redis.PubSub
	listeners listeners
	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisChannel subscribes before returning so no change published after
// construction is missed.
func NewRedisChannel(ctx context.Context, rdb *redis.Client, channel string, log *zap.Logger) (*RedisChannel, error) {
	ps := rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	c := &RedisChannel{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
		pubsub:  ps,
		done:    make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func (c *RedisChannel) Origin() string { return c.origin }

func (c *RedisChannel) Announce(ctx context.Context, key string) error {
	b, err := json.Marshal(Change{Key: key, Origin: c.origin})
	if err != nil {
		return err
	}
	metrics.CrossTabEvents.WithLabelValues("out").Inc()
	return c.rdb.Publish(ctx, c.channel, b).Err()
}

func (c *RedisChannel) Listen(fn func(Change)) func() { return c.listeners.add(fn) }

func (c *RedisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pubsub.Close()
	})
	return err
}

func (c *RedisChannel) run() {
	ch := c.pubsub.Channel()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				c.log.Warn("crosstab: bad payload", zap.String("channel", c.channel), zap.Error(err))
				continue
			}
			if change.Origin == c.origin {
				continue
			}
			metrics.CrossTabEvents.WithLabelValues("in").Inc()
			c.listeners.dispatch(change)
		}
	}
}
