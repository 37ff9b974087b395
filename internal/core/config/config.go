package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}

type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

type Log struct {
	Level  string
	JSON   bool
	Rotate LogRotate
}

type LogRotate struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type JWT struct {
	Secret     string
	Issuer     string
	SessionTTL time.Duration
	BcryptCost int
}

// KV selects the shared medium: memory (single process), redis or sql.
// Broadcast picks the cross-tab channel: "redis" or "local". Empty means
// redis for the redis and sql drivers, whose medium other processes share,
// and local for memory. local is refused on the shared drivers.
type KV struct {
	Driver    string
	Prefix    string
	Channel   string
	Broadcast string
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	LogLevel           string
}

type Polling struct {
	Notifications time.Duration
	Stats         time.Duration
	QuizTick      time.Duration
}

type Rewards struct {
	ParticipationBase int     `mapstructure:"participation_base"`
	TierLowMinPct     float64 `mapstructure:"tier_low_min_pct"`
	TierMidMinPct     float64 `mapstructure:"tier_mid_min_pct"`
	TierHighMinPct    float64 `mapstructure:"tier_high_min_pct"`
	TierLowBonus      int     `mapstructure:"tier_low_bonus"`
	TierMidBonus      int     `mapstructure:"tier_mid_bonus"`
	TierHighBonus     int     `mapstructure:"tier_high_bonus"`
}

type Quiz struct {
	BankPath         string
	DefaultTimeLimit time.Duration
	Rewards          Rewards
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	KV      KV
	Redis   Redis `mapstructure:"redis"`
	DB      DB
	Polling Polling
	Quiz    Quiz
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "animehub")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 10)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("jwt.issuer", "animehub")
	v.SetDefault("jwt.sessionTTL", 7*24*time.Hour)
	v.SetDefault("jwt.bcryptCost", 10)

	v.SetDefault("kv.driver", "memory")
	v.SetDefault("kv.prefix", "animehub:")
	v.SetDefault("kv.channel", "animehub:changes")
	v.SetDefault("kv.broadcast", "")

	v.SetDefault("redis.addr", "127.0.0.1:6379")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "animehub.db")
	v.SetDefault("db.maxOpenConns", 10)
	v.SetDefault("db.maxIdleConns", 5)
	v.SetDefault("db.connMaxLifetimeMin", 30)
	v.SetDefault("db.logLevel", "warn")

	v.SetDefault("polling.notifications", 30*time.Second)
	v.SetDefault("polling.stats", 5*time.Minute)
	v.SetDefault("polling.quizTick", time.Second)

	v.SetDefault("quiz.defaultTimeLimit", 5*time.Minute)
	v.SetDefault("quiz.rewards.participation_base", 10)
	v.SetDefault("quiz.rewards.tier_low_min_pct", 40)
	v.SetDefault("quiz.rewards.tier_mid_min_pct", 60)
	v.SetDefault("quiz.rewards.tier_high_min_pct", 80)
	v.SetDefault("quiz.rewards.tier_low_bonus", 20)
	v.SetDefault("quiz.rewards.tier_mid_bonus", 50)
	v.SetDefault("quiz.rewards.tier_high_bonus", 100)
}

// Load reads path (or CONFIG_PATH, or ./configs/config.local.yaml). A missing
// file leaves the defaults plus APP_* environment overrides in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
