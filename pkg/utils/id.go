package utils

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewID returns a globally unique, roughly time-sortable KSUID string.
func NewID() string {
	return ksuid.New().String()
}

// Snowflake produces strictly increasing ids within one node, used where
// append order matters (notification logs).
type Snowflake struct {
	once sync.Once
	node *snowflake.Node
	id   int64
}

func NewSnowflake(nodeID int64) *Snowflake {
	return &Snowflake{id: nodeID}
}

// Next falls back to a KSUID when the node id is out of range.
func (s *Snowflake) Next() string {
	s.once.Do(func() {
		s.node, _ = snowflake.NewNode(s.id)
	})
	if s.node == nil {
		return NewID()
	}
	return s.node.Generate().String()
}
