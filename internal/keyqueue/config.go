package keyqueue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config groups the queue tunables. Values come from environment variables
// with the prefix "NUTRITION_QUEUE_", e.g. NUTRITION_QUEUE_SHARDS=8.
type Config struct {
	Shards         int           `envconfig:"SHARDS"          default:"8"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"128"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"250ms"`
}

// LoadConfig populates Config from environment variables.
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("NUTRITION_QUEUE", &c)
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 250 * time.Millisecond
	}
	return c
}
