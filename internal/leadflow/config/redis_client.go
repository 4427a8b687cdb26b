package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates the journal's Redis client. It does not dial; the
// first command does.
func NewRedisClient(cfg JournalConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.Database,

		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  2 * time.Second,
	})
}
