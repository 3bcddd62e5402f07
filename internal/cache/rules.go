package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medisync/internal/availability"
)

const keyPrefix = "medisync:rules:"

// RuleCache keeps each doctor's weekly rules in redis. A nil *RuleCache is a
// valid cache that never hits.
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRuleCache(client *redis.Client, ttl time.Duration) *RuleCache {
	if client == nil {
		return nil
	}
	return &RuleCache{client: client, ttl: ttl}
}

// Connect parses a redis URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func key(doctorID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, doctorID)
}

// Get returns the cached rules and whether they were present.
func (c *RuleCache) Get(ctx context.Context, doctorID int64) ([]availability.WeeklyRule, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, key(doctorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get rules: %w", err)
	}
	var rules []availability.WeeklyRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, false, fmt.Errorf("cache: decode rules: %w", err)
	}
	return rules, true, nil
}

func (c *RuleCache) Set(ctx context.Context, doctorID int64, rules []availability.WeeklyRule) error {
	if c == nil {
		return nil
	}
	if rules == nil {
		rules = []availability.WeeklyRule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("cache: encode rules: %w", err)
	}
	if err := c.client.Set(ctx, key(doctorID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set rules: %w", err)
	}
	return nil
}

func (c *RuleCache) Invalidate(ctx context.Context, doctorID int64) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, key(doctorID)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate rules: %w", err)
	}
	return nil
}

func (c *RuleCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
