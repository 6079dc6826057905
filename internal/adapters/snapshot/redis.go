// Package snapshot writes the latest fused scene to Redis for downstream consumers.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/LdDl/mot-fusion/mot"
)

// ErrPublish wraps every failed pipeline execution.
var ErrPublish = errors.New("snapshot publish failed")

const defaultHistorySize = 1000

// Config describes the Redis connection and key layout.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// Keys lists the Redis keys written on every snapshot.
type Keys struct {
	Latest        string
	ThreatLevel   string
	ThreatHistory string
}

// KeysFor returns the key layout under prefix.
func KeysFor(prefix string) Keys {
	return Keys{
		Latest:        fmt.Sprintf("%s:latest", prefix),
		ThreatLevel:   fmt.Sprintf("%s:threat_level", prefix),
		ThreatHistory: fmt.Sprintf("%s:threat_history", prefix),
	}
}

// Publisher stores fused snapshots in Redis.
type Publisher struct {
	client      *redis.Client
	keys        Keys
	timeout     time.Duration
	historySize int64
}

// NewPublisher creates a publisher. The connection is lazy; use Ping to check it.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Prefix == "" {
		cfg.Prefix = "fusion"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &Publisher{
		client:      client,
		keys:        KeysFor(cfg.Prefix),
		timeout:     cfg.Timeout,
		historySize: defaultHistorySize,
	}
}

// Name identifies the publisher in logs and metrics.
func (p *Publisher) Name() string {
	return "redis"
}

// Keys returns the key layout used by the publisher.
func (p *Publisher) Keys() Keys {
	return p.keys
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

// Publish writes the snapshot, the current threat level and a threat history
// entry in one pipeline. History keeps the newest historySize entries.
func (p *Publisher) Publish(ctx context.Context, output mot.FusedOutput) error {
	payload, err := encodeSnapshot(output)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.keys.Latest, payload, 0)
	pipe.Set(ctx, p.keys.ThreatLevel, string(output.ThreatLevel), 0)
	pipe.ZAdd(ctx, p.keys.ThreatHistory, &redis.Z{
		Score:  historyScore(output.Timestamp),
		Member: historyMember(output),
	})
	pipe.ZRemRangeByRank(ctx, p.keys.ThreatHistory, 0, -p.historySize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func encodeSnapshot(output mot.FusedOutput) ([]byte, error) {
	return json.Marshal(output)
}

func historyScore(ts time.Time) float64 {
	return float64(ts.UnixMilli())
}

// historyMember is unique per snapshot, otherwise ZAdd would only move the score
// of an existing level.
func historyMember(output mot.FusedOutput) string {
	return fmt.Sprintf("%d:%s", output.Timestamp.UnixNano(), output.ThreatLevel)
}
