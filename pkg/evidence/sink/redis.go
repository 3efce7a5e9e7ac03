package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"nanogov/governor/pkg/evidence"
)

// Config contains configuration for the Redis stream sink.
type Config struct {
	// Addr is the Redis host:port.
	Addr string

	// Password authenticates to Redis. Empty disables AUTH.
	Password string

	// DB selects the logical database.
	DB int

	// Stream is the stream key decisions are appended to.
	// Default: "governor:decisions"
	Stream string

	// MaxLen trims the stream to roughly this many entries. 0 keeps
	// everything.
	// Default: 10000
	MaxLen int64

	// DialTimeout bounds the initial connection check.
	// Default: 2 seconds
	DialTimeout time.Duration
}

// DefaultConfig returns the default sink configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "localhost:6379",
		Stream:      "governor:decisions",
		MaxLen:      10000,
		DialTimeout: 2 * time.Second,
	}
}

// RedisSink mirrors evidence records onto a Redis stream so external
// collectors can consume decisions without access to the archive. It
// implements recorder.Forwarder.
type RedisSink struct {
	client *redis.Client
	config *Config
	logger *slog.Logger
}

// NewRedisSink connects to Redis and verifies the connection with a ping.
func NewRedisSink(ctx context.Context, config *Config) (*RedisSink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	timeout := config.DialTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().DialTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis sink: ping %s: %w", config.Addr, err)
	}
	return NewRedisSinkFromClient(client, config), nil
}

// NewRedisSinkFromClient wraps an existing client. The sink takes
// ownership and closes it on Close.
func NewRedisSinkFromClient(client *redis.Client, config *Config) *RedisSink {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Stream == "" {
		config.Stream = DefaultConfig().Stream
	}
	s := &RedisSink{
		client: client,
		config: config,
		logger: slog.Default().With("component", "evidence.sink.redis"),
	}
	s.logger.Info("redis decision sink ready",
		"addr", client.Options().Addr,
		"stream", config.Stream,
		"max_len", config.MaxLen,
	)
	return s
}

// Forward appends record to the stream. Summary fields are stored as
// separate stream fields for cheap filtering; the full record is carried
// as JSON in the "record" field.
func (s *RedisSink) Forward(ctx context.Context, record *evidence.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis sink: encode record %s: %w", record.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: s.config.Stream,
		ID:     "*",
		Values: map[string]any{
			"id":           record.ID,
			"node_id":      record.NodeID,
			"checkpoint":   record.Checkpoint,
			"verdict":      record.Verdict,
			"verdict_code": strconv.Itoa(record.VerdictCode),
			"policy_id":    record.PolicyID,
			"rule_id":      record.RuleID,
			"record":       string(data),
		},
	}
	if s.config.MaxLen > 0 {
		args.MaxLen = s.config.MaxLen
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis sink: xadd %s: %w", s.config.Stream, err)
	}
	return nil
}

// Recent returns up to n records from the stream, newest first.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]*evidence.Record, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.config.Stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis sink: xrevrange %s: %w", s.config.Stream, err)
	}

	records := make([]*evidence.Record, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["record"].(string)
		if !ok {
			s.logger.Warn("stream entry without record field", "entry_id", msg.ID)
			continue
		}
		var record evidence.Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("redis sink: decode entry %s: %w", msg.ID, err)
		}
		records = append(records, &record)
	}
	return records, nil
}

// Len returns the number of entries in the stream.
func (s *RedisSink) Len(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, s.config.Stream).Result()
}

// Ping checks the connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
