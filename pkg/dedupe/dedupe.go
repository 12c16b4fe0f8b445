// Package dedupe remembers Telegram update ids for a while so redelivered
// webhook updates are handled once.
package dedupe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store marks ids as seen. First reports true only for the first caller of an id
// within the TTL.
type Store interface {
	First(ctx context.Context, id int) (bool, error)
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	seen map[int]time.Time
}

// NewMemory returns a Memory store forgetting ids after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, seen: make(map[int]time.Time)}
}

func (m *Memory) First(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = now.Add(m.ttl)
	return true, nil
}

func (m *Memory) Close() error { return nil }

// Redis shares seen ids between bot replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TLS      bool
	Prefix   string
}

// NewRedis connects and pings Redis.
func NewRedis(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*Redis, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "guvohbot:update:"
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}, nil
}

func (r *Redis) First(ctx context.Context, id int) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+strconv.Itoa(id), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Close() error { return r.client.Close() }
