package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/example/task-tracker/config"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"
)

// Module owns the Redis connections used for list caching and for the
// HTTP rate limiter's shared counters.
type Module struct {
	cache   *Cache
	client  *redis.Client
	limiter *fiberredis.Storage
	cfg     config.Cache
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the cache module. The Redis client is built here so
// TaskLists can be handed to other modules before Start; Start verifies the
// connection.
func NewModule(cfg config.Cache, logger types.Logger) *Module {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &Module{
		cache:  New(client, cfg.Prefix, cfg.TTL),
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Start verifies the Redis connection and opens the limiter storage.
func (m *Module) Start(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	host, port := splitAddr(m.cfg.RedisAddr)
	m.limiter = fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		PoolSize: 10,
	})
	m.logger.Info("Connected to Redis", "addr", m.cfg.RedisAddr, "prefix", m.cfg.Prefix, "ttl", m.cfg.TTL)
	return nil
}

// Stop closes the Redis connections.
func (m *Module) Stop(_ context.Context) error {
	if m.limiter != nil {
		if err := m.limiter.Close(); err != nil {
			m.logger.Warn("Failed to close limiter storage", "error", err)
		}
	}
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	m.logger.Info("Cache module stopped")
	return nil
}

// Health reports Redis reachability and hit statistics.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.cache.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
		}
	}
	stats := m.cache.GetStats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"addr":     m.cfg.RedisAddr,
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"hit_rate": stats.HitRate,
		},
	}
}

// TaskLists returns the per-owner list cache backed by this module.
func (m *Module) TaskLists() *TaskLists {
	return NewTaskLists(m.cache)
}

// LimiterStorage returns the fiber storage for rate-limit counters, or nil
// before Start.
func (m *Module) LimiterStorage() fiber.Storage {
	if m.limiter == nil {
		return nil
	}
	return m.limiter
}

// splitAddr parses "host:port", falling back to 127.0.0.1:6379.
func splitAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}
