package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Backend names a storage backend
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

// LogFunc receives backend selection events as a message and key-value pairs.
type LogFunc func(msg string, keysAndValues ...interface{})

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisURL is a redis:// URL or a bare host:port (required for redis)
	RedisURL string

	// JanitorInterval controls how often the in-memory store evicts expired
	// keys. Zero disables the janitor; expired keys are still hidden on read.
	JanitorInterval time.Duration

	// FallbackToMemory serves from an in-memory store when Redis is
	// unreachable at startup.
	FallbackToMemory bool

	// StartupProbeTimeout bounds the startup ping. Default: 1 second
	StartupProbeTimeout time.Duration

	Logger LogFunc
}

// StoreFactory creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Backend]StoreFactory)
)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[backend] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for b := range factories {
		names = append(names, string(b))
	}
	sort.Strings(names)
	return names
}

func factory(backend Backend) (StoreFactory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("%s backend not registered", backend)
	}
	return f, nil
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = time.Second
	}

	switch cfg.Backend {
	case BackendMemory:
		f, err := factory(BackendMemory)
		if err != nil {
			return nil, err
		}
		return f(cfg)

	case BackendRedis:
		return newRedisStore(cfg)

	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
}

func newRedisStore(cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}
	f, err := factory(BackendRedis)
	if err != nil {
		return nil, err
	}

	store, err := f(cfg)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
		defer cancel()
		if err = store.Ping(ctx); err != nil {
			store.Close()
		}
	}
	if err == nil {
		return store, nil
	}
	if !cfg.FallbackToMemory {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if cfg.Logger != nil {
		cfg.Logger("Redis unavailable at startup; using in-memory store", "error", err.Error())
	}
	mem, ferr := factory(BackendMemory)
	if ferr != nil {
		return nil, ferr
	}
	return mem(cfg)
}
