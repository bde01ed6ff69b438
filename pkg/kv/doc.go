// Package kv provides a small Redis-like key-value store abstraction with
// in-memory and Redis-backed implementations.
//
// Backends register themselves by name from their package init, so callers
// blank-import the backends they want:
//
//	import (
//		_ "github.com/leafsii/auction-house/pkg/kv/memory"
//		_ "github.com/leafsii/auction-house/pkg/kv/redis"
//	)
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendRedis, RedisURL: "127.0.0.1:6379"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
package kv
