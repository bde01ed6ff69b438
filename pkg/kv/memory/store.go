package memory

import (
	"context"
	"sync"
	"time"

	"github.com/leafsii/auction-house/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.RWMutex
	values      map[string][]byte
	lists       map[string][][]byte
	expirations map[string]time.Time
	now         func() time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store with optional janitor for TTL cleanup
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		values:          make(map[string][]byte),
		lists:           make(map[string][][]byte),
		expirations:     make(map[string]time.Time),
		now:             time.Now,
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			s.deleteKeyUnsafe(key)
		}
	}
}

// live reports whether key holds an unexpired value (must hold a lock)
func (s *Store) live(key string) bool {
	if expiry, ok := s.expirations[key]; ok && s.now().After(expiry) {
		return false
	}
	_, isValue := s.values[key]
	_, isList := s.lists[key]
	return isValue || isList
}

// expireIfDue drops key when its TTL has passed (must hold write lock)
func (s *Store) expireIfDue(key string) {
	if expiry, ok := s.expirations[key]; ok && s.now().After(expiry) {
		s.deleteKeyUnsafe(key)
	}
}

func (s *Store) deleteKeyUnsafe(key string) {
	delete(s.values, key)
	delete(s.lists, key)
	delete(s.expirations, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteKeyUnsafe(key)
	s.values[key] = append([]byte(nil), value...)
	if len(ttl) > 0 && ttl[0] > 0 {
		s.expirations[key] = s.now().Add(ttl[0])
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(key)
	value, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if s.live(key) {
			deleted++
		}
		s.deleteKeyUnsafe(key)
	}
	return deleted, nil
}

func (s *Store) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(key)
	if _, ok := s.values[key]; ok {
		return 0, kv.ErrWrongType
	}
	list := s.lists[key]
	head := make([][]byte, 0, len(values)+len(list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, append([]byte(nil), values[i]...))
	}
	list = append(head, list...)
	s.lists[key] = list
	return int64(len(list)), nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(key)
	list := s.lists[key]
	lo, hi, ok := kv.Span(int64(len(list)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo)
	for _, v := range list[lo:hi] {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(key)
	list, ok := s.lists[key]
	if !ok {
		return nil
	}
	lo, hi, ok := kv.Span(int64(len(list)), start, stop)
	if !ok {
		s.deleteKeyUnsafe(key)
		return nil
	}
	s.lists[key] = append([][]byte(nil), list[lo:hi]...)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.janitorStop)
		<-s.janitorDone
	})
	return nil
}

var _ kv.Store = (*Store)(nil)
