package repository

import (
	"context"
	"strconv"
	"sync"
)

// Memory is an in-process History used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	rows []Settlement
	byID map[string]int
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

func (m *Memory) StoreSettlement(ctx context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[s.ID]; ok {
		return nil
	}
	s.Seq = int64(len(m.rows) + 1)
	m.byID[s.ID] = len(m.rows)
	m.rows = append(m.rows, s)
	return nil
}

func (m *Memory) GetSettlement(ctx context.Context, id string) (*Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	s := m.rows[i]
	return &s, nil
}

func (m *Memory) GetWalletSettlements(ctx context.Context, wallet string, limit int, cursor string) ([]Settlement, string, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Settlement
	for i := len(m.rows) - 1; i >= 0; i-- {
		s := m.rows[i]
		if s.Seq >= before || (s.Buyer != wallet && s.Seller != wallet) {
			continue
		}
		if len(out) == limit {
			return out, strconv.FormatInt(out[len(out)-1].Seq, 10), nil
		}
		out = append(out, s)
	}
	return out, "", nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

var (
	_ History = (*Memory)(nil)
	_ History = (*Repository)(nil)
)
