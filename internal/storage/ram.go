// Package storage implements concrete backends for the kvstore.Store
// interface (spec §1: "The physical KV backend (LevelDB or RAM)... only the
// abstract KV interface in §4.1 matters").
package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/ziesha-go/ledger/internal/kvstore"
)

// RamStore is an in-memory kvstore.Store, used for genesis construction,
// tests, and as the fork base for speculative mirrors (spec §4.A; adapted
// from the teacher's Postgres-only storage package to also cover the RAM
// variant spec §1 names alongside LevelDB).
type RamStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewRamStore returns an empty in-memory store.
func NewRamStore() *RamStore {
	return &RamStore{data: make(map[string][]byte)}
}

// Get satisfies kvstore.Store.
func (s *RamStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Pairs satisfies kvstore.Store.
func (s *RamStore) Pairs(prefix string) ([]kvstore.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]kvstore.Pair, 0)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, kvstore.Pair{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Update satisfies kvstore.Store.
func (s *RamStore) Update(ops []kvstore.WriteOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Remove {
			delete(s.data, op.Key)
		} else {
			s.data[op.Key] = op.Value
		}
	}
	return nil
}
