// Package kvstore implements the ordered prefix-scannable key-value
// abstraction and its copy-on-write Mirror overlay (spec §4.A).
package kvstore

import (
	"sort"
	"strings"
)

// WriteOp is a single mutation: either a Put or a Remove (spec §4.A).
type WriteOp struct {
	Key    string
	Value  []byte
	Remove bool
}

// Put constructs a Put write op.
func Put(key string, value []byte) WriteOp {
	return WriteOp{Key: key, Value: value}
}

// Remove constructs a Remove write op.
func Remove(key string) WriteOp {
	return WriteOp{Key: key, Remove: true}
}

// Pair is a single (key, value) result from a prefix scan.
type Pair struct {
	Key   string
	Value []byte
}

// Store is the abstract KV backend contract (spec §1: "The physical KV
// backend (LevelDB or RAM — only the abstract KV interface in §4.1
// matters)", spec §6: "Prefix-scannable, atomic batched updates. Keys are
// UTF-8 strings; values are opaque byte blobs.").
type Store interface {
	Get(key string) ([]byte, bool, error)
	// Pairs returns all (key, value) pairs whose key has the given
	// prefix, in byte-lexicographic order (spec §4.A "pairs(prefix) ->
	// Iter<(k,Blob)> (lexicographic)").
	Pairs(prefix string) ([]Pair, error)
	// Update applies ops atomically.
	Update(ops []WriteOp) error
}

// Mirror wraps an immutable base Store with a private overlay: reads
// consult the overlay first, Pairs merges the overlay with a base scan,
// and writes land only in the overlay until ToOps/Commit is called
// (spec §4.A "A Mirror wraps an immutable reference to a base store plus a
// private overlay... Speculative execution uses nested mirrors.").
type Mirror struct {
	base    Store
	overlay map[string][]byte // pending puts; a removed key is absent here and present in tombstones
	tombstones map[string]bool
}

// NewMirror creates a Mirror over base with an empty overlay.
func NewMirror(base Store) *Mirror {
	return &Mirror{
		base:       base,
		overlay:    make(map[string][]byte),
		tombstones: make(map[string]bool),
	}
}

// Fork returns a nested Mirror over m, for speculative execution that may
// be discarded without touching m (spec §4.A, §4.D "on any failure, the
// enclosing mirror is discarded").
func (m *Mirror) Fork() *Mirror {
	return NewMirror(m)
}

// Get satisfies Store: overlay first, then base.
func (m *Mirror) Get(key string) ([]byte, bool, error) {
	if m.tombstones[key] {
		return nil, false, nil
	}
	if v, ok := m.overlay[key]; ok {
		return v, true, nil
	}
	return m.base.Get(key)
}

// Pairs satisfies Store: merges the overlay over a base scan, preferring
// overlay entries and skipping overlay tombstones, grounded on
// original_source/src/db/disk.rs's seek+take_while prefix scan semantics.
func (m *Mirror) Pairs(prefix string) ([]Pair, error) {
	basePairs, err := m.base.Pairs(prefix)
	if err != nil {
		return nil, err
	}

	merged := make(map[string][]byte, len(basePairs))
	for _, p := range basePairs {
		merged[p.Key] = p.Value
	}
	for k, v := range m.overlay {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k := range m.tombstones {
		if strings.HasPrefix(k, prefix) {
			delete(merged, k)
		}
	}

	out := make([]Pair, 0, len(merged))
	for k, v := range merged {
		out = append(out, Pair{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Update satisfies Store: writes land only in the overlay.
func (m *Mirror) Update(ops []WriteOp) error {
	for _, op := range ops {
		if op.Remove {
			delete(m.overlay, op.Key)
			m.tombstones[op.Key] = true
		} else {
			delete(m.tombstones, op.Key)
			m.overlay[op.Key] = op.Value
		}
	}
	return nil
}

// ToOps emits the accumulated overlay as a write-op batch suitable for an
// atomic commit into the base (spec §4.A "to_ops() emits the accumulated
// ops for atomic commit into the base").
func (m *Mirror) ToOps() []WriteOp {
	ops := make([]WriteOp, 0, len(m.overlay)+len(m.tombstones))
	for k, v := range m.overlay {
		ops = append(ops, Put(k, v))
	}
	for k := range m.tombstones {
		if _, stillPresent := m.overlay[k]; !stillPresent {
			ops = append(ops, Remove(k))
		}
	}
	return ops
}

// Commit applies ToOps into the base store and clears the overlay.
func (m *Mirror) Commit() error {
	if err := m.base.Update(m.ToOps()); err != nil {
		return err
	}
	m.overlay = make(map[string][]byte)
	m.tombstones = make(map[string]bool)
	return nil
}
