package mpn

import (
	"encoding/binary"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/pkg/common"
	"github.com/ziesha-go/ledger/pkg/types"
)

func pubkeyHex(pk types.PublicKey) string {
	x := pk.X.Bytes()
	if pk.Parity {
		return "1" + common.BytesToHex(x[:])
	}
	return "0" + common.BytesToHex(x[:])
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// LookupIndex returns the account-slot index already assigned to pk, if
// any (spec §4.G "existing index if known").
func LookupIndex(db kvstore.Store, pk types.PublicKey) (uint64, bool, error) {
	raw, ok, err := db.Get(kvstore.MpnIndexKey(pubkeyHex(pk)))
	if err != nil || !ok {
		return 0, false, err
	}
	return decodeU64(raw), true, nil
}

// accountCount returns the number of account slots ever assigned.
func accountCount(db kvstore.Store) (uint64, error) {
	raw, ok, err := db.Get(kvstore.MpnIndexCountKey())
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(raw), nil
}

// registrar tracks the indices newly assigned within a single batch call,
// mirroring original_source's `new_account_indices` map threaded through
// deposit/update/withdraw so a pubkey introduced earlier in the same batch
// resolves consistently for the rest of it, before any of it is persisted.
type registrar struct {
	db      kvstore.Store
	base    uint64
	assigned map[string]uint64
	next    uint64
}

func newRegistrar(db kvstore.Store) (*registrar, error) {
	base, err := accountCount(db)
	if err != nil {
		return nil, err
	}
	return &registrar{db: db, base: base, assigned: make(map[string]uint64), next: base}, nil
}

// resolve returns pk's account index, assigning the next free one when
// allowNew is set and pk has none yet.
func (r *registrar) resolve(pk types.PublicKey, allowNew bool) (uint64, bool) {
	key := pubkeyHex(pk)
	if idx, ok, err := LookupIndex(r.db, pk); err == nil && ok {
		return idx, true
	}
	if idx, ok := r.assigned[key]; ok {
		return idx, true
	}
	if !allowNew {
		return 0, false
	}
	idx := r.next
	r.next++
	r.assigned[key] = idx
	return idx, true
}

// commit returns the write ops that persist every index assigned during
// the batch and the bumped account-count counter (nil when nothing was
// assigned). It writes nothing itself; finishBatch applies the ops to the
// same mirror that already holds the batch's tree mutations.
func (r *registrar) commit() ([]kvstore.WriteOp, error) {
	if len(r.assigned) == 0 {
		return nil, nil
	}
	ops := make([]kvstore.WriteOp, 0, len(r.assigned)+1)
	for key, idx := range r.assigned {
		ops = append(ops, kvstore.Put(kvstore.MpnIndexKey(key), encodeU64(idx)))
	}
	ops = append(ops, kvstore.Put(kvstore.MpnIndexCountKey(), encodeU64(r.next)))
	return ops, nil
}
