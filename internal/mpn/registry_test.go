package mpn

import (
	"testing"

	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

func testPub(seed uint64) types.PublicKey {
	return types.PublicKey{X: scalar.FromUint64(seed), Parity: seed%2 == 0}
}

func TestLookupIndexMissingReportsNotOk(t *testing.T) {
	db := storage.NewRamStore()
	if _, ok, err := LookupIndex(db, testPub(1)); ok || err != nil {
		t.Errorf("expected ok=false, err=nil for an unassigned pubkey, got ok=%v err=%v", ok, err)
	}
}

func TestRegistrarAssignsSequentialIndicesAndIsStableWithinBatch(t *testing.T) {
	db := storage.NewRamStore()
	r, err := newRegistrar(db)
	if err != nil {
		t.Fatalf("newRegistrar: %v", err)
	}

	a, b := testPub(1), testPub(2)
	idxA, ok := r.resolve(a, true)
	if !ok || idxA != 0 {
		t.Fatalf("resolve(a): idx=%d, ok=%v", idxA, ok)
	}
	idxB, ok := r.resolve(b, true)
	if !ok || idxB != 1 {
		t.Fatalf("resolve(b): idx=%d, ok=%v", idxB, ok)
	}

	again, ok := r.resolve(a, true)
	if !ok || again != idxA {
		t.Errorf("resolve(a) again should return the same index within the batch: got %d, want %d", again, idxA)
	}
}

func TestRegistrarDisallowsNewWhenNotAllowed(t *testing.T) {
	db := storage.NewRamStore()
	r, err := newRegistrar(db)
	if err != nil {
		t.Fatalf("newRegistrar: %v", err)
	}
	if _, ok := r.resolve(testPub(5), false); ok {
		t.Error("resolve with allowNew=false should not assign a fresh index")
	}
}

func TestRegistrarCommitPersistsIndicesAndCount(t *testing.T) {
	db := storage.NewRamStore()
	r, err := newRegistrar(db)
	if err != nil {
		t.Fatalf("newRegistrar: %v", err)
	}
	pk := testPub(3)
	if _, ok := r.resolve(pk, true); !ok {
		t.Fatal("resolve should assign a new index")
	}

	ops, err := r.commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := db.Update(ops); err != nil {
		t.Fatalf("Update(commit ops): %v", err)
	}

	idx, ok, err := LookupIndex(db, pk)
	if err != nil || !ok || idx != 0 {
		t.Fatalf("LookupIndex after commit: idx=%d, ok=%v, err=%v", idx, ok, err)
	}

	count, err := accountCount(db)
	if err != nil || count != 1 {
		t.Fatalf("accountCount after commit: %d, %v", count, err)
	}
}

func TestRegistrarResolveSeesAlreadyPersistedIndex(t *testing.T) {
	db := storage.NewRamStore()
	pk := testPub(9)

	r1, _ := newRegistrar(db)
	r1.resolve(pk, true)
	ops, _ := r1.commit()
	db.Update(ops)

	r2, err := newRegistrar(db)
	if err != nil {
		t.Fatalf("newRegistrar: %v", err)
	}
	idx, ok := r2.resolve(pk, false)
	if !ok || idx != 0 {
		t.Errorf("resolve should find the persisted index from a prior batch: idx=%d, ok=%v", idx, ok)
	}
}

func TestRegistrarCommitNoopWhenNothingAssigned(t *testing.T) {
	db := storage.NewRamStore()
	r, err := newRegistrar(db)
	if err != nil {
		t.Fatalf("newRegistrar: %v", err)
	}
	ops, err := r.commit()
	if err != nil || ops != nil {
		t.Errorf("commit with nothing assigned should return nil ops, got %v, %v", ops, err)
	}
}
