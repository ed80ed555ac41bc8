package zkstate

import (
	"testing"

	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

func TestGetDataDefaultsToZeroOnEmptyStore(t *testing.T) {
	db := storage.NewRamStore()
	mgr := NewManager()
	model := types.Struct(types.Scalar(), types.Scalar())

	v, err := mgr.GetData(db, "c1", model, types.Locator{0})
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !v.IsZero() {
		t.Errorf("expected zero on an untouched leaf, got %v", v)
	}
}

func TestSetDataThenGetDataRoundTrips(t *testing.T) {
	db := storage.NewRamStore()
	mgr := NewManager()
	model := types.Struct(types.Scalar(), types.Scalar())

	var sizeDelta int64
	want := scalar.FromUint64(42)
	if _, err := mgr.SetData(db, "c1", model, types.Locator{1}, want, &sizeDelta); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	got, err := mgr.GetData(db, "c1", model, types.Locator{1})
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("GetData after SetData: got %v, want %v", got, want)
	}
	if sizeDelta != 1 {
		t.Errorf("sizeDelta after one nonzero write: got %d, want 1", sizeDelta)
	}
}

func TestSetDataChangesRootAndSetBackToZeroReturnsToDefault(t *testing.T) {
	db := storage.NewRamStore()
	mgr := NewManager()
	model := types.List(2, types.Scalar())

	defaultRoot := mgr.DefaultRoot(model)

	var sizeDelta int64
	root1, err := mgr.SetData(db, "c1", model, types.Locator{5}, scalar.FromUint64(7), &sizeDelta)
	if err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if root1.Equal(defaultRoot) {
		t.Error("root should change after a nonzero write")
	}

	root2, err := mgr.SetData(db, "c1", model, types.Locator{5}, scalar.Zero(), &sizeDelta)
	if err != nil {
		t.Fatalf("SetData back to zero: %v", err)
	}
	if !root2.Equal(defaultRoot) {
		t.Errorf("root should return to the default once the only leaf is zeroed again: got %v, want %v", root2, defaultRoot)
	}
	if sizeDelta != 0 {
		t.Errorf("sizeDelta should net to zero after set-then-unset: got %d", sizeDelta)
	}
}

func TestSetDataNoopWriteDoesNotChangeSizeDelta(t *testing.T) {
	db := storage.NewRamStore()
	mgr := NewManager()
	model := types.Struct(types.Scalar())

	var sizeDelta int64
	if _, err := mgr.SetData(db, "c1", model, types.Locator{0}, scalar.FromUint64(9), &sizeDelta); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if _, err := mgr.SetData(db, "c1", model, types.Locator{0}, scalar.FromUint64(9), &sizeDelta); err != nil {
		t.Fatalf("SetData repeat: %v", err)
	}
	if sizeDelta != 1 {
		t.Errorf("repeating an identical write should be a no-op for sizeDelta: got %d", sizeDelta)
	}
}

func TestCommitRootAndHeightOfRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	mgr := NewManager()

	h, err := mgr.HeightOf(db, "c1")
	if err != nil || h != 0 {
		t.Fatalf("HeightOf on untouched contract: %d, %v", h, err)
	}

	state := types.CompressedState{StateHash: scalar.FromUint64(123), StateSize: 4}
	if err := mgr.CommitRoot(db, "c1", state, 7); err != nil {
		t.Fatalf("CommitRoot: %v", err)
	}

	h, err = mgr.HeightOf(db, "c1")
	if err != nil || h != 7 {
		t.Fatalf("HeightOf after CommitRoot: %d, %v", h, err)
	}

	model := types.Scalar()
	got, err := mgr.Root(db, "c1", model)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !got.StateHash.Equal(state.StateHash) || got.StateSize != state.StateSize {
		t.Errorf("Root after CommitRoot: got %+v, want %+v", got, state)
	}
}

func TestProveProducesLog4SizeSiblingLayers(t *testing.T) {
	db := storage.NewRamStore()
	mgr := NewManager()
	model := types.List(3, types.Scalar())

	var sizeDelta int64
	if _, err := mgr.SetData(db, "c1", model, types.Locator{10}, scalar.FromUint64(99), &sizeDelta); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	path, err := mgr.Prove(db, "c1", model, types.Locator{}, 10)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3 sibling layers for log4Size=3, got %d", len(path))
	}
}

func TestDefaultRootIsMemoizedAndDeterministic(t *testing.T) {
	mgr := NewManager()
	model := types.List(4, types.Struct(types.Scalar(), types.Scalar()))

	a := mgr.DefaultRoot(model)
	b := mgr.DefaultRoot(model)
	if !a.Equal(b) {
		t.Error("DefaultRoot is not deterministic across calls")
	}
}
