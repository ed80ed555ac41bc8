package types

import (
	"testing"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

func TestLocateThroughStructAndList(t *testing.T) {
	model := List(2, Struct(Scalar(), Scalar(), List(1, Scalar())))

	sub, err := model.Locate(Locator{3, 0})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if sub.Kind != KindScalar {
		t.Errorf("expected scalar, got kind %d", sub.Kind)
	}

	sub, err = model.Locate(Locator{3, 2, 1})
	if err != nil {
		t.Fatalf("Locate nested list: %v", err)
	}
	if sub.Kind != KindScalar {
		t.Errorf("expected scalar, got kind %d", sub.Kind)
	}
}

func TestLocateOutOfRange(t *testing.T) {
	model := List(1, Struct(Scalar(), Scalar()))
	if _, err := model.Locate(Locator{4}); err != ErrLocatorOutOfRange {
		t.Errorf("expected ErrLocatorOutOfRange, got %v", err)
	}
	if _, err := model.Locate(Locator{0, 5}); err != ErrLocatorOutOfRange {
		t.Errorf("expected ErrLocatorOutOfRange on struct field, got %v", err)
	}
}

func TestLocateNonScalarTerminal(t *testing.T) {
	model := Struct(Scalar(), List(1, Scalar()))
	if _, err := model.Locate(Locator{}); err != nil {
		t.Fatalf("empty locator should resolve to the root: %v", err)
	}
	if err := model.LocateScalar(Locator{}); err != ErrNonScalarLocator {
		t.Errorf("expected ErrNonScalarLocator for struct root, got %v", err)
	}
	if err := model.LocateScalar(Locator{0}); err != nil {
		t.Errorf("LocateScalar(field 0): %v", err)
	}
}

func TestLocatePastScalarIsError(t *testing.T) {
	model := Scalar()
	if _, err := model.Locate(Locator{0}); err != ErrNonScalarLocator {
		t.Errorf("expected ErrNonScalarLocator walking past a scalar leaf, got %v", err)
	}
}

func TestLocatorAppendPopClone(t *testing.T) {
	base := Locator{1, 2}
	appended := base.Append(3)
	if len(base) != 2 {
		t.Error("Append mutated the receiver")
	}
	if len(appended) != 3 || appended[2] != 3 {
		t.Errorf("unexpected Append result: %v", appended)
	}

	rest, last := appended.Pop()
	if last != 3 || len(rest) != 2 {
		t.Errorf("unexpected Pop result: rest=%v last=%d", rest, last)
	}

	clone := base.Clone()
	clone[0] = 99
	if base[0] == 99 {
		t.Error("Clone shares backing array with the original")
	}
}

func TestCompressedStateIsEmpty(t *testing.T) {
	if !(CompressedState{}).IsEmpty() {
		t.Error("zero-value CompressedState should be empty")
	}
	nonEmpty := CompressedState{StateHash: scalar.FromUint64(1)}
	if nonEmpty.IsEmpty() {
		t.Error("nonzero StateHash should not report empty")
	}
}
