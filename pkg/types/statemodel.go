package types

import (
	"errors"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

// Errors surfaced while walking a StateModel with a Locator (spec §4.B).
var (
	ErrNonScalarLocator = errors.New("types: locator does not terminate at a scalar")
	ErrLocatorOutOfRange = errors.New("types: locator path inconsistent with state model")
)

// StateModelKind discriminates the three StateModel shapes (spec §3).
type StateModelKind int

const (
	// KindScalar is a single field element.
	KindScalar StateModelKind = iota
	// KindStruct is a fixed-arity tuple; commitment = poseidon(children).
	KindStruct
	// KindList is a quad-tree of depth Log4Size; commitment = poseidon of
	// 4 children, with cached default roots for empty subtrees.
	KindList
)

// StateModel is the recursive schema describing a contract's state tree
// (spec §3 "StateModel").
type StateModel struct {
	Kind StateModelKind

	// Struct
	Fields []StateModel

	// List
	Log4Size int
	ItemType *StateModel
}

// Scalar constructs a leaf StateModel.
func Scalar() StateModel { return StateModel{Kind: KindScalar} }

// Struct constructs a fixed-arity tuple StateModel.
func Struct(fields ...StateModel) StateModel {
	return StateModel{Kind: KindStruct, Fields: fields}
}

// List constructs a quad-tree StateModel of the given depth over item.
func List(log4Size int, item StateModel) StateModel {
	return StateModel{Kind: KindList, Log4Size: log4Size, ItemType: &item}
}

// Locator addresses a sub-element of a StateModel (spec §3 "Locator").
type Locator []uint64

// Clone returns a copy safe to mutate independently of the receiver.
func (l Locator) Clone() Locator {
	out := make(Locator, len(l))
	copy(out, l)
	return out
}

// Append returns a new Locator with idx appended.
func (l Locator) Append(idx uint64) Locator {
	out := make(Locator, len(l)+1)
	copy(out, l)
	out[len(l)] = idx
	return out
}

// Pop returns the locator with its last element removed, and that element.
// Precondition: len(l) > 0.
func (l Locator) Pop() (Locator, uint64) {
	n := len(l)
	return l[:n-1], l[n-1]
}

// Locate walks path through model and returns the sub-model it addresses,
// which may be a Struct or List as well as a Scalar. It fails with
// ErrNonScalarLocator when path continues past a Scalar and with
// ErrLocatorOutOfRange when an index is outside a Struct's fields or a
// List's capacity; LocateScalar also rejects a non-Scalar result.
func (m StateModel) Locate(path Locator) (StateModel, error) {
	cur := m
	for _, idx := range path {
		switch cur.Kind {
		case KindScalar:
			return StateModel{}, ErrNonScalarLocator
		case KindStruct:
			if int(idx) >= len(cur.Fields) {
				return StateModel{}, ErrLocatorOutOfRange
			}
			cur = cur.Fields[idx]
		case KindList:
			// A List index always addresses an ItemType child; the
			// quad-tree layering is an implementation detail of the
			// commitment, not of the logical schema (spec §4.B).
			if idx >= (uint64(1) << uint64(2*cur.Log4Size)) {
				return StateModel{}, ErrLocatorOutOfRange
			}
			cur = *cur.ItemType
		}
	}
	return cur, nil
}

// LocateScalar is Locate but requires the result to be a Scalar, as callers
// writing leaf values must (spec §4.B set_data validates this).
func (m StateModel) LocateScalar(path Locator) error {
	sub, err := m.Locate(path)
	if err != nil {
		return err
	}
	if sub.Kind != KindScalar {
		return ErrNonScalarLocator
	}
	return nil
}

// CompressedState is a Merkle root plus a counter of non-default leaves
// (spec §3 ContractAccount, GLOSSARY "Compressed state").
type CompressedState struct {
	StateHash scalar.Scalar
	StateSize uint64
}

// IsEmpty reports whether this is the all-zero, never-touched state.
func (c CompressedState) IsEmpty() bool {
	return c.StateHash.IsZero() && c.StateSize == 0
}
