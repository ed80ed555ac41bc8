// Package zkstate implements the sparse Merkle-Patricia-like state manager
// over BLS12-381 scalars: a quad-tree (log4-depth "List" state model) of
// zk-friendly commitments with locator-addressed reads/writes that
// incrementally recompute auxiliary tree nodes (spec §4.B).
//
// Ported from original_source/src/zk/state/mod.rs, which is the single
// most load-bearing grounding source for this package: the aux-offset
// formula, the layer-by-layer ascent for List vs Struct nodes, and the
// leaf/internal-node key split all come directly from that file.
package zkstate

import (
	"errors"
	"strconv"
	"sync"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Errors surfaced by the state manager (spec §4.B "Failure modes").
var (
	ErrNonScalarLocator = errors.New("zkstate: attempted to write a non-scalar locator")
	ErrContractNotFound = errors.New("zkstate: contract not found")
	ErrLocatorInvalid   = errors.New("zkstate: locator inconsistent with state model")
)

// Manager is a stateless façade: every method takes the KV store and the
// contract's StateModel explicitly, since the manager itself holds no
// mutable state beyond the default-root memoization cache (spec §9:
// "the state manager borrows an abstract KV handle mutably; contracts are
// by-id... never by object reference").
type Manager struct {
	defaultRootCache   map[string]scalar.Scalar
	defaultRootCacheMu sync.Mutex
}

// NewManager returns a Manager with an empty default-root cache.
func NewManager() *Manager {
	return &Manager{defaultRootCache: make(map[string]scalar.Scalar)}
}

func modelCacheKey(m types.StateModel) string {
	switch m.Kind {
	case types.KindScalar:
		return "S"
	case types.KindStruct:
		s := "T("
		for _, f := range m.Fields {
			s += modelCacheKey(f) + ","
		}
		return s + ")"
	case types.KindList:
		return "L(" + strconv.Itoa(m.Log4Size) + "," + modelCacheKey(*m.ItemType) + ")"
	}
	return "?"
}

// DefaultRoot computes (and memoizes) the commitment of an all-default
// instance of model (spec §4.B "Default-root memoization").
func (mgr *Manager) DefaultRoot(model types.StateModel) scalar.Scalar {
	key := modelCacheKey(model)

	mgr.defaultRootCacheMu.Lock()
	if v, ok := mgr.defaultRootCache[key]; ok {
		mgr.defaultRootCacheMu.Unlock()
		return v
	}
	mgr.defaultRootCacheMu.Unlock()

	v := mgr.computeDefaultRoot(model)

	mgr.defaultRootCacheMu.Lock()
	mgr.defaultRootCache[key] = v
	mgr.defaultRootCacheMu.Unlock()
	return v
}

func (mgr *Manager) computeDefaultRoot(model types.StateModel) scalar.Scalar {
	switch model.Kind {
	case types.KindScalar:
		return scalar.Zero()
	case types.KindStruct:
		children := make([]scalar.Scalar, len(model.Fields))
		for i, f := range model.Fields {
			children[i] = mgr.DefaultRoot(f)
		}
		return poseidonN(children)
	case types.KindList:
		d := mgr.DefaultRoot(*model.ItemType)
		for layer := 0; layer < model.Log4Size; layer++ {
			d = zkp.Poseidon(d, d, d, d)
		}
		return d
	}
	panic("zkstate: unknown state model kind")
}

// CompressDefault returns the (root, size=0) CompressedState for an
// all-default instance of model.
func (mgr *Manager) CompressDefault(model types.StateModel) types.CompressedState {
	return types.CompressedState{StateHash: mgr.DefaultRoot(model), StateSize: 0}
}

// poseidonN hashes an arbitrary-arity slice, clamped into poseidon's
// supported 2..16 range by padding with zero (spec §6 names arities 2..16;
// Struct models wider than 16 fields are out of scope for this ledger).
func poseidonN(xs []scalar.Scalar) scalar.Scalar {
	if len(xs) == 1 {
		// A single-field struct has no meaningful "hash of 1"; pair it
		// with a zero so poseidon's minimum arity of 2 is respected.
		return zkp.Poseidon(xs[0], scalar.Zero())
	}
	return zkp.Poseidon(xs...)
}

// auxOffset returns the flat aux-keyspace offset at which the nodes
// layer+1 levels below a List's root start, with layer numbered as
// ascendList and Prove number it (log4Size-1 next to the leaves, 0 next to
// the root); ported verbatim from original_source's
// `((1 << 2*(layer+1)) - 1) / 3`.
func auxOffset(layer int) uint64 {
	return (uint64(1)<<uint64(2*(layer+1)) - 1) / 3
}

// GetData returns the value at locator within contract cid's state,
// defaulting to zero for an absent scalar leaf and to the cached layer
// default for an absent non-scalar node (spec §4.B "Get").
func (mgr *Manager) GetData(db kvstore.Store, cid string, model types.StateModel, locator types.Locator) (scalar.Scalar, error) {
	subType, err := model.Locate(locator)
	if err != nil {
		return scalar.Scalar{}, err
	}
	isScalar := subType.Kind == types.KindScalar
	key := kvstore.LocalValueKey(cid, locatorKey(locator), isScalar)

	raw, ok, err := db.Get(key)
	if err != nil {
		return scalar.Scalar{}, err
	}
	if !ok {
		return mgr.DefaultRoot(subType), nil
	}
	var arr [32]byte
	copy(arr[:], raw)
	return scalar.FromBytes(arr)
}

// Root returns the current compressed root of contract cid (spec §4.B
// "root(db,id)"), defaulting to the all-empty compressed state.
func (mgr *Manager) Root(db kvstore.Store, cid string, model types.StateModel) (types.CompressedState, error) {
	raw, ok, err := db.Get(kvstore.LocalRootKey(cid))
	if err != nil {
		return types.CompressedState{}, err
	}
	if !ok {
		return mgr.CompressDefault(model), nil
	}
	return decodeCompressedState(raw)
}

func encodeCompressedState(c types.CompressedState) []byte {
	b := c.StateHash.Bytes()
	out := make([]byte, 0, 40)
	out = append(out, b[:]...)
	var sizeBuf [8]byte
	for i := 0; i < 8; i++ {
		sizeBuf[i] = byte(c.StateSize >> (8 * i))
	}
	return append(out, sizeBuf[:]...)
}

func decodeCompressedState(raw []byte) (types.CompressedState, error) {
	if len(raw) < 40 {
		return types.CompressedState{}, ErrLocatorInvalid
	}
	var arr [32]byte
	copy(arr[:], raw[:32])
	hash, err := scalar.FromBytes(arr)
	if err != nil {
		return types.CompressedState{}, err
	}
	var size uint64
	for i := 0; i < 8; i++ {
		size |= uint64(raw[32+i]) << (8 * i)
	}
	return types.CompressedState{StateHash: hash, StateSize: size}, nil
}

// SetData writes value at locator, then walks the locator toward the root,
// recomputing every ancestor commitment and caching it only when it
// differs from that level's default (spec §4.B "Set operation"). sizeDelta
// accumulates the net change in non-zero leaf count. The returned scalar is
// the new top-level root; callers (internal/txapply) are responsible for
// persisting it via SetRoot once all of a transaction's writes are done.
func (mgr *Manager) SetData(db kvstore.Store, cid string, model types.StateModel, locator types.Locator, value scalar.Scalar, sizeDelta *int64) (scalar.Scalar, error) {
	if err := model.LocateScalar(locator); err != nil {
		return scalar.Scalar{}, ErrNonScalarLocator
	}

	prev, err := mgr.GetData(db, cid, model, locator)
	if err != nil {
		return scalar.Scalar{}, err
	}
	if prev.Equal(value) {
		// No-op write: avoid spurious rollback-journal churn
		// (original_source/src/zk/state/mod.rs set_data short-circuit).
		return mgr.GetData(db, cid, model, types.Locator{})
	}

	var ops []kvstore.WriteOp
	leafKey := kvstore.LocalValueKey(cid, locatorKey(locator), true)
	if value.IsZero() {
		ops = append(ops, kvstore.Remove(leafKey))
	} else {
		b := value.Bytes()
		ops = append(ops, kvstore.Put(leafKey, b[:]))
	}
	switch {
	case prev.IsZero() && !value.IsZero():
		*sizeDelta++
	case !prev.IsZero() && value.IsZero():
		*sizeDelta--
	}

	cur := value
	remaining := locator.Clone()

	for len(remaining) > 0 {
		var curLoc uint64
		remaining, curLoc = remaining.Pop()

		parentType, err := model.Locate(remaining)
		if err != nil {
			return scalar.Scalar{}, err
		}

		switch parentType.Kind {
		case types.KindList:
			cur, err = mgr.ascendList(db, cid, remaining, parentType, curLoc, cur, &ops)
			if err != nil {
				return scalar.Scalar{}, err
			}
		case types.KindStruct:
			cur, err = mgr.ascendStruct(db, cid, remaining, parentType, curLoc, cur, &ops)
			if err != nil {
				return scalar.Scalar{}, err
			}
		default:
			// Scalar parents are unreachable: LocateScalar guaranteed
			// locator terminates at a Scalar, and every ancestor of a
			// Scalar leaf is List or Struct.
			return scalar.Scalar{}, ErrLocatorInvalid
		}

		nodeKey := kvstore.LocalValueKey(cid, locatorKey(remaining), false)
		def := mgr.DefaultRoot(parentType)
		if cur.Equal(def) {
			ops = append(ops, kvstore.Remove(nodeKey))
		} else {
			b := cur.Bytes()
			ops = append(ops, kvstore.Put(nodeKey, b[:]))
		}
	}

	if err := db.Update(ops); err != nil {
		return scalar.Scalar{}, err
	}
	return cur, nil
}

// ascendList recomputes one List node's commitment given that leaf/child
// curLoc just changed to newValue, updating the per-layer aux cache along
// the way (spec §4.B list bullet).
func (mgr *Manager) ascendList(db kvstore.Store, cid string, listLocator types.Locator, listType types.StateModel, curLoc uint64, newValue scalar.Scalar, ops *[]kvstore.WriteOp) (scalar.Scalar, error) {
	log4Size := listType.Log4Size
	itemType := *listType.ItemType

	curInd := curLoc
	value := newValue
	defaultValue := mgr.DefaultRoot(itemType)

	for layer := log4Size - 1; layer >= 0; layer-- {
		start := curInd - curInd%4
		dats := make([]scalar.Scalar, 4)
		for i := uint64(0); i < 4; i++ {
			leafIndex := start + i
			switch {
			case leafIndex == curInd:
				dats[i] = value
			case layer == log4Size-1:
				leafLocator := listLocator.Append(leafIndex)
				leafKey := kvstore.LocalValueKey(cid, locatorKey(leafLocator), itemType.Kind == types.KindScalar)
				raw, ok, err := db.Get(leafKey)
				if err != nil {
					return scalar.Scalar{}, err
				}
				if !ok {
					dats[i] = mgr.DefaultRoot(itemType)
				} else {
					var arr [32]byte
					copy(arr[:], raw)
					s, err := scalar.FromBytes(arr)
					if err != nil {
						return scalar.Scalar{}, err
					}
					dats[i] = s
				}
			default:
				off := auxOffset(layer)
				auxKey := kvstore.LocalTreeAuxKey(cid, locatorKey(listLocator), off+leafIndex)
				raw, ok, err := db.Get(auxKey)
				if err != nil {
					return scalar.Scalar{}, err
				}
				if !ok {
					dats[i] = defaultValue
				} else {
					var arr [32]byte
					copy(arr[:], raw)
					s, err := scalar.FromBytes(arr)
					if err != nil {
						return scalar.Scalar{}, err
					}
					dats[i] = s
				}
			}
		}

		value = zkp.Poseidon(dats[0], dats[1], dats[2], dats[3])
		defaultValue = zkp.Poseidon(defaultValue, defaultValue, defaultValue, defaultValue)
		curInd /= 4

		if layer > 0 {
			parentOff := auxOffset(layer - 1)
			auxKey := kvstore.LocalTreeAuxKey(cid, locatorKey(listLocator), parentOff+curInd)
			if value.Equal(defaultValue) {
				*ops = append(*ops, kvstore.Remove(auxKey))
			} else {
				b := value.Bytes()
				*ops = append(*ops, kvstore.Put(auxKey, b[:]))
			}
		}
	}
	return value, nil
}

// ascendStruct recomputes one Struct node's commitment given that field
// curLoc just changed to newValue (spec §4.B struct bullet).
func (mgr *Manager) ascendStruct(db kvstore.Store, cid string, structLocator types.Locator, structType types.StateModel, curLoc uint64, newValue scalar.Scalar, ops *[]kvstore.WriteOp) (scalar.Scalar, error) {
	dats := make([]scalar.Scalar, len(structType.Fields))
	for j, fieldType := range structType.Fields {
		if uint64(j) == curLoc {
			dats[j] = newValue
			continue
		}
		fieldLocator := structLocator.Append(uint64(j))
		key := kvstore.LocalValueKey(cid, locatorKey(fieldLocator), fieldType.Kind == types.KindScalar)
		raw, ok, err := db.Get(key)
		if err != nil {
			return scalar.Scalar{}, err
		}
		if !ok {
			dats[j] = mgr.DefaultRoot(fieldType)
			continue
		}
		var arr [32]byte
		copy(arr[:], raw)
		s, err := scalar.FromBytes(arr)
		if err != nil {
			return scalar.Scalar{}, err
		}
		dats[j] = s
	}
	return poseidonN(dats), nil
}

// CommitRoot persists the new (root, size) CompressedState for cid after a
// batch of SetData calls, and bumps the contract's local height
// (spec §4.B "the new root, which the caller commits to local_root").
func (mgr *Manager) CommitRoot(db kvstore.Store, cid string, newState types.CompressedState, newHeight uint64) error {
	return db.Update([]kvstore.WriteOp{
		kvstore.Put(kvstore.LocalRootKey(cid), encodeCompressedState(newState)),
		kvstore.Put(kvstore.LocalHeightKey(cid), encodeHeight(newHeight)),
	})
}

func encodeHeight(h uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(h >> (8 * i))
	}
	return b
}

// HeightOf returns a contract's local state height, defaulting to zero
// (spec §4.B "height_of").
func (mgr *Manager) HeightOf(db kvstore.Store, cid string) (uint64, error) {
	raw, ok, err := db.Get(kvstore.LocalHeightKey(cid))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var h uint64
	for i := 0; i < 8 && i < len(raw); i++ {
		h |= uint64(raw[i]) << (8 * i)
	}
	return h, nil
}

// Sibling is one of the 3 sibling values emitted per tree layer by Prove.
type Sibling = [3]scalar.Scalar

// Prove returns a Merkle authentication path for the leaf at leafIndex
// inside the List addressed by treeLocator: for each layer from the leaf
// toward the root, the 3 sibling values at that level (spec §4.B "Merkle
// proofs").
func (mgr *Manager) Prove(db kvstore.Store, cid string, model types.StateModel, treeLocator types.Locator, leafIndex uint64) ([]Sibling, error) {
	listType, err := model.Locate(treeLocator)
	if err != nil {
		return nil, err
	}
	if listType.Kind != types.KindList {
		return nil, ErrLocatorInvalid
	}

	log4Size := listType.Log4Size
	itemType := *listType.ItemType
	path := make([]Sibling, log4Size)

	curInd := leafIndex
	defaultValue := mgr.DefaultRoot(itemType)

	for layer := log4Size - 1; layer >= 0; layer-- {
		start := curInd - curInd%4
		var sibs Sibling
		sIdx := 0
		for i := uint64(0); i < 4; i++ {
			leafIdx := start + i
			if leafIdx == curInd {
				continue
			}
			var v scalar.Scalar
			if layer == log4Size-1 {
				leafLocator := treeLocator.Append(leafIdx)
				key := kvstore.LocalValueKey(cid, locatorKey(leafLocator), itemType.Kind == types.KindScalar)
				raw, ok, err := db.Get(key)
				if err != nil {
					return nil, err
				}
				if !ok {
					v = mgr.DefaultRoot(itemType)
				} else {
					var arr [32]byte
					copy(arr[:], raw)
					v, err = scalar.FromBytes(arr)
					if err != nil {
						return nil, err
					}
				}
			} else {
				off := auxOffset(layer)
				key := kvstore.LocalTreeAuxKey(cid, locatorKey(treeLocator), off+leafIdx)
				raw, ok, err := db.Get(key)
				if err != nil {
					return nil, err
				}
				if !ok {
					v = defaultValue
				} else {
					var arr [32]byte
					copy(arr[:], raw)
					v, err = scalar.FromBytes(arr)
					if err != nil {
						return nil, err
					}
				}
			}
			sibs[sIdx] = v
			sIdx++
		}
		path[log4Size-1-layer] = sibs
		defaultValue = zkp.Poseidon(defaultValue, defaultValue, defaultValue, defaultValue)
		curInd /= 4
	}
	return path, nil
}

