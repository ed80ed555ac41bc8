// Package chain implements block drafting, validation/application,
// extension and rollback, plus stake-weighted fork choice (spec §4.E).
//
// Grounded on internal/consensus/consensus.go (Config/DefaultConfig
// pattern, mutex-protected engine struct, CalculateBlockWeight/ProcessBlock
// shape — repurposed here from PoW difficulty+reputation weighting to
// PoS stake-weighted cumulative power) and internal/dag/dag.go (tip/
// cumulative-score bookkeeping, simplified from a multi-parent DAG to a
// single-parent chain, since spec.md's Block carries one ParentHash).
package chain

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/ziesha-go/ledger/internal/config"
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/mempool"
	"github.com/ziesha-go/ledger/internal/payout"
	"github.com/ziesha-go/ledger/internal/staking"
	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/common"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Consensus/validation errors (spec §7 "Consensus").
var (
	ErrNotAuthorizedProposer = errors.New("chain: address is not a registered validator")
	ErrInvalidParentHash     = errors.New("chain: block's parent_hash does not match the chain tip")
	ErrInvalidMerkleRoot     = errors.New("chain: block's block_root does not match its recomputed body root")
	ErrBlockTooLarge         = errors.New("chain: block body exceeds max_block_size/max_delta_size")
	ErrNoBlocksToRollback    = errors.New("chain: no rollback entry available")
	ErrRollbackAtGenesis     = errors.New("chain: cannot roll back the genesis block")
	ErrEmptyBlockSequence    = errors.New("chain: Extend requires at least one block")
	ErrInvalidRewardMarker   = errors.New("chain: body[0] is not the expected reward-marker transaction")
	ErrInvalidSlot           = errors.New("chain: block timestamp does not fall in a valid, advancing slot")
)

const chainJournalNamespace = "chain"

// Chain is the mutex-protected block-lifecycle engine (spec §5 "apply_block
// is atomic with respect to concurrent callers").
type Chain struct {
	mu  sync.Mutex
	db  kvstore.Store
	mgr *zkstate.Manager
	cfg *config.BlockchainConfig
	mp  *mempool.Mempool
}

// New returns a Chain engine bound to db, mgr, cfg and an optional
// mempool (nil is fine for a validation-only engine).
func New(db kvstore.Store, mgr *zkstate.Manager, cfg *config.BlockchainConfig, mp *mempool.Mempool) *Chain {
	return &Chain{db: db, mgr: mgr, cfg: cfg, mp: mp}
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		padded := make([]byte, 8)
		copy(padded, b)
		b = padded
	}
	return binary.LittleEndian.Uint64(b)
}

// Height returns the chain's current height.
func (c *Chain) Height() (uint64, error) {
	raw, ok, err := c.db.Get(kvstore.HeightKey())
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(raw), nil
}

// Tip returns the current chain tip's header, or the zero header at
// genesis (height 0, no blocks yet).
func (c *Chain) Tip() (*types.BlockHeader, error) {
	height, err := c.Height()
	if err != nil {
		return nil, err
	}
	return c.headerAt(height)
}

func (c *Chain) headerAt(height uint64) (*types.BlockHeader, error) {
	raw, ok, err := c.db.Get(kvstore.HeaderKey(height))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.BlockHeader{}, nil
	}
	return decodeHeader(raw)
}

// Power returns the cumulative stake-weighted power accumulated through
// height (spec §4.E fork choice: "higher cumulative power wins").
func (c *Chain) Power(height uint64) (uint64, error) {
	raw, ok, err := c.db.Get(kvstore.PowerKey(height))
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(raw), nil
}

// blockRoot hashes body's transactions pairwise via poseidon, duplicating
// the last element on an odd count at each level, until one root remains
// (spec §4.E "block_root: a poseidon Merkle root over the body's tx
// hashes, odd counts duplicate the last element").
func blockRoot(body []types.Transaction) scalar.Scalar {
	if len(body) == 0 {
		return zkp.Poseidon(scalar.Zero(), scalar.Zero())
	}
	level := make([]scalar.Scalar, len(body))
	for i, tx := range body {
		level[i] = txScalar(&tx)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]scalar.Scalar, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = zkp.Poseidon(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

// txScalar folds a transaction's nonce/fee/memo into the same message
// scalar txapply signs over, a stable-enough per-tx fingerprint for the
// block_root Merkle tree (exact wire-level transaction hashing is outside
// this module's scope per spec §1).
func txScalar(tx *types.Transaction) scalar.Scalar {
	h := zkp.Sha3_256([]byte(tx.Memo), encodeU64(uint64(tx.Nonce)), encodeU64(tx.Fee.Amount))
	return scalar.FromDigest(h)
}

func encodeHeader(h *types.BlockHeader) []byte {
	root := h.BlockRoot.Bytes()
	xb := h.PosProof.ValidatorPub.X.Bytes()
	out := make([]byte, 0, 32+8+32+8+32+1+4+len(h.PosProof.VrfProof))
	out = append(out, h.ParentHash[:]...)
	out = append(out, encodeU64(h.Number)...)
	out = append(out, root[:]...)
	out = append(out, encodeU64(h.PosProof.Timestamp)...)
	out = append(out, xb[:]...)
	if h.PosProof.ValidatorPub.Parity {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, encodeU64(uint64(len(h.PosProof.VrfProof)))...)
	out = append(out, h.PosProof.VrfProof...)
	return out
}

func decodeHeader(raw []byte) (*types.BlockHeader, error) {
	if len(raw) < 32+8+32+8+32+1+8 {
		return nil, errors.New("chain: corrupt header record")
	}
	h := &types.BlockHeader{}
	copy(h.ParentHash[:], raw[0:32])
	h.Number = decodeU64(raw[32:40])
	var rootB [32]byte
	copy(rootB[:], raw[40:72])
	root, err := scalar.FromBytes(rootB)
	if err != nil {
		return nil, err
	}
	h.BlockRoot = root
	h.PosProof.Timestamp = decodeU64(raw[72:80])
	var xB [32]byte
	copy(xB[:], raw[80:112])
	x, err := scalar.FromBytes(xB)
	if err != nil {
		return nil, err
	}
	h.PosProof.ValidatorPub.X = x
	h.PosProof.ValidatorPub.Parity = raw[112] != 0
	vrfLen := decodeU64(raw[113:121])
	if uint64(len(raw)) < 121+vrfLen {
		return nil, errors.New("chain: corrupt header record")
	}
	h.PosProof.VrfProof = append([]byte(nil), raw[121:121+vrfLen]...)
	return h, nil
}

// GetBlock reads the full block (header + body) at height.
func (c *Chain) GetBlock(height uint64) (*types.Block, error) {
	header, err := c.headerAt(height)
	if err != nil {
		return nil, err
	}
	raw, ok, err := c.db.Get(kvstore.BlockKey(height))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Block{Header: *header}, nil
	}
	body, err := decodeBody(raw)
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: *header, Body: body}, nil
}

// Draft assembles a candidate block extending the current tip: proposer
// must be a registered validator with nonzero stake (spec §4.E "the address
// authorized to propose for a slot is given by an external VRF/scheduler;
// this module only checks that the claimed proposer is a registered,
// staked validator" — full VRF-slot verification is the assumed external
// primitive per spec §1). Body[0] is a nominal reward-marker transaction
// (memo-only, no variant) that ApplyBlock recognizes and replaces with a
// payout.Run call rather than applying literally; this keeps the reward's
// presence visible in the drafted block without teaching txapply a ninth
// TxData variant.
func (c *Chain) Draft(proposer types.Address, vrfProof []byte, timestamp uint64) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, found, err := staking.GetValidator(c.db, proposer)
	if err != nil {
		return nil, err
	}
	if !found || v.Stake == 0 {
		return nil, ErrNotAuthorizedProposer
	}

	tip, err := c.Tip()
	if err != nil {
		return nil, err
	}
	height, err := c.Height()
	if err != nil {
		return nil, err
	}
	parentHash := tip.ComputeHash(zkp.Sha3_256)
	if height == 0 && tip.Number == 0 && tip.ParentHash.IsZero() {
		parentHash = types.Hash{}
	}

	var body []types.Transaction
	if c.mp != nil {
		budget := int(c.cfg.MaxBlockAndDeltaSize())
		if budget <= 0 || budget > 4096 {
			budget = 4096
		}
		body = append(body, rewardMarkerTx(proposer))
		for _, tx := range c.mp.DrainChain(budget) {
			body = append(body, *tx)
		}
	} else {
		body = append(body, rewardMarkerTx(proposer))
	}

	header := types.BlockHeader{
		ParentHash: parentHash,
		Number:     height + 1,
		BlockRoot:  blockRoot(body),
		PosProof: types.PosProof{
			Timestamp:    timestamp,
			ValidatorPub: proposer.PublicKey,
			VrfProof:     vrfProof,
		},
	}
	return &types.Block{Header: header, Body: body}, nil
}

// rewardMarkerTx is body[0] of every drafted block: an unsigned, memo-only
// system transaction that carries no variant effect of its own. ApplyBlock
// detects it by position and src-zero-ness and routes it to payout.Run
// instead of txapply.ApplyTx.
func rewardMarkerTx(proposer types.Address) types.Transaction {
	return types.Transaction{
		Data: types.RegularSend{},
		Sig:  types.Signature{Unsigned: true},
		Memo: "reward:" + addressKeyHex(proposer),
	}
}

func addressKeyHex(a types.Address) string {
	x := a.X.Bytes()
	return common.BytesToHex(x[:])
}

// validateRewardMarker checks that tx is the exact reward-marker
// transaction Draft would have synthesized for validator: unsigned,
// src-less, a variant-less RegularSend, memo'd to this validator (spec
// §4.E "that the first body tx is the reward tx with the expected
// amount" — the marker itself carries no Money; the actual payout amount
// is computed and credited separately by payout.Run).
func validateRewardMarker(tx types.Transaction, validator types.PublicKey) error {
	if tx.Src != nil {
		return ErrInvalidRewardMarker
	}
	if !tx.Sig.Unsigned {
		return ErrInvalidRewardMarker
	}
	send, ok := tx.Data.(types.RegularSend)
	if !ok || len(send.Entries) != 0 {
		return ErrInvalidRewardMarker
	}
	if tx.Memo != "reward:"+addressKeyHex(types.Address{PublicKey: validator}) {
		return ErrInvalidRewardMarker
	}
	return nil
}

// slotOf derives the slot index owned by timestamp, given the chain's
// configured start and slot duration (spec §4.E: "timestamp >= chain_start
// + slot*slot_duration"). ok is false when slot_duration is unconfigured
// or timestamp precedes chain_start — either makes the slot undefined,
// not merely slot 0.
func slotOf(cfg *config.BlockchainConfig, timestamp uint64) (uint64, bool) {
	dur := uint64(cfg.SlotDuration.Seconds())
	if dur == 0 {
		return 0, false
	}
	start := cfg.ChainStart.Unix()
	if start < 0 {
		start = 0
	}
	startU := uint64(start)
	if timestamp < startU {
		return 0, false
	}
	return (timestamp - startU) / dur, true
}

// ApplyBlock validates and applies block against the current tip, committing
// all state and chain-bookkeeping changes atomically via a Mirror (spec §4.E
// "apply_block verifies parent_hash and block_root, then applies every body
// tx via the apply procedure... commits the mirror as a unit").
func (c *Chain) ApplyBlock(block *types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, err := c.Height()
	if err != nil {
		return err
	}

	if block.Header.Number > 0 {
		tip, err := c.Tip()
		if err != nil {
			return err
		}
		parentHash := tip.ComputeHash(zkp.Sha3_256)
		if tip.Number == 0 && tip.ParentHash.IsZero() && height == 0 {
			parentHash = types.Hash{}
		}
		if block.Header.ParentHash != parentHash {
			return ErrInvalidParentHash
		}
		if block.Header.Number != height+1 {
			return ErrInvalidParentHash
		}

		slot, ok := slotOf(c.cfg, block.Header.PosProof.Timestamp)
		if !ok {
			return ErrInvalidSlot
		}
		if height > 0 {
			parentSlot, ok := slotOf(c.cfg, tip.PosProof.Timestamp)
			if !ok || slot <= parentSlot {
				return ErrInvalidSlot
			}
		}
	}
	if !block.Header.BlockRoot.Equal(blockRoot(block.Body)) {
		return ErrInvalidMerkleRoot
	}
	if uint64(len(block.Body)) > c.cfg.MaxBlockAndDeltaSize() {
		return ErrBlockTooLarge
	}
	if len(block.Body) == 0 {
		return ErrInvalidRewardMarker
	}
	if err := validateRewardMarker(block.Body[0], block.Header.PosProof.ValidatorPub); err != nil {
		return err
	}

	mirror := kvstore.NewMirror(c.db)
	policy := c.cfg.Policy()

	var feeSum uint64
	for i, tx := range block.Body {
		if i == 0 {
			continue
		}
		treasuryBefore, err := txapply.GetBalance(mirror, types.Treasury, c.cfg.FeeToken)
		if err != nil {
			return err
		}
		txCopy := tx
		if err := txapply.ApplyTx(mirror, c.mgr, policy, &txCopy, false); err != nil {
			return err
		}
		treasuryAfter, err := txapply.GetBalance(mirror, types.Treasury, c.cfg.FeeToken)
		if err != nil {
			return err
		}
		if treasuryAfter > treasuryBefore {
			feeSum += treasuryAfter - treasuryBefore
		}
	}

	validator := block.Header.PosProof.ValidatorPub
	treasurySupply, err := txapply.GetBalance(mirror, types.Treasury, c.cfg.FeeToken)
	if err != nil {
		return err
	}
	if _, err := payout.Run(mirror, c.mgr, policy, c.cfg, types.Address{PublicKey: validator}, treasurySupply, feeSum); err != nil {
		return err
	}

	writtenKeys, before, beforePresent, err := snapshotWrites(c.db, mirror)
	if err != nil {
		return err
	}
	newHeight := block.Header.Number
	if err := zkstate.RecordJournal(c.db, chainJournalNamespace, newHeight, writtenKeys, before, beforePresent); err != nil {
		return err
	}

	if err := mirror.Commit(); err != nil {
		return err
	}

	bodyRaw, err := encodeBody(block.Body)
	if err != nil {
		return err
	}
	prevPower, err := c.Power(height)
	if err != nil {
		return err
	}
	power, err := validatorPower(c.db, types.Address{PublicKey: validator})
	if err != nil {
		return err
	}

	rootBytes := block.Header.BlockRoot.Bytes()
	ops := []kvstore.WriteOp{
		kvstore.Put(kvstore.BlockKey(newHeight), bodyRaw),
		kvstore.Put(kvstore.HeaderKey(newHeight), encodeHeader(&block.Header)),
		kvstore.Put(kvstore.MerkleKey(newHeight), rootBytes[:]),
		kvstore.Put(kvstore.PowerKey(newHeight), encodeU64(prevPower+power)),
		kvstore.Put(kvstore.HeightKey(), encodeU64(newHeight)),
	}
	if err := c.db.Update(ops); err != nil {
		return err
	}

	if c.mp != nil {
		c.mp.RemoveMined(nonRewardBody(block.Body))
	}
	return nil
}

func nonRewardBody(body []types.Transaction) []*types.Transaction {
	if len(body) == 0 {
		return nil
	}
	out := make([]*types.Transaction, 0, len(body)-1)
	for i := 1; i < len(body); i++ {
		tx := body[i]
		out = append(out, &tx)
	}
	return out
}

// validatorPower is the chain's fork-choice weight contribution of a single
// block: the proposing validator's aggregate stake (spec §4.E "cumulative
// power is the running sum of each block's proposer's stake at proposal
// time").
func validatorPower(db kvstore.Store, validator types.Address) (uint64, error) {
	return staking.GetStake(db, validator)
}

// snapshotWrites reads, from the base store, the prior value (or absence)
// of every key the mirror's overlay touched, the input RecordJournal needs
// to build an undo record (spec §4.C).
func snapshotWrites(base kvstore.Store, mirror *kvstore.Mirror) ([]string, map[string]kvstore.Pair, map[string]bool, error) {
	ops := mirror.ToOps()
	keys := make([]string, len(ops))
	before := make(map[string]kvstore.Pair, len(ops))
	beforePresent := make(map[string]bool, len(ops))
	for i, op := range ops {
		keys[i] = op.Key
		raw, ok, err := base.Get(op.Key)
		if err != nil {
			return nil, nil, nil, err
		}
		beforePresent[op.Key] = ok
		if ok {
			before[op.Key] = kvstore.Pair{Key: op.Key, Value: raw}
		}
	}
	return keys, before, beforePresent, nil
}

// Rollback undoes the block at the chain's current height, restoring every
// key it touched to its prior value and decrementing height (spec §4.E
// "rolling back a block is the inverse of applying it: restore the chain-
// level journal entry for the current height").
func (c *Chain) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, err := c.Height()
	if err != nil {
		return err
	}
	if height == 0 {
		return ErrRollbackAtGenesis
	}

	if err := zkstate.Rollback(c.db, chainJournalNamespace, height); err != nil {
		if errors.Is(err, zkstate.ErrNoRollbackAvailable) {
			return ErrNoBlocksToRollback
		}
		return err
	}

	return c.db.Update([]kvstore.WriteOp{
		kvstore.Remove(kvstore.BlockKey(height)),
		kvstore.Remove(kvstore.HeaderKey(height)),
		kvstore.Remove(kvstore.MerkleKey(height)),
		kvstore.Remove(kvstore.PowerKey(height)),
		kvstore.Put(kvstore.HeightKey(), encodeU64(height-1)),
	})
}

// Extend rolls the chain forward through blocks in order, rolling back
// whatever prefix already applied if any block fails partway (spec §4.E
// "extend applies a candidate sequence wholesale or not at all"). The
// caller is responsible for comparing the resulting cumulative power
// against any competing branch before calling Extend on the losing one.
func (c *Chain) Extend(blocks []*types.Block) error {
	if len(blocks) == 0 {
		return ErrEmptyBlockSequence
	}
	applied := 0
	for _, b := range blocks {
		if err := c.ApplyBlock(b); err != nil {
			for ; applied > 0; applied-- {
				_ = c.Rollback()
			}
			return err
		}
		applied++
	}
	return nil
}

// HeavierBranch reports whether candidatePower, a candidate branch's
// cumulative power, exceeds the current chain's power at its own height — the
// fork-choice rule (spec §4.E "higher cumulative power wins; ties keep the
// existing chain").
func (c *Chain) HeavierBranch(candidatePower uint64) (bool, error) {
	height, err := c.Height()
	if err != nil {
		return false, err
	}
	currentPower, err := c.Power(height)
	if err != nil {
		return false, err
	}
	return candidatePower > currentPower, nil
}
