// Package config holds the BlockchainConfig value threaded by reference
// into every chain, mempool, MPN and payout operation (spec.md §9:
// "global state is carried as an explicit BlockchainConfig value passed
// by reference, never package-level mutable state").
package config

import (
	"time"

	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/pkg/types"
)

// BlockchainConfig is the fixed-at-genesis parameter set every component
// reads from; nothing in this tree keeps its own copy of these constants
// (spec.md §6 "Fixed constants to reproduce").
type BlockchainConfig struct {
	// MaxBlockSize and MaxDeltaSize bound a drafted block's total body
	// size and the total size of state deltas it may carry; a draft
	// takes the stricter (smaller) of the two (Open Question, resolved:
	// spec.md leaves the interaction of the two caps unspecified when
	// they disagree, so Draft takes their minimum rather than picking
	// one as authoritative).
	MaxBlockSize uint64
	MaxDeltaSize uint64

	MaxMemoLength          int
	FeeToken               types.TokenId
	MaxValidatorCommission uint16
	RewardRatio            uint64

	ReplaceTxThreshold   time.Duration
	PerZieshaMempoolUnit uint64
	MaxSenderSlots        int
	MaxRollbacks          int

	SlotDuration time.Duration
	SlotsPerEpoch uint64
	ChainStart    time.Time

	Log4TreeSize      uint8
	Log4TokenTreeSize uint8
	Log4BatchSize     uint8

	// TxMaxTimeAlive/TxMaxTimeRemember are named by spec.md's open
	// question on mempool.refresh; the eviction routine that would
	// consume them is intentionally a stub (internal/mempool.Refresh),
	// matching the source's own partially-wired mempool.refresh.
	TxMaxTimeAlive    time.Duration
	TxMaxTimeRemember time.Duration
}

// Policy derives the txapply.Policy view of this configuration, so the
// apply procedure reads its fee/memo/commission/MPN-capacity limits from
// the same single source every other component uses.
func (c *BlockchainConfig) Policy() txapply.Policy {
	return txapply.Policy{
		FeeToken:               c.FeeToken,
		MaxMemoLength:          c.MaxMemoLength,
		MaxValidatorCommission: c.MaxValidatorCommission,
		LogPaymentCapacity:     int(c.Log4BatchSize),
	}
}

// MaxBlockAndDeltaSize returns the stricter of the two body-size caps, the
// bound Draft actually enforces.
func (c *BlockchainConfig) MaxBlockAndDeltaSize() uint64 {
	if c.MaxDeltaSize < c.MaxBlockSize {
		return c.MaxDeltaSize
	}
	return c.MaxBlockSize
}

// DefaultConfig returns the constants fixed by spec.md §6.
func DefaultConfig() *BlockchainConfig {
	return &BlockchainConfig{
		MaxBlockSize:           1 << 20,
		MaxDeltaSize:           1 << 18,
		MaxMemoLength:          64,
		FeeToken:               types.Ziesha,
		MaxValidatorCommission: 230,
		RewardRatio:            10_000_000,
		ReplaceTxThreshold:     60 * time.Second,
		PerZieshaMempoolUnit:   1_000_000_000,
		MaxSenderSlots:         1000,
		MaxRollbacks:           5,
		SlotDuration:           10 * time.Second,
		SlotsPerEpoch:          1000,
		Log4TreeSize:           15,
		Log4TokenTreeSize:      3,
		Log4BatchSize:          4,
		TxMaxTimeAlive:         1 * time.Hour,
		TxMaxTimeRemember:      24 * time.Hour,
	}
}
