// Package mempool implements the chain's pending-transaction pool: two
// nonce-ordered FIFO bucket maps, one keyed by on-chain Address (spec §4.F
// "chain-sourced"), one keyed by MpnAddress slot index ("MPN-sourced"),
// each with balance-proportional admission and a reject-set that prevents
// a dropped tx from being silently reprocessed.
package mempool

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ziesha-go/ledger/internal/config"
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/pkg/common"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Admission errors (spec §7 mempool "translates errors into a
// drop-and-record-rejection").
var (
	ErrSignatureInvalid   = errors.New("mempool: signature verification failed")
	ErrNonceGap           = errors.New("mempool: nonce is not consecutive with the pending bucket")
	ErrSenderCapExceeded  = errors.New("mempool: sender's admission cap exceeded")
	ErrUnknownMpnAccount  = errors.New("mempool: mpn-sourced tx references a non-existent account")
	ErrNonZieshaSlotZero  = errors.New("mempool: mpn-sourced tx targets a non-Ziesha slot-0 token")
	ErrRejected           = errors.New("mempool: transaction was previously rejected")
)

// Config holds the mempool's tunable admission parameters (spec §6 "Fixed
// constants": replace_tx_threshold, per-Ziesha-mempool-unit).
type Config struct {
	ReplaceTxThreshold   time.Duration
	PerZieshaMempoolUnit uint64
	MaxSenderSlots       int
	FeeToken             types.TokenId

	// TxMaxTimeAlive/TxMaxTimeRemember are specified per spec §9's open
	// question on mempool.refresh, but the age-based eviction routine
	// itself is intentionally left as a stub (see Refresh below) — the
	// source's own mempool.refresh is only partially wired.
	TxMaxTimeAlive    time.Duration
	TxMaxTimeRemember time.Duration
}

// DefaultConfig returns the spec's fixed mempool constants.
func DefaultConfig() *Config {
	return &Config{
		ReplaceTxThreshold:   60 * time.Second,
		PerZieshaMempoolUnit: 1_000_000_000,
		MaxSenderSlots:       1000,
		FeeToken:             types.Ziesha,
		TxMaxTimeAlive:       1 * time.Hour,
		TxMaxTimeRemember:    24 * time.Hour,
	}
}

type entry struct {
	tx      *types.Transaction
	addedAt time.Time
}

type chainBucket struct {
	entries []entry
}

type mpnBucket struct {
	entries []entry
}

// Mempool is the dual-bucket admission pool (spec §4.F).
type Mempool struct {
	mu           sync.Mutex
	cfg          *Config
	chainBuckets map[string]*chainBucket
	mpnBuckets   map[uint64]*mpnBucket
	rejected     map[string]struct{}
}

// FromBlockchainConfig derives a mempool Config from the chain-wide
// BlockchainConfig, so callers need not keep two parallel parameter sets
// (spec.md §9: BlockchainConfig is passed by reference into every chain
// operation).
func FromBlockchainConfig(bc *config.BlockchainConfig) *Config {
	return &Config{
		ReplaceTxThreshold:   bc.ReplaceTxThreshold,
		PerZieshaMempoolUnit: bc.PerZieshaMempoolUnit,
		MaxSenderSlots:       bc.MaxSenderSlots,
		FeeToken:             bc.FeeToken,
		TxMaxTimeAlive:       bc.TxMaxTimeAlive,
		TxMaxTimeRemember:    bc.TxMaxTimeRemember,
	}
}

// New returns an empty Mempool.
func New(cfg *Config) *Mempool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Mempool{
		cfg:          cfg,
		chainBuckets: make(map[string]*chainBucket),
		mpnBuckets:   make(map[uint64]*mpnBucket),
		rejected:     make(map[string]struct{}),
	}
}

func addressKey(a types.Address) string {
	x := a.X.Bytes()
	if a.Parity {
		return "1" + common.BytesToHex(x[:])
	}
	return "0" + common.BytesToHex(x[:])
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// txKey content-addresses a pending transaction for dedup/rejection
// bookkeeping purposes only (not the chain's content-addressing scheme
// for contracts/tokens).
func txKey(tx *types.Transaction) string {
	body, _ := json.Marshal(tx)
	h := zkp.Sha3_256(body)
	return common.BytesToHex(h[:])
}

func verifyTxSignature(src types.Address, tx *types.Transaction) error {
	if tx.Sig.Unsigned {
		return ErrSignatureInvalid
	}
	h := zkp.Sha3_256([]byte(tx.Memo), encodeU64(uint64(tx.Nonce)), encodeU64(tx.Fee.Amount))
	msg := scalar.FromDigest(h)
	pk := zkp.PublicKeyFromCompressed(src.X, src.Parity)
	ok, err := zkp.Verify(pk, msg, zkp.SignatureFromBytes(tx.Sig.Bytes))
	if err != nil || !ok {
		return ErrSignatureInvalid
	}
	return nil
}

func senderCap(db kvstore.Store, addr types.Address, perUnit uint64, maxSlots int) (int, error) {
	bal, err := txapply.GetBalance(db, addr, types.Ziesha)
	if err != nil {
		return 0, err
	}
	cap := int(bal / perUnit)
	if cap < 1 {
		cap = 1
	}
	if cap > maxSlots {
		cap = maxSlots
	}
	return cap, nil
}

// AddChainTx admits a chain-sourced transaction (spec §4.F "add_*"):
// refreshes the bucket against the account's current nonce, enforces
// nonce-consecutiveness (bypassed-by-truncation for local submissions),
// applies the replace_tx_threshold front-of-bucket replacement policy,
// and checks the balance-proportional admission cap.
func (mp *Mempool) AddChainTx(db kvstore.Store, tx *types.Transaction, isLocal bool) error {
	if tx.Src == nil {
		return ErrSignatureInvalid
	}
	src := *tx.Src
	key := txKey(tx)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, rejected := mp.rejected[key]; rejected && !isLocal {
		return ErrRejected
	}
	delete(mp.rejected, key)

	if err := verifyTxSignature(src, tx); err != nil {
		mp.rejected[key] = struct{}{}
		return err
	}

	accountNonce, err := txapply.GetNonce(db, src)
	if err != nil {
		return err
	}

	addr := addressKey(src)
	bucket, ok := mp.chainBuckets[addr]
	if !ok {
		bucket = &chainBucket{}
		mp.chainBuckets[addr] = bucket
	}

	for len(bucket.entries) > 0 && bucket.entries[0].tx.Nonce <= accountNonce {
		bucket.entries = bucket.entries[1:]
	}

	expected := accountNonce + 1
	if len(bucket.entries) > 0 {
		expected = bucket.entries[len(bucket.entries)-1].tx.Nonce + 1
	}

	if tx.Nonce != expected {
		switch {
		case isLocal:
			trimmed := make([]entry, 0, len(bucket.entries))
			for _, e := range bucket.entries {
				if e.tx.Nonce < tx.Nonce {
					trimmed = append(trimmed, e)
				}
			}
			bucket.entries = trimmed
		case len(bucket.entries) > 0 && bucket.entries[0].tx.Nonce == tx.Nonce &&
			time.Since(bucket.entries[0].addedAt) > mp.cfg.ReplaceTxThreshold:
			bucket.entries = nil
		default:
			mp.rejected[key] = struct{}{}
			return ErrNonceGap
		}
	}

	cap, err := senderCap(db, src, mp.cfg.PerZieshaMempoolUnit, mp.cfg.MaxSenderSlots)
	if err != nil {
		return err
	}
	if len(bucket.entries) >= cap {
		mp.rejected[key] = struct{}{}
		return ErrSenderCapExceeded
	}

	bucket.entries = append(bucket.entries, entry{tx: tx, addedAt: time.Now()})
	return nil
}

// AddMpnTx admits an MPN-sourced transaction into addr's bucket. The
// caller resolves account existence and slot-0 token identity against
// the MPN contract's state (internal/mpn), since the mempool itself holds
// no zk-state references (spec §4.F "reject MPN-sourced txs from
// non-existent accounts or from slot-0 tokens that are not Ziesha").
func (mp *Mempool) AddMpnTx(addr types.MpnAddress, accountExists, slotZeroIsZiesha bool, tx *types.Transaction) error {
	if !accountExists {
		return ErrUnknownMpnAccount
	}
	if !slotZeroIsZiesha {
		return ErrNonZieshaSlotZero
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	bucket, ok := mp.mpnBuckets[addr.Index]
	if !ok {
		bucket = &mpnBucket{}
		mp.mpnBuckets[addr.Index] = bucket
	}
	expected := uint32(1)
	if len(bucket.entries) > 0 {
		expected = bucket.entries[len(bucket.entries)-1].tx.Nonce + 1
	}
	if tx.Nonce != expected {
		return ErrNonceGap
	}
	bucket.entries = append(bucket.entries, entry{tx: tx, addedAt: time.Now()})
	return nil
}

// DrainChain returns up to maxCount pending chain-sourced transactions,
// senders visited in a deterministic (address-lexicographic) order and
// each sender's own txs already in ascending-nonce order, for block
// drafting's greedy per-sender selection (spec §4.E Draft step 2).
func (mp *Mempool) DrainChain(maxCount int) []*types.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	keys := make([]string, 0, len(mp.chainBuckets))
	for k := range mp.chainBuckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*types.Transaction, 0, maxCount)
	for _, k := range keys {
		for _, e := range mp.chainBuckets[k].entries {
			if len(out) >= maxCount {
				return out
			}
			out = append(out, e.tx)
		}
	}
	return out
}

// DrainMpn returns up to maxCount pending MPN-sourced transactions for a
// single MPN address slot, in nonce order.
func (mp *Mempool) DrainMpn(index uint64, maxCount int) []*types.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	bucket, ok := mp.mpnBuckets[index]
	if !ok {
		return nil
	}
	n := len(bucket.entries)
	if n > maxCount {
		n = maxCount
	}
	out := make([]*types.Transaction, n)
	for i := 0; i < n; i++ {
		out[i] = bucket.entries[i].tx
	}
	return out
}

// RemoveMined drops every given transaction from its bucket once a block
// carrying it has been applied.
func (mp *Mempool) RemoveMined(txs []*types.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mined := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		mined[txKey(tx)] = struct{}{}
	}
	for _, bucket := range mp.chainBuckets {
		bucket.entries = filterOut(bucket.entries, mined)
	}
	for _, bucket := range mp.mpnBuckets {
		bucket.entries = filterOut(bucket.entries, mined)
	}
}

func filterOut(entries []entry, mined map[string]struct{}) []entry {
	out := entries[:0]
	for _, e := range entries {
		if _, done := mined[txKey(e.tx)]; !done {
			out = append(out, e)
		}
	}
	return out
}

// Refresh is the age-based eviction extension point named by spec §9's
// open question (tx_max_time_alive / tx_max_time_remember): the source's
// own mempool.refresh was only a partially-wired stub, and this mirrors
// that rather than inventing an eviction policy the spec does not
// actually specify.
func (mp *Mempool) Refresh(now time.Time) {
	_ = now
}
