package chain

import (
	"sort"
	"testing"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/internal/wallet"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// draftWithTxs drafts a block against c's current tip, appends extra body
// txs past the reward marker, and recomputes block_root over the full
// body — a way to hand ApplyBlock a body the mempool would never have
// assembled (a duplicate nonce, an over-spend), without reaching into any
// unexported package to build transactions by hand.
func draftWithTxs(t *testing.T, c *Chain, validator types.Address, ts uint64, extra ...types.Transaction) *types.Block {
	t.Helper()
	block, err := c.Draft(validator, nil, ts)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	block.Body = append(block.Body, extra...)
	block.Header.BlockRoot = blockRoot(block.Body)
	return block
}

func mustSign(t *testing.T, b *wallet.TxBuilder, tx *types.Transaction) {
	t.Helper()
	if err := b.Sign(tx); err != nil {
		t.Fatalf("Sign: %v", err)
	}
}

// TestSimpleTransferDuplicateNonceRejectedThenSecondTransfer is spec §8's
// E1: a transfer moves funds net of fee, a replayed nonce is rejected
// outright, and a second transfer at the next nonce lands correctly.
func TestSimpleTransferDuplicateNonceRejectedThenSecondTransfer(t *testing.T) {
	c, validator := newTestChain(t)
	alice, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	bob, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	if err := txapply.SetBalance(c.db, alice.Address(), types.Ziesha, 10_000); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	send := func(nonce uint32, amount uint64) types.Transaction {
		tx := types.Transaction{
			Nonce: nonce,
			Data: types.RegularSend{Entries: []types.SendEntry{
				{Dst: bob.Address(), Money: types.Money{TokenId: types.Ziesha, Amount: amount}},
			}},
			Fee: types.Money{TokenId: types.Ziesha, Amount: 300},
		}
		mustSign(t, alice, &tx)
		return tx
	}

	block1 := draftWithTxs(t, c, validator, 10, send(1, 2700))
	if err := c.ApplyBlock(block1); err != nil {
		t.Fatalf("ApplyBlock(first send): %v", err)
	}
	if bal, _ := txapply.GetBalance(c.db, alice.Address(), types.Ziesha); bal != 7000 {
		t.Errorf("alice balance after first send: got %d, want 7000", bal)
	}
	if bal, _ := txapply.GetBalance(c.db, bob.Address(), types.Ziesha); bal != 2700 {
		t.Errorf("bob balance after first send: got %d, want 2700", bal)
	}

	// Replaying the already-spent nonce must be rejected and must not
	// move any balance.
	replay := draftWithTxs(t, c, validator, 20, send(1, 2700))
	if err := c.ApplyBlock(replay); err != txapply.ErrInvalidTransactionNonce {
		t.Errorf("replayed nonce: got %v, want ErrInvalidTransactionNonce", err)
	}
	if bal, _ := txapply.GetBalance(c.db, alice.Address(), types.Ziesha); bal != 7000 {
		t.Errorf("alice balance after rejected replay: got %d, want unchanged 7000", bal)
	}

	block2 := draftWithTxs(t, c, validator, 30, send(2, 2700))
	if err := c.ApplyBlock(block2); err != nil {
		t.Fatalf("ApplyBlock(second send): %v", err)
	}
	if bal, _ := txapply.GetBalance(c.db, alice.Address(), types.Ziesha); bal != 4000 {
		t.Errorf("alice balance after second send: got %d, want 4000", bal)
	}
	if bal, _ := txapply.GetBalance(c.db, bob.Address(), types.Ziesha); bal != 5400 {
		t.Errorf("bob balance after second send: got %d, want 5400", bal)
	}
}

// TestInsufficientBalanceRejectsWholeBlockWithoutPartialEffect is spec
// §8's E2: an over-spend fails the whole block atomically; the would-be
// recipient never sees a partial credit.
func TestInsufficientBalanceRejectsWholeBlockWithoutPartialEffect(t *testing.T) {
	c, validator := newTestChain(t)
	alice, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	bob, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	if err := txapply.SetBalance(c.db, alice.Address(), types.Ziesha, 10_000); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	tx := types.Transaction{
		Nonce: 1,
		Data: types.RegularSend{Entries: []types.SendEntry{
			{Dst: bob.Address(), Money: types.Money{TokenId: types.Ziesha, Amount: 9701}},
		}},
		Fee: types.Money{TokenId: types.Ziesha, Amount: 300},
	}
	mustSign(t, alice, &tx)

	block := draftWithTxs(t, c, validator, 10, tx)
	if err := c.ApplyBlock(block); err != txapply.ErrBalanceInsufficient {
		t.Errorf("over-spend: got %v, want ErrBalanceInsufficient", err)
	}

	height, err := c.Height()
	if err != nil || height != 0 {
		t.Errorf("a rejected block must not advance height: got %d, %v", height, err)
	}
	if bal, _ := txapply.GetBalance(c.db, bob.Address(), types.Ziesha); bal != 0 {
		t.Errorf("bob balance after rejected over-spend: got %d, want 0", bal)
	}
}

// TestSelfSendOnlyDeductsFee is spec §8's E3: a send back to oneself
// moves no money, only the fee leaves the account — the internal/txapply
// self-send guard exercised end to end through a real block.
func TestSelfSendOnlyDeductsFee(t *testing.T) {
	c, validator := newTestChain(t)
	alice, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	if err := txapply.SetBalance(c.db, alice.Address(), types.Ziesha, 9600); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	tx := types.Transaction{
		Nonce: 1,
		Data: types.RegularSend{Entries: []types.SendEntry{
			{Dst: alice.Address(), Money: types.Money{TokenId: types.Ziesha, Amount: 100}},
		}},
		Fee: types.Money{TokenId: types.Ziesha, Amount: 200},
	}
	mustSign(t, alice, &tx)

	block := draftWithTxs(t, c, validator, 10, tx)
	if err := c.ApplyBlock(block); err != nil {
		t.Fatalf("ApplyBlock(self-send): %v", err)
	}
	if bal, _ := txapply.GetBalance(c.db, alice.Address(), types.Ziesha); bal != 9400 {
		t.Errorf("alice balance after self-send: got %d, want 9400 (fee only)", bal)
	}
}

// checksum renders the entire KV backend's contents into one comparable
// digest: every pair, sorted by key, folded through SHA3-256.
func checksum(t *testing.T, store kvstore.Store) [32]byte {
	t.Helper()
	pairs, err := store.Pairs("")
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	var flat []byte
	for _, p := range pairs {
		flat = append(flat, []byte(p.Key)...)
		flat = append(flat, 0)
		flat = append(flat, p.Value...)
		flat = append(flat, 0)
	}
	return zkp.Sha3_256(flat)
}

// TestRollbackThenReapplyMatchesPriorChecksum is spec §8's E4: applying
// three blocks, rolling the last one back, then reapplying an identical
// block must return the store to the exact state it was in before the
// rollback.
func TestRollbackThenReapplyMatchesPriorChecksum(t *testing.T) {
	c, validator := newTestChain(t)
	alice, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	bob, err := wallet.New()
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	if err := txapply.SetBalance(c.db, alice.Address(), types.Ziesha, 10_000); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	send := func(nonce uint32) types.Transaction {
		tx := types.Transaction{
			Nonce: nonce,
			Data: types.RegularSend{Entries: []types.SendEntry{
				{Dst: bob.Address(), Money: types.Money{TokenId: types.Ziesha, Amount: 100}},
			}},
			Fee: types.Money{TokenId: types.Ziesha, Amount: 10},
		}
		mustSign(t, alice, &tx)
		return tx
	}

	for i, nonce := range []uint32{1, 2} {
		block := draftWithTxs(t, c, validator, uint64(10*(i+1)), send(nonce))
		if err := c.ApplyBlock(block); err != nil {
			t.Fatalf("ApplyBlock(%d): %v", i, err)
		}
	}

	third := draftWithTxs(t, c, validator, 30, send(3))
	if err := c.ApplyBlock(third); err != nil {
		t.Fatalf("ApplyBlock(third): %v", err)
	}
	want := checksum(t, c.db)

	if err := c.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	replay := draftWithTxs(t, c, validator, 30, send(3))
	if err := c.ApplyBlock(replay); err != nil {
		t.Fatalf("ApplyBlock(replay of third): %v", err)
	}
	got := checksum(t, c.db)

	if got != want {
		t.Errorf("checksum after rollback+reapply mismatches the original: got %x, want %x", got, want)
	}
}

// TestZeroedBlockRootRejected and TestZeroedParentHashRejected are spec
// §8's E6: zeroing a valid block's block_root or parent_hash must be
// caught by the respective structural check, not silently accepted or
// misattributed to the other check.
func TestZeroedBlockRootRejected(t *testing.T) {
	c, validator := newTestChain(t)

	block, err := c.Draft(validator, nil, 10)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	block.Header.BlockRoot = scalar.Zero()

	if err := c.ApplyBlock(block); err != ErrInvalidMerkleRoot {
		t.Errorf("zeroed block_root: got %v, want ErrInvalidMerkleRoot", err)
	}
}

func TestZeroedParentHashRejected(t *testing.T) {
	c, validator := newTestChain(t)

	first, err := c.Draft(validator, nil, 10)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if err := c.ApplyBlock(first); err != nil {
		t.Fatalf("ApplyBlock(first): %v", err)
	}

	second, err := c.Draft(validator, nil, 20)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	second.Header.ParentHash = types.Hash{}

	if err := c.ApplyBlock(second); err != ErrInvalidParentHash {
		t.Errorf("zeroed parent_hash: got %v, want ErrInvalidParentHash", err)
	}
}
