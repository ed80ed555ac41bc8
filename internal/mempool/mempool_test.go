package mempool

import (
	"testing"

	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

func testAddr(seed uint64) types.Address {
	return types.Address{PublicKey: types.PublicKey{X: scalar.FromUint64(seed), Parity: seed%2 == 0}}
}

func unsignedTx(src types.Address, nonce uint32) *types.Transaction {
	return &types.Transaction{
		Src:   &src,
		Nonce: nonce,
		Data:  types.RegularSend{},
		Sig:   types.Signature{Unsigned: true},
	}
}

func TestAddChainTxRejectsUnsigned(t *testing.T) {
	db := storage.NewRamStore()
	mp := New(DefaultConfig())
	src := testAddr(1)

	if err := mp.AddChainTx(db, unsignedTx(src, 1), false); err != ErrSignatureInvalid {
		t.Errorf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestAddChainTxRejectsSystemSourcedTx(t *testing.T) {
	db := storage.NewRamStore()
	mp := New(DefaultConfig())

	tx := &types.Transaction{Data: types.RegularSend{}, Sig: types.Signature{Unsigned: true}}
	if err := mp.AddChainTx(db, tx, false); err != ErrSignatureInvalid {
		t.Errorf("expected ErrSignatureInvalid for a system-sourced tx, got %v", err)
	}
}

func TestAddChainTxRememberedAsRejectedUnlessLocal(t *testing.T) {
	db := storage.NewRamStore()
	mp := New(DefaultConfig())
	src := testAddr(1)
	tx := unsignedTx(src, 1)

	if err := mp.AddChainTx(db, tx, false); err != ErrSignatureInvalid {
		t.Fatalf("first AddChainTx: %v", err)
	}
	if err := mp.AddChainTx(db, tx, false); err != ErrRejected {
		t.Errorf("a previously rejected tx should be reported as ErrRejected on non-local resubmission, got %v", err)
	}
	if err := mp.AddChainTx(db, tx, true); err == ErrRejected {
		t.Error("a local resubmission should bypass the reject-set and reattempt admission")
	}
}

func TestDrainChainOrdersBySenderThenNonce(t *testing.T) {
	mp := New(DefaultConfig())
	a, b := testAddr(10), testAddr(20)

	mp.chainBuckets = map[string]*chainBucket{
		addressKey(a): {entries: []entry{{tx: unsignedTx(a, 1)}, {tx: unsignedTx(a, 2)}}},
		addressKey(b): {entries: []entry{{tx: unsignedTx(b, 1)}}},
	}

	out := mp.DrainChain(10)
	if len(out) != 3 {
		t.Fatalf("expected 3 drained txs, got %d", len(out))
	}
	wantSrc := []types.Address{a, a, b}
	wantNonce := []uint32{1, 2, 1}
	for i := range out {
		if !out[i].Src.Equal(wantSrc[i]) || out[i].Nonce != wantNonce[i] {
			t.Errorf("drained tx %d: got nonce %d from an unexpected sender order, want nonce %d", i, out[i].Nonce, wantNonce[i])
		}
	}
}

func TestDrainChainRespectsMaxCount(t *testing.T) {
	mp := New(DefaultConfig())
	a := testAddr(10)
	mp.chainBuckets = map[string]*chainBucket{
		addressKey(a): {entries: []entry{{tx: unsignedTx(a, 1)}, {tx: unsignedTx(a, 2)}, {tx: unsignedTx(a, 3)}}},
	}

	out := mp.DrainChain(2)
	if len(out) != 2 {
		t.Fatalf("expected 2 drained txs under maxCount, got %d", len(out))
	}
}

func TestAddMpnTxRejectsUnknownAccount(t *testing.T) {
	mp := New(DefaultConfig())
	tx := &types.Transaction{Nonce: 1, Data: types.RegularSend{}, Sig: types.Signature{Unsigned: true}}
	if err := mp.AddMpnTx(types.MpnAddress{Index: 0}, false, true, tx); err != ErrUnknownMpnAccount {
		t.Errorf("expected ErrUnknownMpnAccount, got %v", err)
	}
}

func TestAddMpnTxRejectsNonZieshaSlotZero(t *testing.T) {
	mp := New(DefaultConfig())
	tx := &types.Transaction{Nonce: 1, Data: types.RegularSend{}, Sig: types.Signature{Unsigned: true}}
	if err := mp.AddMpnTx(types.MpnAddress{Index: 0}, true, false, tx); err != ErrNonZieshaSlotZero {
		t.Errorf("expected ErrNonZieshaSlotZero, got %v", err)
	}
}

func TestAddMpnTxAdmitsInNonceOrder(t *testing.T) {
	mp := New(DefaultConfig())
	addr := types.MpnAddress{Index: 7}

	tx1 := &types.Transaction{Nonce: 1, Data: types.RegularSend{}, Sig: types.Signature{Unsigned: true}}
	if err := mp.AddMpnTx(addr, true, true, tx1); err != nil {
		t.Fatalf("AddMpnTx(nonce=1): %v", err)
	}
	tx3 := &types.Transaction{Nonce: 3, Data: types.RegularSend{}, Sig: types.Signature{Unsigned: true}}
	if err := mp.AddMpnTx(addr, true, true, tx3); err != ErrNonceGap {
		t.Errorf("expected ErrNonceGap for a skipped nonce, got %v", err)
	}

	out := mp.DrainMpn(addr.Index, 10)
	if len(out) != 1 {
		t.Fatalf("expected 1 admitted mpn tx, got %d", len(out))
	}
}

func TestRemoveMinedDropsMatchingEntriesFromBothBucketKinds(t *testing.T) {
	mp := New(DefaultConfig())
	addr := types.MpnAddress{Index: 1}
	tx := &types.Transaction{Nonce: 1, Data: types.RegularSend{}, Sig: types.Signature{Unsigned: true}}
	if err := mp.AddMpnTx(addr, true, true, tx); err != nil {
		t.Fatalf("AddMpnTx: %v", err)
	}
	src := testAddr(30)
	chainTx := unsignedTx(src, 1)
	mp.chainBuckets[addressKey(src)] = &chainBucket{entries: []entry{{tx: chainTx}}}

	mp.RemoveMined([]*types.Transaction{tx, chainTx})

	out := mp.DrainMpn(addr.Index, 10)
	if len(out) != 0 {
		t.Errorf("RemoveMined should drop the mined tx, bucket still has %d entries", len(out))
	}
	if chainOut := mp.DrainChain(10); len(chainOut) != 0 {
		t.Errorf("RemoveMined should drop the mined chain tx, chain buckets still hold %d entries", len(chainOut))
	}
}

func TestSenderCapFloorsAtOneAndCapsAtMaxSlots(t *testing.T) {
	db := storage.NewRamStore()
	addr := testAddr(1)

	capWithNoBalance, err := senderCap(db, addr, 1_000_000_000, 1000)
	if err != nil || capWithNoBalance != 1 {
		t.Fatalf("senderCap with zero balance: %d, %v", capWithNoBalance, err)
	}

	if err := txapply.SetBalance(db, addr, types.Ziesha, 5_000_000_000_000); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	capped, err := senderCap(db, addr, 1_000_000_000, 1000)
	if err != nil || capped != 1000 {
		t.Fatalf("senderCap should be capped at MaxSenderSlots: got %d, %v", capped, err)
	}
}
