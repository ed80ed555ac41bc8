package txapply

import (
	"testing"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

func testAddr(seed uint64) types.Address {
	return types.Address{PublicKey: types.PublicKey{X: scalar.FromUint64(seed), Parity: seed%2 == 0}}
}

func TestBalanceRoundTripAndZeroRemovesKey(t *testing.T) {
	db := storage.NewRamStore()
	addr := testAddr(1)

	bal, err := GetBalance(db, addr, types.Ziesha)
	if err != nil || bal != 0 {
		t.Fatalf("initial balance: %d, %v", bal, err)
	}

	if err := SetBalance(db, addr, types.Ziesha, 500); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	bal, err = GetBalance(db, addr, types.Ziesha)
	if err != nil || bal != 500 {
		t.Fatalf("GetBalance after SetBalance: %d, %v", bal, err)
	}

	if err := SetBalance(db, addr, types.Ziesha, 0); err != nil {
		t.Fatalf("SetBalance(0): %v", err)
	}
	key := kvstore.AccountBalanceKey(addressKey(addr), tokenKey(types.Ziesha))
	if _, ok, _ := db.Get(key); ok {
		t.Error("zero balance should remove the underlying key")
	}
}

func TestContractBalanceRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	cid := types.ContractId{1, 2, 3}

	if err := SetContractBalance(db, cid, types.Ziesha, 42); err != nil {
		t.Fatalf("SetContractBalance: %v", err)
	}
	bal, err := ContractBalance(db, cid, types.Ziesha)
	if err != nil || bal != 42 {
		t.Fatalf("ContractBalance: %d, %v", bal, err)
	}
}

func TestNonceRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	addr := testAddr(7)

	n, err := GetNonce(db, addr)
	if err != nil || n != 0 {
		t.Fatalf("initial nonce: %d, %v", n, err)
	}
	if err := SetNonce(db, addr, 5); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}
	n, err = GetNonce(db, addr)
	if err != nil || n != 5 {
		t.Fatalf("GetNonce after SetNonce: %d, %v", n, err)
	}
}

func TestDepositNonceRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	src := testAddr(2)
	cid := types.ContractId{9, 9, 9}

	n, err := GetDepositNonce(db, src, cid)
	if err != nil || n != 0 {
		t.Fatalf("initial deposit nonce: %d, %v", n, err)
	}
	if err := SetDepositNonce(db, src, cid, 3); err != nil {
		t.Fatalf("SetDepositNonce: %v", err)
	}
	n, err = GetDepositNonce(db, src, cid)
	if err != nil || n != 3 {
		t.Fatalf("GetDepositNonce after SetDepositNonce: %d, %v", n, err)
	}
}

func TestTransferDebitsAndCredits(t *testing.T) {
	db := storage.NewRamStore()
	src, dst := testAddr(1), testAddr(2)
	if err := SetBalance(db, src, types.Ziesha, 100); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	if err := transfer(db, src, dst, types.Ziesha, 30, false); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	srcBal, _ := GetBalance(db, src, types.Ziesha)
	dstBal, _ := GetBalance(db, dst, types.Ziesha)
	if srcBal != 70 {
		t.Errorf("src balance after transfer: got %d, want 70", srcBal)
	}
	if dstBal != 30 {
		t.Errorf("dst balance after transfer: got %d, want 30", dstBal)
	}
}

func TestTransferInsufficientBalanceRejected(t *testing.T) {
	db := storage.NewRamStore()
	src, dst := testAddr(1), testAddr(2)
	if err := SetBalance(db, src, types.Ziesha, 10); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if err := transfer(db, src, dst, types.Ziesha, 20, false); err != ErrBalanceInsufficient {
		t.Errorf("expected ErrBalanceInsufficient, got %v", err)
	}
}

func TestTransferSystemSourceSkipsBalanceCheck(t *testing.T) {
	db := storage.NewRamStore()
	dst := testAddr(2)
	if err := transfer(db, types.Treasury, dst, types.Ziesha, 1000, true); err != nil {
		t.Fatalf("system transfer: %v", err)
	}
	bal, _ := GetBalance(db, dst, types.Ziesha)
	if bal != 1000 {
		t.Errorf("dst balance after system transfer: got %d, want 1000", bal)
	}
}
