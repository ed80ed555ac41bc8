package txapply

import (
	"testing"

	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

func TestContractRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	cid := types.ContractId{1, 1, 1}
	model := types.Struct(types.Scalar(), types.Scalar())
	c := &types.Contract{
		StateModel:   model,
		InitialState: types.CompressedState{StateHash: scalar.FromUint64(5), StateSize: 2},
	}

	if err := SetContract(db, cid, c); err != nil {
		t.Fatalf("SetContract: %v", err)
	}
	got, ok, err := GetContract(db, cid)
	if err != nil || !ok {
		t.Fatalf("GetContract: ok=%v, err=%v", ok, err)
	}
	if !got.InitialState.StateHash.Equal(c.InitialState.StateHash) {
		t.Errorf("InitialState.StateHash mismatch: got %v, want %v", got.InitialState.StateHash, c.InitialState.StateHash)
	}
	if got.InitialState.StateSize != c.InitialState.StateSize {
		t.Errorf("InitialState.StateSize mismatch: got %d, want %d", got.InitialState.StateSize, c.InitialState.StateSize)
	}
}

func TestGetContractMissingReportsNotOk(t *testing.T) {
	db := storage.NewRamStore()
	if _, ok, err := GetContract(db, types.ContractId{9}); ok || err != nil {
		t.Errorf("expected ok=false, err=nil for an undeployed contract, got ok=%v err=%v", ok, err)
	}
}

func TestContractAccountRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	cid := types.ContractId{2, 2, 2}
	ca := &types.ContractAccount{
		Height:          9,
		CompressedState: types.CompressedState{StateHash: scalar.FromUint64(77), StateSize: 3},
	}

	if err := SetContractAccount(db, cid, ca); err != nil {
		t.Fatalf("SetContractAccount: %v", err)
	}
	got, ok, err := GetContractAccount(db, cid)
	if err != nil || !ok {
		t.Fatalf("GetContractAccount: ok=%v, err=%v", ok, err)
	}
	if got.Height != ca.Height {
		t.Errorf("Height mismatch: got %d, want %d", got.Height, ca.Height)
	}
	if !got.CompressedState.StateHash.Equal(ca.CompressedState.StateHash) {
		t.Errorf("StateHash mismatch: got %v, want %v", got.CompressedState.StateHash, ca.CompressedState.StateHash)
	}
	if got.CompressedState.StateSize != ca.CompressedState.StateSize {
		t.Errorf("StateSize mismatch: got %d, want %d", got.CompressedState.StateSize, ca.CompressedState.StateSize)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	db := storage.NewRamStore()
	tok := &types.Token{Id: types.TokenId(scalar.FromUint64(321))}

	if err := SetToken(db, tok); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	got, ok, err := GetToken(db, tok.Id)
	if err != nil || !ok {
		t.Fatalf("GetToken: ok=%v, err=%v", ok, err)
	}
	if !got.Id.Equal(tok.Id) {
		t.Errorf("Id mismatch: got %v, want %v", got.Id, tok.Id)
	}
}

func TestGetTokenMissingReportsNotOk(t *testing.T) {
	db := storage.NewRamStore()
	if _, ok, err := GetToken(db, types.TokenId(scalar.FromUint64(999))); ok || err != nil {
		t.Errorf("expected ok=false, err=nil for an undefined token, got ok=%v err=%v", ok, err)
	}
}
