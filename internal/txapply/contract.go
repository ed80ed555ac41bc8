package txapply

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// contractIdKey renders a ContractId as the hex string used in KV keys.
func contractIdKey(cid types.ContractId) string { return hexString(cid[:]) }

// Contract and Token records are persisted as JSON blobs rather than a
// hand-rolled binary layout — an internal persistence detail, not the
// spec's wire format (spec §6 reserves bincode for block/tx encoding).

// GetContract reads a deployed contract's definition.
func GetContract(db kvstore.Store, cid types.ContractId) (*types.Contract, bool, error) {
	raw, ok, err := db.Get(kvstore.ContractKey(contractIdKey(cid)))
	if err != nil || !ok {
		return nil, false, err
	}
	var c types.Contract
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// SetContract persists a contract's definition.
func SetContract(db kvstore.Store, cid types.ContractId, c *types.Contract) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return db.Update([]kvstore.WriteOp{kvstore.Put(kvstore.ContractKey(contractIdKey(cid)), raw)})
}

// GetContractAccount reads a contract's height/compressed-state record.
func GetContractAccount(db kvstore.Store, cid types.ContractId) (*types.ContractAccount, bool, error) {
	raw, ok, err := db.Get(kvstore.ContractAccountKey(contractIdKey(cid)))
	if err != nil || !ok {
		return nil, false, err
	}
	if len(raw) < 40 {
		return nil, false, ErrInvalidState
	}
	height := binary.LittleEndian.Uint64(raw[:8])
	var arr [32]byte
	copy(arr[:], raw[8:40])
	hashBytes, err := scalar.FromBytes(arr)
	if err != nil {
		return nil, false, err
	}
	var size uint64
	if len(raw) >= 48 {
		size = binary.LittleEndian.Uint64(raw[40:48])
	}
	return &types.ContractAccount{
		Height: height,
		CompressedState: types.CompressedState{StateHash: hashBytes, StateSize: size},
	}, true, nil
}

// SetContractAccount persists a contract's height/compressed-state record.
func SetContractAccount(db kvstore.Store, cid types.ContractId, ca *types.ContractAccount) error {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint64(buf[:8], ca.Height)
	hb := ca.CompressedState.StateHash.Bytes()
	copy(buf[8:40], hb[:])
	binary.LittleEndian.PutUint64(buf[40:48], ca.CompressedState.StateSize)
	return db.Update([]kvstore.WriteOp{kvstore.Put(kvstore.ContractAccountKey(contractIdKey(cid)), buf)})
}

// GetToken reads a custom token's definition.
func GetToken(db kvstore.Store, tid types.TokenId) (*types.Token, bool, error) {
	raw, ok, err := db.Get(kvstore.TokenKey(tokenKey(tid)))
	if err != nil || !ok {
		return nil, false, err
	}
	var t types.Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

// SetToken persists a custom token's definition.
func SetToken(db kvstore.Store, t *types.Token) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return db.Update([]kvstore.WriteOp{kvstore.Put(kvstore.TokenKey(tokenKey(t.Id)), raw)})
}
