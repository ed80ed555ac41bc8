package mpn

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// tokenSlotModel is one (token_id, amount) pair inside an account's token
// sub-tree.
func tokenSlotModel() types.StateModel {
	return types.Struct(types.Scalar(), types.Scalar())
}

// AccountModel is the MPN account struct: (tx_nonce, withdraw_nonce,
// address.x, address.parity, tokens), tokens itself a log4TokenTreeSize
// quad-tree of token slots (spec §3 MpnAccount, ported from
// original_source/src/mpn's `ZkDataLocator(vec![index, 4])` tokens-field
// convention — field index 4 is always the tokens sub-tree).
func AccountModel(log4TokenTreeSize int) types.StateModel {
	return types.Struct(
		types.Scalar(), // tx_nonce
		types.Scalar(), // withdraw_nonce
		types.Scalar(), // address.x
		types.Scalar(), // address.parity (0 or 1)
		types.List(log4TokenTreeSize, tokenSlotModel()),
	)
}

// ContractModel is the MPN contract's full state tree: a log4TreeSize
// quad-tree of accounts.
func ContractModel(log4TreeSize, log4TokenTreeSize int) types.StateModel {
	return types.List(log4TreeSize, AccountModel(log4TokenTreeSize))
}

const (
	fieldTxNonce       = 0
	fieldWithdrawNonce = 1
	fieldAddrX         = 2
	fieldAddrParity    = 3
	fieldTokens        = 4
)

// GetAccount reads the full MpnAccount at index from the contract's tree.
func GetAccount(db kvstore.Store, mgr *zkstate.Manager, cid string, model types.StateModel, log4TokenTreeSize int, index uint64) (types.MpnAccount, error) {
	base := types.Locator{index}

	txNonce, err := mgr.GetData(db, cid, model, base.Append(fieldTxNonce))
	if err != nil {
		return types.MpnAccount{}, err
	}
	withdrawNonce, err := mgr.GetData(db, cid, model, base.Append(fieldWithdrawNonce))
	if err != nil {
		return types.MpnAccount{}, err
	}
	addrX, err := mgr.GetData(db, cid, model, base.Append(fieldAddrX))
	if err != nil {
		return types.MpnAccount{}, err
	}
	addrParity, err := mgr.GetData(db, cid, model, base.Append(fieldAddrParity))
	if err != nil {
		return types.MpnAccount{}, err
	}

	numSlots := uint64(1) << uint64(2*log4TokenTreeSize)
	tokens := make(map[uint64]types.MpnTokenSlot)
	tokensBase := base.Append(fieldTokens)
	for i := uint64(0); i < numSlots; i++ {
		slotLoc := tokensBase.Append(i)
		tid, err := mgr.GetData(db, cid, model, slotLoc.Append(0))
		if err != nil {
			return types.MpnAccount{}, err
		}
		amt, err := mgr.GetData(db, cid, model, slotLoc.Append(1))
		if err != nil {
			return types.MpnAccount{}, err
		}
		if tid.IsZero() && amt.IsZero() {
			continue
		}
		amtU64, err := amt.Uint64()
		if err != nil {
			return types.MpnAccount{}, err
		}
		tokens[i] = types.MpnTokenSlot{TokenId: types.TokenId(tid), Amount: amtU64}
	}

	txNonceU64, err := txNonce.Uint64()
	if err != nil {
		return types.MpnAccount{}, err
	}
	withdrawNonceU64, err := withdrawNonce.Uint64()
	if err != nil {
		return types.MpnAccount{}, err
	}

	return types.MpnAccount{
		TxNonce:       txNonceU64,
		WithdrawNonce: withdrawNonceU64,
		Address:       types.Address{PublicKey: types.PublicKey{X: addrX, Parity: !addrParity.IsZero()}},
		Tokens:        tokens,
	}, nil
}

// SetAccount writes every field of acc at index, returning the tree's new
// top-level root once all writes land. sizeDelta accumulates the net
// change in non-default leaf count across the whole call, matching
// zkstate.Manager.SetData's per-call accounting.
func SetAccount(db kvstore.Store, mgr *zkstate.Manager, cid string, model types.StateModel, log4TokenTreeSize int, index uint64, acc types.MpnAccount, sizeDelta *int64) (scalar.Scalar, error) {
	base := types.Locator{index}

	var root scalar.Scalar
	var err error
	root, err = mgr.SetData(db, cid, model, base.Append(fieldTxNonce), scalar.FromUint64(acc.TxNonce), sizeDelta)
	if err != nil {
		return scalar.Scalar{}, err
	}
	root, err = mgr.SetData(db, cid, model, base.Append(fieldWithdrawNonce), scalar.FromUint64(acc.WithdrawNonce), sizeDelta)
	if err != nil {
		return scalar.Scalar{}, err
	}
	root, err = mgr.SetData(db, cid, model, base.Append(fieldAddrX), acc.Address.X, sizeDelta)
	if err != nil {
		return scalar.Scalar{}, err
	}
	parity := scalar.FromUint64(0)
	if acc.Address.Parity {
		parity = scalar.FromUint64(1)
	}
	root, err = mgr.SetData(db, cid, model, base.Append(fieldAddrParity), parity, sizeDelta)
	if err != nil {
		return scalar.Scalar{}, err
	}

	tokensBase := base.Append(fieldTokens)
	for i, slot := range acc.Tokens {
		slotLoc := tokensBase.Append(i)
		root, err = mgr.SetData(db, cid, model, slotLoc.Append(0), scalar.Scalar(slot.TokenId), sizeDelta)
		if err != nil {
			return scalar.Scalar{}, err
		}
		root, err = mgr.SetData(db, cid, model, slotLoc.Append(1), scalar.FromUint64(slot.Amount), sizeDelta)
		if err != nil {
			return scalar.Scalar{}, err
		}
	}
	return root, nil
}

// findTokenIndex locates the slot already holding token, or (when allowNew
// is set) the first empty slot, inside an account capped at
// 4^log4TokenTreeSize slots (spec §4.G "an account resolves a token to an
// existing slot by id, or to its first empty slot when creating one is
// allowed"; ported from original_source's find_token_index, dropping its
// arbitrary-precision account-capacity parameter since this ledger fixes
// slot count per contract rather than per call).
func findTokenIndex(acc types.MpnAccount, log4TokenTreeSize int, token types.TokenId, allowNew bool) (uint64, bool) {
	numSlots := uint64(1) << uint64(2*log4TokenTreeSize)
	var firstEmpty uint64
	foundEmpty := false
	for i := uint64(0); i < numSlots; i++ {
		slot, ok := acc.Tokens[i]
		if ok && slot.TokenId.Equal(token) {
			return i, true
		}
		if !ok && !foundEmpty {
			firstEmpty = i
			foundEmpty = true
		}
	}
	if allowNew && foundEmpty {
		return firstEmpty, true
	}
	return 0, false
}
