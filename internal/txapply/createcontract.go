package txapply

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/types"
)

// applyCreateContract deploys a new contract at a content-addressed id,
// writes its initial state tree, and moves d.Money from src into the
// contract's escrow balance (spec §4.D CreateContract). No token is created
// or minted for Contract.TokenContract.
func applyCreateContract(db kvstore.Store, mgr *zkstate.Manager, src types.Address, tx *types.Transaction, d types.CreateContract) error {
	h, err := contentAddressHash(src, tx.Nonce, d)
	if err != nil {
		return err
	}
	cid := types.ContractId(h)
	cidStr := contractIdKey(cid)

	if _, found, err := GetContract(db, cid); err != nil {
		return err
	} else if found {
		return ErrContractAlreadyExists
	}

	contract := d.Contract

	var sizeDelta int64
	for pathStr, value := range d.InitialState {
		loc, err := parseLocatorPath(pathStr)
		if err != nil {
			return err
		}
		if _, err := mgr.SetData(db, cidStr, contract.StateModel, loc, value, &sizeDelta); err != nil {
			return err
		}
	}

	root, err := mgr.GetData(db, cidStr, contract.StateModel, types.Locator{})
	if err != nil {
		return err
	}
	state := types.CompressedState{StateHash: root, StateSize: uint64(sizeDelta)}
	if !state.StateHash.Equal(contract.InitialState.StateHash) || state.StateSize != contract.InitialState.StateSize {
		return ErrInvalidState
	}
	if err := mgr.CommitRoot(db, cidStr, state, 1); err != nil {
		return err
	}
	if err := SetContractAccount(db, cid, &types.ContractAccount{Height: 1, CompressedState: state}); err != nil {
		return err
	}
	if err := SetContract(db, cid, &contract); err != nil {
		return err
	}

	if d.Money.Amount > 0 {
		bal, err := GetBalance(db, src, d.Money.TokenId)
		if err != nil {
			return err
		}
		if bal < d.Money.Amount {
			return ErrBalanceInsufficient
		}
		if err := SetBalance(db, src, d.Money.TokenId, bal-d.Money.Amount); err != nil {
			return err
		}
		cbal, err := ContractBalance(db, cid, d.Money.TokenId)
		if err != nil {
			return err
		}
		if err := SetContractBalance(db, cid, d.Money.TokenId, cbal+d.Money.Amount); err != nil {
			return err
		}
	}
	return nil
}
