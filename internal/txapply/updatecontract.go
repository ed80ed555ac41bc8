package txapply

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// applyUpdateContract runs every zk-verified sub-operation in d.Updates in
// order, then applies any direct state delta, committing the contract's
// new height and compressed state once (spec §4.D UpdateContract). When a
// delta is given, the root it produces over the contract's real state tree
// must equal the final sub-operation's (Groth16-verified) next_state: the
// delta is the plaintext reveal of the very transition the circuit already
// proved, so replaying it must land on the same committed root.
func applyUpdateContract(db kvstore.Store, mgr *zkstate.Manager, policy Policy, src types.Address, d types.UpdateContract) error {
	contract, found, err := GetContract(db, d.ContractId)
	if err != nil {
		return err
	}
	if !found {
		return ErrContractNotFound
	}
	account, found, err := GetContractAccount(db, d.ContractId)
	if err != nil {
		return err
	}
	if !found {
		return ErrContractNotFound
	}
	cidStr := contractIdKey(d.ContractId)

	var lastNextState *types.CompressedState
	for _, upd := range d.Updates {
		switch {
		case upd.Deposit != nil:
			if err := applyDepositUpdate(db, mgr, policy, contract, d.ContractId, account.CompressedState, upd.Deposit); err != nil {
				return err
			}
			account.CompressedState = upd.Deposit.NextState
		case upd.Withdraw != nil:
			if err := applyWithdrawUpdate(db, mgr, policy, contract, d.ContractId, account.CompressedState, upd.Withdraw); err != nil {
				return err
			}
			account.CompressedState = upd.Withdraw.NextState
		case upd.Function != nil:
			if err := applyFunctionCallUpdate(db, src, contract, account.CompressedState, upd.Function); err != nil {
				return err
			}
			account.CompressedState = upd.Function.NextState
		default:
			return ErrInvalidStateModel
		}
		account.Height++
		next := account.CompressedState
		lastNextState = &next
	}

	if len(d.Delta) > 0 {
		var sizeDelta int64
		for pathStr, value := range d.Delta {
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
		newState := types.CompressedState{
			StateHash: root,
			StateSize: uint64(int64(account.CompressedState.StateSize) + sizeDelta),
		}
		if lastNextState != nil {
			if !newState.StateHash.Equal(lastNextState.StateHash) || newState.StateSize != lastNextState.StateSize {
				return ErrInvalidState
			}
		}
		account.CompressedState = newState
		account.Height++
	}

	if err := mgr.CommitRoot(db, cidStr, account.CompressedState, account.Height); err != nil {
		return err
	}
	return SetContractAccount(db, d.ContractId, account)
}

// depositAuxModel is the spec §4.D Deposit aux-commitment shape: a List of
// (enabled, token_id, amount, calldata) rows at log4_payment_capacity depth.
func depositAuxModel(log4Capacity int) types.StateModel {
	return types.List(log4Capacity, types.Struct(types.Scalar(), types.Scalar(), types.Scalar(), types.Scalar()))
}

// withdrawAuxModel is the spec §4.D Withdraw aux-commitment shape: a List
// of (enabled, amount_token, amount, fee_token, fee, fingerprint, calldata)
// rows at log4_payment_capacity depth.
func withdrawAuxModel(log4Capacity int) types.StateModel {
	return types.List(log4Capacity, types.Struct(
		types.Scalar(), types.Scalar(), types.Scalar(),
		types.Scalar(), types.Scalar(), types.Scalar(), types.Scalar(),
	))
}

// auxCommitment compresses rows into the fixed-capacity aux commitment model
// using the same state-manager primitive contracts themselves are committed
// with (spec §4.G step 4: "compressing it with the same state-manager
// primitive"). rows beyond model's 4^log4_capacity slots are a LocatorError;
// slots past len(rows) are left at their struct-of-zeros default, matching
// the "enabled: false" padding convention.
func auxCommitment(mgr *zkstate.Manager, model types.StateModel, rows [][]scalar.Scalar) (scalar.Scalar, error) {
	scratch := storage.NewRamStore()
	const cid = "aux"
	var sizeDelta int64
	for i, row := range rows {
		for field, v := range row {
			if v.IsZero() {
				continue
			}
			if _, err := mgr.SetData(scratch, cid, model, types.Locator{uint64(i), uint64(field)}, v, &sizeDelta); err != nil {
				return scalar.Scalar{}, err
			}
		}
	}
	return mgr.GetData(scratch, cid, model, types.Locator{})
}

// applyDepositUpdate verifies a deposit batch's proof against the
// contract's deposit circuit, moves each entry's funds from its sender
// into the contract's escrow balance, and advances each sender's deposit
// nonce (spec §4.D Deposit).
func applyDepositUpdate(db kvstore.Store, mgr *zkstate.Manager, policy Policy, contract *types.Contract, cid types.ContractId, prevState types.CompressedState, upd *types.DepositUpdate) error {
	if int(upd.CircuitId) >= len(contract.DepositVerifyingKeys) {
		return ErrCircuitIdOutOfRange
	}
	vk, err := zkp.DecodeVerifyingKey(contract.DepositVerifyingKeys[upd.CircuitId])
	if err != nil {
		return err
	}
	proof, err := zkp.DecodeProof(upd.Proof)
	if err != nil {
		return err
	}

	rows := make([][]scalar.Scalar, 0, len(upd.Entries))
	for _, e := range upd.Entries {
		nonce, err := GetDepositNonce(db, e.Src, cid)
		if err != nil {
			return err
		}

		bal, err := GetBalance(db, e.Src, e.TokenId)
		if err != nil {
			return err
		}
		if bal < e.Amount {
			return ErrBalanceInsufficient
		}
		if err := SetBalance(db, e.Src, e.TokenId, bal-e.Amount); err != nil {
			return err
		}
		cbal, err := ContractBalance(db, cid, e.TokenId)
		if err != nil {
			return err
		}
		if err := SetContractBalance(db, cid, e.TokenId, cbal+e.Amount); err != nil {
			return err
		}
		if err := SetDepositNonce(db, e.Src, cid, nonce+1); err != nil {
			return err
		}

		rows = append(rows, []scalar.Scalar{
			scalar.FromUint64(1),
			scalar.Scalar(e.TokenId),
			scalar.FromUint64(e.Amount),
			e.Calldata,
		})
	}

	aux, err := auxCommitment(mgr, depositAuxModel(policy.LogPaymentCapacity), rows)
	if err != nil {
		return err
	}
	ok, err := zkp.VerifyGroth16(vk, proof, []scalar.Scalar{prevState.StateHash, aux, upd.NextState.StateHash})
	if err != nil || !ok {
		return ErrIncorrectZkProof
	}
	return nil
}

// applyWithdrawUpdate verifies a withdraw batch's proof, moves each
// entry's funds out of the contract's escrow balance to its destination,
// per spec §4.D Withdraw. When an entry's FeeToken equals its AmountToken,
// Fee is deducted from Amount and credited to the Treasury; a fee in any
// other token is not charged.
func applyWithdrawUpdate(db kvstore.Store, mgr *zkstate.Manager, policy Policy, contract *types.Contract, cid types.ContractId, prevState types.CompressedState, upd *types.WithdrawUpdate) error {
	if int(upd.CircuitId) >= len(contract.WithdrawVerifyingKeys) {
		return ErrCircuitIdOutOfRange
	}
	vk, err := zkp.DecodeVerifyingKey(contract.WithdrawVerifyingKeys[upd.CircuitId])
	if err != nil {
		return err
	}
	proof, err := zkp.DecodeProof(upd.Proof)
	if err != nil {
		return err
	}

	rows := make([][]scalar.Scalar, 0, len(upd.Entries))
	for _, e := range upd.Entries {
		cbal, err := ContractBalance(db, cid, e.AmountToken)
		if err != nil {
			return err
		}
		if cbal < e.Amount {
			return ErrBalanceInsufficient
		}
		if err := SetContractBalance(db, cid, e.AmountToken, cbal-e.Amount); err != nil {
			return err
		}

		net := e.Amount
		if e.FeeToken.Equal(e.AmountToken) {
			if net < e.Fee {
				return ErrBalanceInsufficient
			}
			net -= e.Fee
			if err := transfer(db, types.Address{}, types.Treasury, e.FeeToken, e.Fee, true); err != nil {
				return err
			}
		}

		dstBal, err := GetBalance(db, e.Dst, e.AmountToken)
		if err != nil {
			return err
		}
		if err := SetBalance(db, e.Dst, e.AmountToken, dstBal+net); err != nil {
			return err
		}

		// fingerprint binds the entry sans calldata (spec §4.D Withdraw:
		// "fingerprint is hash(serialized-without-calldata); the zk
		// circuit binds it").
		fingerprint := zkp.Poseidon(e.Dst.X, scalar.Scalar(e.AmountToken), scalar.FromUint64(e.Amount), scalar.Scalar(e.FeeToken), scalar.FromUint64(e.Fee))
		rows = append(rows, []scalar.Scalar{
			scalar.FromUint64(1),
			scalar.Scalar(e.AmountToken),
			scalar.FromUint64(e.Amount),
			scalar.Scalar(e.FeeToken),
			scalar.FromUint64(e.Fee),
			fingerprint,
			e.Calldata,
		})
	}

	aux, err := auxCommitment(mgr, withdrawAuxModel(policy.LogPaymentCapacity), rows)
	if err != nil {
		return err
	}
	ok, err := zkp.VerifyGroth16(vk, proof, []scalar.Scalar{prevState.StateHash, aux, upd.NextState.StateHash})
	if err != nil || !ok {
		return ErrIncorrectZkProof
	}
	return nil
}

// applyFunctionCallUpdate verifies a plain function-call proof and
// collects its fee; it carries no auxiliary row list (spec §4.D Function:
// "aux is a default compressed state").
func applyFunctionCallUpdate(db kvstore.Store, src types.Address, contract *types.Contract, prevState types.CompressedState, upd *types.FunctionCallUpdate) error {
	if int(upd.FunctionId) >= len(contract.FunctionVerifyingKeys) {
		return ErrCircuitIdOutOfRange
	}
	vk, err := zkp.DecodeVerifyingKey(contract.FunctionVerifyingKeys[upd.FunctionId])
	if err != nil {
		return err
	}
	proof, err := zkp.DecodeProof(upd.Proof)
	if err != nil {
		return err
	}

	aux := scalar.Zero()
	ok, err := zkp.VerifyGroth16(vk, proof, []scalar.Scalar{prevState.StateHash, aux, upd.NextState.StateHash})
	if err != nil || !ok {
		return ErrIncorrectZkProof
	}

	if upd.Fee > 0 {
		if err := transfer(db, src, types.Treasury, types.Ziesha, upd.Fee, false); err != nil {
			return err
		}
	}
	return nil
}
