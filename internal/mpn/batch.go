package mpn

import (
	"encoding/hex"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// cidKey renders an MPN-style contract id the way zkstate.Manager's
// local-key functions expect: lowercase hex, no "0x" prefix, matching
// internal/txapply's own contractIdKey so both packages address the same
// physical tree (spec §4.B, §4.G: both sides of the on-chain/off-chain
// split key off the same cid).
func cidKey(cid types.ContractId) string { return hex.EncodeToString(cid[:]) }

func addrOf(pk types.PublicKey) types.Address { return types.Address{PublicKey: pk} }

// DepositBatch folds up to 4^log4BatchSize pending deposits into the MPN
// account tree, assigning a fresh account slot to any zk-address seen for
// the first time, and returns the DepositEntry rows an UpdateContract's
// DepositUpdate carries on-chain (spec §4.G; ported from
// original_source/src/mpn/deposit.rs, dropping its ZkDataLocator proof
// witnesses, which belong to the external prover, not this batcher).
func DepositBatch(db kvstore.Store, mgr *zkstate.Manager, cid types.ContractId, log4TreeSize, log4TokenTreeSize, log4BatchSize int, reqs []PendingDeposit) (BatchResult[types.DepositEntry, PendingDeposit], error) {
	cidStr := cidKey(cid)
	model := ContractModel(log4TreeSize, log4TokenTreeSize)
	capacity := uint64(1) << uint64(2*log4BatchSize)

	mirror := kvstore.NewMirror(db)
	reg, err := newRegistrar(mirror)
	if err != nil {
		return BatchResult[types.DepositEntry, PendingDeposit]{}, err
	}
	prevRoot, err := mgr.Root(mirror, cidStr, model)
	if err != nil {
		return BatchResult[types.DepositEntry, PendingDeposit]{}, err
	}

	var sizeDelta int64
	var entries []types.DepositEntry
	var rejected []Rejected[PendingDeposit]
	poisoned := make(map[string]bool)

	for _, req := range reqs {
		if uint64(len(entries)) >= capacity {
			break
		}
		key := pubkeyHex(req.ZkAddress)
		if poisoned[key] {
			rejected = append(rejected, Rejected[PendingDeposit]{req, ErrAddressMismatch})
			continue
		}

		index, _ := reg.resolve(req.ZkAddress, true)
		acc, err := GetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, index)
		if err != nil {
			return BatchResult[types.DepositEntry, PendingDeposit]{}, err
		}

		slot, ok := findTokenIndex(acc, log4TokenTreeSize, req.Token, true)
		if !ok {
			rejected = append(rejected, Rejected[PendingDeposit]{req, ErrTokenSlotsExhausted})
			poisoned[key] = true
			continue
		}
		if existing, has := acc.Tokens[slot]; has && !existing.TokenId.Equal(req.Token) {
			rejected = append(rejected, Rejected[PendingDeposit]{req, ErrTokenMismatch})
			poisoned[key] = true
			continue
		}
		if !acc.Address.IsZero() && !acc.Address.Equal(addrOf(req.ZkAddress)) {
			rejected = append(rejected, Rejected[PendingDeposit]{req, ErrAddressMismatch})
			poisoned[key] = true
			continue
		}

		acc.Address = addrOf(req.ZkAddress)
		if acc.Tokens == nil {
			acc.Tokens = make(map[uint64]types.MpnTokenSlot)
		}
		cur := acc.Tokens[slot]
		cur.TokenId = req.Token
		cur.Amount += req.Amount
		acc.Tokens[slot] = cur

		if _, err := SetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, index, acc, &sizeDelta); err != nil {
			return BatchResult[types.DepositEntry, PendingDeposit]{}, err
		}

		entries = append(entries, types.DepositEntry{
			Src: req.Src, TokenId: req.Token, Amount: req.Amount, Calldata: req.Calldata, Sig: req.Sig,
		})
	}

	newState, err := finishBatch(mirror, mgr, cidStr, model, prevRoot, sizeDelta, reg)
	if err != nil {
		return BatchResult[types.DepositEntry, PendingDeposit]{}, err
	}
	if err := mirror.Commit(); err != nil {
		return BatchResult[types.DepositEntry, PendingDeposit]{}, err
	}
	return BatchResult[types.DepositEntry, PendingDeposit]{NextState: newState, Entries: entries, Rejected: rejected}, nil
}

// WithdrawBatch folds up to 4^log4BatchSize pending withdrawals out of the
// MPN account tree, authenticating each against the account's own zk
// signature and withdraw-nonce (spec §4.G; ported from
// original_source/src/mpn/withdraw.rs).
func WithdrawBatch(db kvstore.Store, mgr *zkstate.Manager, cid types.ContractId, log4TreeSize, log4TokenTreeSize, log4BatchSize int, reqs []PendingWithdraw) (BatchResult[types.WithdrawEntry, PendingWithdraw], error) {
	cidStr := cidKey(cid)
	model := ContractModel(log4TreeSize, log4TokenTreeSize)
	capacity := uint64(1) << uint64(2*log4BatchSize)

	mirror := kvstore.NewMirror(db)
	reg, err := newRegistrar(mirror)
	if err != nil {
		return BatchResult[types.WithdrawEntry, PendingWithdraw]{}, err
	}
	prevRoot, err := mgr.Root(mirror, cidStr, model)
	if err != nil {
		return BatchResult[types.WithdrawEntry, PendingWithdraw]{}, err
	}

	var sizeDelta int64
	var entries []types.WithdrawEntry
	var rejected []Rejected[PendingWithdraw]

	for _, req := range reqs {
		if uint64(len(entries)) >= capacity {
			break
		}

		index, known := reg.resolve(req.ZkAddress, false)
		if !known {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrUnknownAccount})
			continue
		}
		acc, err := GetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, index)
		if err != nil {
			return BatchResult[types.WithdrawEntry, PendingWithdraw]{}, err
		}

		tokenSlot, ok1 := findTokenIndex(acc, log4TokenTreeSize, req.Token, false)
		feeSlot, ok2 := findTokenIndex(acc, log4TokenTreeSize, req.FeeToken, false)
		if !ok1 || !ok2 {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrTokenMismatch})
			continue
		}

		if !acc.Address.IsZero() && !acc.Address.Equal(addrOf(req.ZkAddress)) {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrAddressMismatch})
			continue
		}
		if req.Nonce != acc.WithdrawNonce+1 {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrNonceMismatch})
			continue
		}
		if err := verifyWithdrawSig(req); err != nil {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrSignatureInvalid})
			continue
		}
		tokenBal := acc.Tokens[tokenSlot]
		if !tokenBal.TokenId.Equal(req.Token) || tokenBal.Amount < req.Amount {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrBalanceInsufficient})
			continue
		}

		acc.Address = addrOf(req.ZkAddress)
		acc.WithdrawNonce++
		tokenBal.Amount -= req.Amount
		acc.Tokens[tokenSlot] = tokenBal

		feeBal := acc.Tokens[feeSlot]
		if !feeBal.TokenId.Equal(req.FeeToken) || feeBal.Amount < req.Fee {
			rejected = append(rejected, Rejected[PendingWithdraw]{req, ErrBalanceInsufficient})
			continue
		}
		feeBal.Amount -= req.Fee
		acc.Tokens[feeSlot] = feeBal

		if _, err := SetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, index, acc, &sizeDelta); err != nil {
			return BatchResult[types.WithdrawEntry, PendingWithdraw]{}, err
		}

		entries = append(entries, types.WithdrawEntry{
			Dst: req.Dst, AmountToken: req.Token, Amount: req.Amount,
			FeeToken: req.FeeToken, Fee: req.Fee, Calldata: req.Calldata,
		})
	}

	newState, err := finishBatch(mirror, mgr, cidStr, model, prevRoot, sizeDelta, reg)
	if err != nil {
		return BatchResult[types.WithdrawEntry, PendingWithdraw]{}, err
	}
	if err := mirror.Commit(); err != nil {
		return BatchResult[types.WithdrawEntry, PendingWithdraw]{}, err
	}
	return BatchResult[types.WithdrawEntry, PendingWithdraw]{NextState: newState, Entries: entries, Rejected: rejected}, nil
}

// TransferBatch moves balance between two existing MPN accounts without
// ever leaving the tree (spec §4.G "update"; ported from
// original_source/src/mpn/update.rs). It produces no on-chain row list —
// an internal transfer only changes the MPN tree's own root, which the
// surrounding Function-call circuit's NextState already attests to.
func TransferBatch(db kvstore.Store, mgr *zkstate.Manager, cid types.ContractId, log4TreeSize, log4TokenTreeSize, log4BatchSize int, reqs []PendingTransfer) (types.CompressedState, []Rejected[PendingTransfer], error) {
	cidStr := cidKey(cid)
	model := ContractModel(log4TreeSize, log4TokenTreeSize)
	capacity := uint64(1) << uint64(2*log4BatchSize)

	mirror := kvstore.NewMirror(db)
	reg, err := newRegistrar(mirror)
	if err != nil {
		return types.CompressedState{}, nil, err
	}
	prevRoot, err := mgr.Root(mirror, cidStr, model)
	if err != nil {
		return types.CompressedState{}, nil, err
	}

	var sizeDelta int64
	var applied int
	var rejected []Rejected[PendingTransfer]

	for _, req := range reqs {
		if uint64(applied) >= capacity {
			break
		}

		srcIndex, known := reg.resolve(req.SrcPub, false)
		if !known {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrUnknownAccount})
			continue
		}
		dstIndex, _ := reg.resolve(req.DstPub, true)

		src, err := GetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, srcIndex)
		if err != nil {
			return types.CompressedState{}, nil, err
		}
		dst, err := GetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, dstIndex)
		if err != nil {
			return types.CompressedState{}, nil, err
		}

		srcSlot, ok1 := findTokenIndex(src, log4TokenTreeSize, req.Amount.TokenId, false)
		dstSlot, ok2 := findTokenIndex(dst, log4TokenTreeSize, req.Amount.TokenId, true)
		feeSlot, ok3 := findTokenIndex(src, log4TokenTreeSize, req.Fee.TokenId, false)
		if !ok1 || !ok2 || !ok3 {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrTokenMismatch})
			continue
		}

		if !src.Address.Equal(addrOf(req.SrcPub)) ||
			(!dst.Address.IsZero() && !dst.Address.Equal(addrOf(req.DstPub))) {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrAddressMismatch})
			continue
		}
		if req.Nonce != uint32(src.TxNonce)+1 {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrNonceMismatch})
			continue
		}
		if err := verifyTransferSig(req); err != nil {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrSignatureInvalid})
			continue
		}

		srcTok := src.Tokens[srcSlot]
		if dstExisting, has := dst.Tokens[dstSlot]; has && !dstExisting.TokenId.Equal(req.Amount.TokenId) {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrTokenMismatch})
			continue
		}
		if !srcTok.TokenId.Equal(req.Amount.TokenId) || srcTok.Amount < req.Amount.Amount {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrBalanceInsufficient})
			continue
		}
		srcTok.Amount -= req.Amount.Amount
		src.Tokens[srcSlot] = srcTok

		srcFee := src.Tokens[feeSlot]
		if !srcFee.TokenId.Equal(req.Fee.TokenId) || srcFee.Amount < req.Fee.Amount {
			rejected = append(rejected, Rejected[PendingTransfer]{req, ErrBalanceInsufficient})
			continue
		}
		srcFee.Amount -= req.Fee.Amount
		src.Tokens[feeSlot] = srcFee
		src.TxNonce++

		if dst.Tokens == nil {
			dst.Tokens = make(map[uint64]types.MpnTokenSlot)
		}
		dst.Address = addrOf(req.DstPub)
		dstTok := dst.Tokens[dstSlot]
		dstTok.TokenId = req.Amount.TokenId
		dstTok.Amount += req.Amount.Amount
		dst.Tokens[dstSlot] = dstTok

		if _, err := SetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, srcIndex, src, &sizeDelta); err != nil {
			return types.CompressedState{}, nil, err
		}
		if _, err := SetAccount(mirror, mgr, cidStr, model, log4TokenTreeSize, dstIndex, dst, &sizeDelta); err != nil {
			return types.CompressedState{}, nil, err
		}
		applied++
	}

	newState, err := finishBatch(mirror, mgr, cidStr, model, prevRoot, sizeDelta, reg)
	if err != nil {
		return types.CompressedState{}, nil, err
	}
	if err := mirror.Commit(); err != nil {
		return types.CompressedState{}, nil, err
	}
	return newState, rejected, nil
}

// finishBatch reads the tree's new root, persists it plus the bumped
// off-chain tree height and any newly assigned account indices, all
// inside the same mirror the batch's account writes already landed in.
func finishBatch(mirror *kvstore.Mirror, mgr *zkstate.Manager, cidStr string, model types.StateModel, prevRoot types.CompressedState, sizeDelta int64, reg *registrar) (types.CompressedState, error) {
	root, err := mgr.GetData(mirror, cidStr, model, types.Locator{})
	if err != nil {
		return types.CompressedState{}, err
	}
	newState := types.CompressedState{StateHash: root, StateSize: uint64(int64(prevRoot.StateSize) + sizeDelta)}

	height, err := mgr.HeightOf(mirror, cidStr)
	if err != nil {
		return types.CompressedState{}, err
	}
	if err := mgr.CommitRoot(mirror, cidStr, newState, height+1); err != nil {
		return types.CompressedState{}, err
	}

	ops, err := reg.commit()
	if err != nil {
		return types.CompressedState{}, err
	}
	if len(ops) > 0 {
		if err := mirror.Update(ops); err != nil {
			return types.CompressedState{}, err
		}
	}
	return newState, nil
}

// verifyWithdrawSig checks a withdraw request's zk-signature over a
// poseidon hash of (dst.x, token, amount, fee token, fee, calldata, nonce)
// (spec §4.G; the original's verify_signature/verify_calldata pair
// collapses here into one signed message). This message is not the
// calldata-free fingerprint internal/txapply/updatecontract.go puts in each
// on-chain withdraw aux row; calldata travels there as its own row column.
func verifyWithdrawSig(req PendingWithdraw) error {
	if req.Sig.Unsigned {
		return ErrSignatureInvalid
	}
	msg := zkp.Poseidon(
		req.Dst.X, scalar.Scalar(req.Token), scalar.FromUint64(req.Amount),
		scalar.Scalar(req.FeeToken), scalar.FromUint64(req.Fee), req.Calldata, scalar.FromUint64(req.Nonce),
	)
	pk := zkp.PublicKeyFromCompressed(req.ZkAddress.X, req.ZkAddress.Parity)
	ok, err := zkp.Verify(pk, msg, zkp.SignatureFromBytes(req.Sig.Bytes))
	if err != nil || !ok {
		return ErrSignatureInvalid
	}
	return nil
}

// verifyTransferSig checks an internal transfer's zk-signature the same
// way, over its own field set.
func verifyTransferSig(req PendingTransfer) error {
	if req.Sig.Unsigned {
		return ErrSignatureInvalid
	}
	msg := zkp.Poseidon(
		req.DstPub.X, scalar.Scalar(req.Amount.TokenId), scalar.FromUint64(req.Amount.Amount),
		scalar.Scalar(req.Fee.TokenId), scalar.FromUint64(req.Fee.Amount), scalar.FromUint64(uint64(req.Nonce)),
	)
	pk := zkp.PublicKeyFromCompressed(req.SrcPub.X, req.SrcPub.Parity)
	ok, err := zkp.Verify(pk, msg, zkp.SignatureFromBytes(req.Sig.Bytes))
	if err != nil || !ok {
		return ErrSignatureInvalid
	}
	return nil
}
