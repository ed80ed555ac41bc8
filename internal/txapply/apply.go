package txapply

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Policy carries the subset of chain configuration transaction application
// needs (spec §9: "A BlockchainConfig value is passed by reference into
// every chain operation").
type Policy struct {
	FeeToken              types.TokenId
	MaxMemoLength         int
	MaxValidatorCommission uint16
	LogPaymentCapacity    int
}

// ApplyTx runs the full apply procedure for tx against db (spec §4.D
// "Apply procedure (per tx)"): verify signature, verify nonce, deduct fee,
// execute variant effects, bump nonce. isReward bypasses fee & signature
// checks for the block's system-issued reward transaction (spec §4.D
// "block-level reward txs bypass fee & signature checks").
func ApplyTx(db kvstore.Store, mgr *zkstate.Manager, policy Policy, tx *types.Transaction, isReward bool) error {
	if len(tx.Memo) > policy.MaxMemoLength {
		return ErrMemoTooLong
	}

	isSystem := tx.Src == nil
	var src types.Address
	if !isSystem {
		src = *tx.Src
	}

	if !isReward {
		if isSystem {
			// Only genesis/reward/delegate-insertion may omit src
			// (spec §4.D), and those always pass isReward=true from
			// internal/chain/internal/payout. A non-reward system tx
			// reaching here is a caller bug, surfaced as a signature
			// error rather than a panic.
			return ErrSignatureError
		}
		if err := verifySignature(src, tx); err != nil {
			return err
		}

		nonce, err := GetNonce(db, src)
		if err != nil {
			return err
		}
		if tx.Nonce != nonce+1 {
			return ErrInvalidTransactionNonce
		}

		if !tx.Fee.TokenId.Equal(policy.FeeToken) {
			return ErrFeeTokenMismatch
		}
		if err := transfer(db, src, types.Treasury, tx.Fee.TokenId, tx.Fee.Amount, false); err != nil {
			return err
		}
	}

	if err := applyVariant(db, mgr, policy, src, isSystem, tx); err != nil {
		return err
	}

	if !isReward && !isSystem {
		if err := SetNonce(db, src, tx.Nonce); err != nil {
			return err
		}
	}
	return nil
}

func verifySignature(src types.Address, tx *types.Transaction) error {
	if tx.Sig.Unsigned {
		return ErrSignatureError
	}
	msg := txHashScalar(tx)
	pk := zkp.PublicKeyFromCompressed(src.X, src.Parity)
	ok, err := zkp.Verify(pk, msg, zkp.SignatureFromBytes(tx.Sig.Bytes))
	if err != nil || !ok {
		return ErrSignatureError
	}
	return nil
}

// txHashScalar folds a transaction's nonce+fee+memo (everything but the
// signature itself) into one scalar message, via the same SHA3-256 +
// field-reduction pattern used for content-addressed ids.
func txHashScalar(tx *types.Transaction) scalar.Scalar {
	h := zkp.Sha3_256([]byte(tx.Memo), encodeU64(uint64(tx.Nonce)), encodeU64(tx.Fee.Amount))
	return scalar.FromDigest(h)
}

func applyVariant(db kvstore.Store, mgr *zkstate.Manager, policy Policy, src types.Address, isSystem bool, tx *types.Transaction) error {
	switch d := tx.Data.(type) {
	case types.RegularSend:
		return applyRegularSend(db, mgr, src, isSystem, d)
	case types.CreateContract:
		return applyCreateContract(db, mgr, src, tx, d)
	case types.UpdateContract:
		return applyUpdateContract(db, mgr, policy, src, d)
	case types.CreateToken:
		return applyCreateToken(db, src, tx, d)
	case types.UpdateToken:
		return applyUpdateToken(db, src, d)
	case types.Delegate:
		return applyDelegate(db, src, d)
	case types.UpdateStaker:
		return applyUpdateStaker(db, policy, src, d)
	case types.AutoDelegate:
		return applyAutoDelegate(db, src, d)
	default:
		return ErrInvalidStateModel
	}
}
