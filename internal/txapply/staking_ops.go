package txapply

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/staking"
	"github.com/ziesha-go/ledger/pkg/types"
)

// applyDelegate locks (or, when Reverse, releases) src's Ziesha balance
// into a delegation toward d.To, updating the delegate record, both rank
// indices and the validator's aggregate stake (spec §4.D Delegate).
func applyDelegate(db kvstore.Store, src types.Address, d types.Delegate) error {
	if d.Reverse {
		if err := staking.ApplyDelegate(db, src, d.To, d.Amount, true); err != nil {
			return err
		}
		bal, err := GetBalance(db, src, types.Ziesha)
		if err != nil {
			return err
		}
		return SetBalance(db, src, types.Ziesha, bal+d.Amount)
	}

	bal, err := GetBalance(db, src, types.Ziesha)
	if err != nil {
		return err
	}
	if bal < d.Amount {
		return ErrBalanceInsufficient
	}
	if err := SetBalance(db, src, types.Ziesha, bal-d.Amount); err != nil {
		return err
	}
	return staking.ApplyDelegate(db, src, d.To, d.Amount, false)
}

// applyUpdateStaker registers or updates src as a validator (spec §4.D
// UpdateStaker: "commission <= max_validator_commission").
func applyUpdateStaker(db kvstore.Store, policy Policy, src types.Address, d types.UpdateStaker) error {
	if d.Commission > policy.MaxValidatorCommission {
		return ErrValidatorCommissionTooHigh
	}
	return staking.SetValidator(db, src, d.VrfPublicKey, d.Commission)
}

// applyAutoDelegate sets the fraction of src's future payouts from d.To
// that are automatically redelegated back to d.To (spec §4.D AutoDelegate).
func applyAutoDelegate(db kvstore.Store, src types.Address, d types.AutoDelegate) error {
	return staking.SetAutoDelegateRatio(db, src, d.To, d.Ratio)
}
