// Package payout implements the end-of-block reward split between a
// proposing validator and its delegators (spec §4.H).
package payout

import (
	"github.com/ziesha-go/ledger/internal/config"
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/staking"
	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Run computes and issues the block's reward:
//
//	next_reward     = treasury_supply/reward_ratio + fee_sum
//	stakers_reward  = next_reward * (1 - commission/256)
//	per-delegator   = stakers_reward * stake/total_stake  (truncated)
//
// The validator keeps the commission cut plus whatever the per-delegator
// truncation left undistributed. Each payout is a mint-style system
// RegularSend (spec §3 "Treasury... source of block rewards": issuance is
// new supply, not a Treasury balance debit — the real fees already sitting
// in Treasury's balance from this block's tx fees are left there, growing
// treasury_supply for future blocks' reward calculation rather than being
// spent immediately). Every payout is immediately followed by a system
// Delegate back to validator when the recipient has a nonzero
// auto-delegation ratio toward it (spec §4.D AutoDelegate, §4.H).
//
// Returns the total reward minted, for the caller to fold into the
// block's bookkeeping.
func Run(db kvstore.Store, mgr *zkstate.Manager, policy txapply.Policy, cfg *config.BlockchainConfig, validator types.Address, treasurySupply, feeSum uint64) (uint64, error) {
	nextReward := treasurySupply/cfg.RewardRatio + feeSum
	if nextReward == 0 {
		return 0, nil
	}

	v, found, err := staking.GetValidator(db, validator)
	if err != nil {
		return 0, err
	}
	var commission uint64
	if found {
		commission = uint64(v.Commission)
	}
	commissionCut := nextReward * commission / 256
	stakersReward := nextReward - commissionCut
	validatorShare := commissionCut

	totalStake, err := staking.GetStake(db, validator)
	if err != nil {
		return 0, err
	}
	if totalStake == 0 {
		validatorShare += stakersReward
	} else {
		delegations, err := staking.DelegatorsOf(db, validator)
		if err != nil {
			return 0, err
		}
		var distributed uint64
		for _, d := range delegations {
			share := stakersReward * d.Amount / totalStake
			if share == 0 {
				continue
			}
			distributed += share
			if err := issuePayout(db, mgr, policy, d.Delegator, validator, share); err != nil {
				return 0, err
			}
		}
		validatorShare += stakersReward - distributed
	}

	if validatorShare > 0 {
		if err := issuePayout(db, mgr, policy, validator, validator, validatorShare); err != nil {
			return 0, err
		}
	}

	return nextReward, nil
}

// issuePayout mints amount to recipient, then redelegates
// ratio(recipient,validator) of it back to validator if that ratio is
// nonzero. Both legs run with isReward=true so txapply.ApplyTx bypasses
// signature/nonce/fee checks; the redelegation leg carries recipient as
// its Src so applyDelegate moves the correct account's own balance.
func issuePayout(db kvstore.Store, mgr *zkstate.Manager, policy txapply.Policy, recipient, validator types.Address, amount uint64) error {
	mintTx := &types.Transaction{
		Data: types.RegularSend{Entries: []types.SendEntry{
			{Dst: recipient, Money: types.Money{TokenId: types.Ziesha, Amount: amount}},
		}},
		Sig: types.Signature{Unsigned: true},
	}
	if err := txapply.ApplyTx(db, mgr, policy, mintTx, true); err != nil {
		return err
	}

	ratio, err := staking.GetAutoDelegateRatio(db, recipient, validator)
	if err != nil || ratio == 0 {
		return err
	}
	redelegate := ratio.Apply(amount)
	if redelegate == 0 {
		return nil
	}

	recip := recipient
	delegateTx := &types.Transaction{
		Src:  &recip,
		Data: types.Delegate{To: validator, Amount: redelegate, Reverse: false},
		Sig:  types.Signature{Unsigned: true},
	}
	return txapply.ApplyTx(db, mgr, policy, delegateTx, true)
}
