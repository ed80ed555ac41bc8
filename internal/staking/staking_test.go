package staking

import (
	"testing"

	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

func testAddress(seed uint64) types.Address {
	return types.Address{PublicKey: types.PublicKey{X: scalar.FromUint64(seed), Parity: seed%2 == 0}}
}

func TestApplyDelegateAccumulatesStakeAndDelegate(t *testing.T) {
	db := storage.NewRamStore()
	delegator := testAddress(1)
	validator := testAddress(2)

	if err := ApplyDelegate(db, delegator, validator, 100, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}
	if err := ApplyDelegate(db, delegator, validator, 50, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}

	amt, err := GetDelegate(db, delegator, validator)
	if err != nil || amt != 150 {
		t.Fatalf("GetDelegate: %d, %v", amt, err)
	}
	stake, err := GetStake(db, validator)
	if err != nil || stake != 150 {
		t.Fatalf("GetStake: %d, %v", stake, err)
	}
}

func TestApplyDelegateReverseUndelegates(t *testing.T) {
	db := storage.NewRamStore()
	delegator := testAddress(1)
	validator := testAddress(2)

	if err := ApplyDelegate(db, delegator, validator, 100, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}
	if err := ApplyDelegate(db, delegator, validator, 40, true); err != nil {
		t.Fatalf("ApplyDelegate reverse: %v", err)
	}

	amt, err := GetDelegate(db, delegator, validator)
	if err != nil || amt != 60 {
		t.Fatalf("GetDelegate after reverse: %d, %v", amt, err)
	}
	stake, err := GetStake(db, validator)
	if err != nil || stake != 60 {
		t.Fatalf("GetStake after reverse: %d, %v", stake, err)
	}
}

func TestApplyDelegateReverseUnderflowRejected(t *testing.T) {
	db := storage.NewRamStore()
	delegator := testAddress(1)
	validator := testAddress(2)

	if err := ApplyDelegate(db, delegator, validator, 10, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}
	if err := ApplyDelegate(db, delegator, validator, 20, true); err != ErrDelegateUnderflow {
		t.Errorf("expected ErrDelegateUnderflow, got %v", err)
	}
}

func TestApplyDelegateToZeroRemovesIndexEntries(t *testing.T) {
	db := storage.NewRamStore()
	delegator := testAddress(1)
	validator := testAddress(2)

	if err := ApplyDelegate(db, delegator, validator, 100, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}
	if err := ApplyDelegate(db, delegator, validator, 100, true); err != nil {
		t.Fatalf("ApplyDelegate reverse to zero: %v", err)
	}

	amt, err := GetDelegate(db, delegator, validator)
	if err != nil || amt != 0 {
		t.Fatalf("GetDelegate should be zero: %d, %v", amt, err)
	}
	validators, err := ValidatorsByRank(db)
	if err != nil {
		t.Fatalf("ValidatorsByRank: %v", err)
	}
	if len(validators) != 0 {
		t.Errorf("zero-stake validator should not appear in rank index, got %v", validators)
	}
}

func TestValidatorsByRankDescendingOrder(t *testing.T) {
	db := storage.NewRamStore()
	v1, v2, v3 := testAddress(10), testAddress(11), testAddress(12)
	delegator := testAddress(1)

	for _, pair := range []struct {
		v types.Address
		a uint64
	}{{v1, 50}, {v2, 200}, {v3, 100}} {
		if err := ApplyDelegate(db, delegator, pair.v, pair.a, false); err != nil {
			t.Fatalf("ApplyDelegate: %v", err)
		}
	}

	ranked, err := ValidatorsByRank(db)
	if err != nil {
		t.Fatalf("ValidatorsByRank: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 validators, got %d", len(ranked))
	}
	if !ranked[0].Equal(v2) || !ranked[1].Equal(v3) || !ranked[2].Equal(v1) {
		t.Errorf("expected descending-stake order [v2,v3,v1], got %v", ranked)
	}
}

func TestDelegatorsOfReturnsDescendingAmounts(t *testing.T) {
	db := storage.NewRamStore()
	validator := testAddress(20)
	d1, d2 := testAddress(1), testAddress(2)

	if err := ApplyDelegate(db, d1, validator, 30, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}
	if err := ApplyDelegate(db, d2, validator, 70, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}

	delegations, err := DelegatorsOf(db, validator)
	if err != nil {
		t.Fatalf("DelegatorsOf: %v", err)
	}
	if len(delegations) != 2 {
		t.Fatalf("expected 2 delegations, got %d", len(delegations))
	}
	if delegations[0].Amount != 70 || !delegations[0].Delegator.Equal(d2) {
		t.Errorf("expected the larger delegation first, got %+v", delegations[0])
	}
	if delegations[1].Amount != 30 || !delegations[1].Delegator.Equal(d1) {
		t.Errorf("expected the smaller delegation second, got %+v", delegations[1])
	}
}

func TestSetValidatorAndGetValidator(t *testing.T) {
	db := storage.NewRamStore()
	addr := testAddress(5)
	delegator := testAddress(6)
	var vrf [32]byte
	vrf[0] = 0xAB

	if err := SetValidator(db, addr, vrf, 150); err != nil {
		t.Fatalf("SetValidator: %v", err)
	}
	if err := ApplyDelegate(db, delegator, addr, 1000, false); err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}

	v, ok, err := GetValidator(db, addr)
	if err != nil || !ok {
		t.Fatalf("GetValidator: ok=%v, err=%v", ok, err)
	}
	if v.VrfPublicKey != vrf {
		t.Errorf("VrfPublicKey mismatch: got %x", v.VrfPublicKey)
	}
	if v.Commission != 150 {
		t.Errorf("Commission mismatch: got %d", v.Commission)
	}
	if v.Stake != 1000 {
		t.Errorf("Stake mismatch: got %d", v.Stake)
	}
}

func TestGetValidatorUnregisteredReportsNotOk(t *testing.T) {
	db := storage.NewRamStore()
	if _, ok, err := GetValidator(db, testAddress(99)); ok || err != nil {
		t.Errorf("expected ok=false, err=nil for an unregistered validator, got ok=%v err=%v", ok, err)
	}
}

func TestAutoDelegateRatioRoundTripAndZeroRemoves(t *testing.T) {
	db := storage.NewRamStore()
	delegator, validator := testAddress(1), testAddress(2)

	if err := SetAutoDelegateRatio(db, delegator, validator, types.Ratio(128)); err != nil {
		t.Fatalf("SetAutoDelegateRatio: %v", err)
	}
	ratio, err := GetAutoDelegateRatio(db, delegator, validator)
	if err != nil || ratio != 128 {
		t.Fatalf("GetAutoDelegateRatio: %v, %v", ratio, err)
	}

	if err := SetAutoDelegateRatio(db, delegator, validator, 0); err != nil {
		t.Fatalf("SetAutoDelegateRatio(0): %v", err)
	}
	ratio, err = GetAutoDelegateRatio(db, delegator, validator)
	if err != nil || ratio != 0 {
		t.Fatalf("GetAutoDelegateRatio after clearing: %v, %v", ratio, err)
	}
}
