// Package staking maintains delegation and validator records: aggregate
// stake per validator, individual delegate rows, and the three rank
// indices that let leader election and payout scan validators/delegators
// by amount without a full table scan (spec §3 "Delegate / Stake", §6
// STK/SRK/DEL/DEK/DRK key layout).
//
// Grounded on internal/reputation/manager.go's EWMA-ranked-miner
// bookkeeping, repurposed here from reputation scores to stake amounts:
// same "aggregate value plus a descending-rank index" shape, applied to a
// different quantity.
package staking

import (
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Errors surfaced by staking operations (spec §7).
var (
	ErrValidatorNotRegistered = errors.New("staking: validator not registered")
	ErrDelegateUnderflow      = errors.New("staking: reverse delegation exceeds delegated amount")
)

func addressKey(a types.Address) string {
	x := a.X.Bytes()
	if a.Parity {
		return "1" + hexString(x[:])
	}
	return "0" + hexString(x[:])
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

// addressFromKey reverses addressKey, reconstructing the Address it
// encoded. Used when a rank-index scan yields addresses as key fragments
// rather than typed values (spec §4.H payout: "scan delegators of V").
func addressFromKey(k string) (types.Address, error) {
	if len(k) != 65 {
		return types.Address{}, errors.New("staking: malformed address key")
	}
	raw, err := hexDecode(k[1:])
	if err != nil {
		return types.Address{}, err
	}
	var xb [32]byte
	copy(xb[:], raw)
	x, err := scalar.FromBytes(xb)
	if err != nil {
		return types.Address{}, err
	}
	return types.Address{PublicKey: types.PublicKey{X: x, Parity: k[0] == '1'}}, nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New("staking: odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// complement is the bitwise complement used so a forward prefix scan over
// the rank keyspace yields descending amount order (spec §3, §6).
func complement(v uint64) uint64 { return ^v }

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		padded := make([]byte, 8)
		copy(padded, b)
		b = padded
	}
	return binary.LittleEndian.Uint64(b)
}

// GetStake returns a validator's current aggregate delegated stake.
func GetStake(db kvstore.Store, validator types.Address) (uint64, error) {
	raw, ok, err := db.Get(kvstore.StakeKey(addressKey(validator)))
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(raw), nil
}

// setStake writes validator's new aggregate stake and re-indexes its
// staker-rank key, given the previously-read amount (spec §6 STK/SRK).
func setStake(db kvstore.Store, validator types.Address, prev, next uint64) error {
	addr := addressKey(validator)
	ops := []kvstore.WriteOp{kvstore.Remove(kvstore.StakerRankKey(complement(prev), addr))}
	if next == 0 {
		ops = append(ops, kvstore.Remove(kvstore.StakeKey(addr)))
	} else {
		ops = append(ops,
			kvstore.Put(kvstore.StakeKey(addr), encodeU64(next)),
			kvstore.Put(kvstore.StakerRankKey(complement(next), addr), []byte{1}),
		)
	}
	return db.Update(ops)
}

// GetDelegate returns the amount delegator has delegated to validator.
func GetDelegate(db kvstore.Store, delegator, validator types.Address) (uint64, error) {
	raw, ok, err := db.Get(kvstore.DelegateKey(addressKey(delegator), addressKey(validator)))
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(raw), nil
}

// setDelegate writes the new delegate amount and re-indexes both rank
// keys, given the previously-read amount (spec §6 DEL/DEK/DRK).
func setDelegate(db kvstore.Store, delegator, validator types.Address, prev, next uint64) error {
	from := addressKey(delegator)
	to := addressKey(validator)
	ops := []kvstore.WriteOp{
		kvstore.Remove(kvstore.DelegateByDelegatorKey(from, complement(prev), to)),
		kvstore.Remove(kvstore.DelegateByValidatorKey(to, complement(prev), from)),
	}
	if next == 0 {
		ops = append(ops, kvstore.Remove(kvstore.DelegateKey(from, to)))
	} else {
		ops = append(ops,
			kvstore.Put(kvstore.DelegateKey(from, to), encodeU64(next)),
			kvstore.Put(kvstore.DelegateByDelegatorKey(from, complement(next), to), []byte{1}),
			kvstore.Put(kvstore.DelegateByValidatorKey(to, complement(next), from), []byte{1}),
		)
	}
	return db.Update(ops)
}

// ApplyDelegate adjusts the delegation from delegator to validator by
// amount (or undoes it, when reverse is set), updating the delegate
// record, both rank indices, and the validator's aggregate stake
// atomically (spec §4.D Delegate: "adjust src balance, delegate record,
// and all three ranked indices atomically... update aggregate stake").
// Callers own the src balance-side effect; this only touches the
// delegation/stake bookkeeping.
func ApplyDelegate(db kvstore.Store, delegator, validator types.Address, amount uint64, reverse bool) error {
	prevDelegate, err := GetDelegate(db, delegator, validator)
	if err != nil {
		return err
	}
	nextDelegate := prevDelegate + amount
	if reverse {
		if amount > prevDelegate {
			return ErrDelegateUnderflow
		}
		nextDelegate = prevDelegate - amount
	}
	if err := setDelegate(db, delegator, validator, prevDelegate, nextDelegate); err != nil {
		return err
	}

	prevStake, err := GetStake(db, validator)
	if err != nil {
		return err
	}
	nextStake := prevStake + amount
	if reverse {
		if amount > prevStake {
			return ErrDelegateUnderflow
		}
		nextStake = prevStake - amount
	}
	return setStake(db, validator, prevStake, nextStake)
}

// GetValidator reads a registered validator's VRF key, commission and
// current aggregate stake.
func GetValidator(db kvstore.Store, addr types.Address) (*types.Validator, bool, error) {
	raw, ok, err := db.Get(kvstore.ValidatorKey(addressKey(addr)))
	if err != nil || !ok {
		return nil, false, err
	}
	if len(raw) < 34 {
		return nil, false, ErrValidatorNotRegistered
	}
	var vrf [32]byte
	copy(vrf[:], raw[:32])
	commission := binary.LittleEndian.Uint16(raw[32:34])
	stake, err := GetStake(db, addr)
	if err != nil {
		return nil, false, err
	}
	return &types.Validator{Address: addr, VrfPublicKey: vrf, Commission: commission, Stake: stake}, true, nil
}

// SetValidator registers or updates a validator's VRF key and commission
// (spec §4.D UpdateStaker). Aggregate stake is tracked separately via
// ApplyDelegate and is left untouched here.
func SetValidator(db kvstore.Store, addr types.Address, vrfPub [32]byte, commission uint16) error {
	buf := make([]byte, 34)
	copy(buf[:32], vrfPub[:])
	binary.LittleEndian.PutUint16(buf[32:34], commission)
	return db.Update([]kvstore.WriteOp{kvstore.Put(kvstore.ValidatorKey(addressKey(addr)), buf)})
}

// GetAutoDelegateRatio reads the fraction of delegator's future payouts
// from validator that auto-redelegate back to validator (spec §4.D
// AutoDelegate), defaulting to zero.
func GetAutoDelegateRatio(db kvstore.Store, delegator, validator types.Address) (types.Ratio, error) {
	raw, ok, err := db.Get(kvstore.AutoDelegateKey(addressKey(delegator), addressKey(validator)))
	if err != nil || !ok || len(raw) == 0 {
		return 0, err
	}
	return types.Ratio(raw[0]), nil
}

// SetAutoDelegateRatio writes the auto-redelegation ratio, removing the
// key entirely when the ratio is zero.
func SetAutoDelegateRatio(db kvstore.Store, delegator, validator types.Address, ratio types.Ratio) error {
	key := kvstore.AutoDelegateKey(addressKey(delegator), addressKey(validator))
	if ratio == 0 {
		return db.Update([]kvstore.WriteOp{kvstore.Remove(key)})
	}
	return db.Update([]kvstore.WriteOp{kvstore.Put(key, []byte{byte(ratio)})})
}

// Delegation pairs a delegator with the amount it has delegated.
type Delegation struct {
	Delegator types.Address
	Amount    uint64
}

// DelegatorsOf returns every address currently delegating to validator, in
// descending-amount order, by scanning the by-validator rank index (spec
// §4.H "iterate delegators of V").
func DelegatorsOf(db kvstore.Store, validator types.Address) ([]Delegation, error) {
	prefix := "DRK-" + addressKey(validator) + "-"
	pairs, err := db.Pairs(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Delegation, 0, len(pairs))
	for _, p := range pairs {
		rest := p.Key[len(prefix):]
		if len(rest) < 17 {
			continue
		}
		amtComplement, err := strconv.ParseUint(rest[:16], 16, 64)
		if err != nil {
			continue
		}
		addr, err := addressFromKey(rest[17:])
		if err != nil {
			continue
		}
		out = append(out, Delegation{Delegator: addr, Amount: complement(amtComplement)})
	}
	return out, nil
}

// ValidatorsByRank returns every address with a nonzero aggregate stake,
// whether or not it is registered via SetValidator, in descending
// aggregate-stake order, by scanning the staker-rank index (spec §4.E
// "leader election draws on the staker-rank index").
func ValidatorsByRank(db kvstore.Store) ([]types.Address, error) {
	pairs, err := db.Pairs("SRK-")
	if err != nil {
		return nil, err
	}
	out := make([]types.Address, 0, len(pairs))
	for _, p := range pairs {
		rest := p.Key[len("SRK-"):]
		if len(rest) < 17 {
			continue
		}
		addr, err := addressFromKey(rest[17:])
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out, nil
}
