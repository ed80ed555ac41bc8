// Package types defines the ledger's core data model: addresses, accounts,
// contracts, blocks and transactions (spec §3).
package types

import (
	"encoding/hex"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

// HashSize is the width in bytes of a content-addressing hash.
const HashSize = 32

// Hash is a generic 32-byte content hash (block hashes, tx hashes,
// contract/token ids before they're reinterpreted as scalars).
type Hash [HashSize]byte

// String renders the hash as a 0x-prefixed hex string.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash (used for genesis'
// parent_hash and the empty-contract sentinel).
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// PublicKey is an EdDSA-on-JubJub public key, canonically compressed as one
// scalar (the curve point's x-coordinate) plus a parity bit for y (spec §3).
type PublicKey struct {
	X      scalar.Scalar
	Parity bool
}

// Address wraps a compressed public key. A distinguished zero Address (both
// X and Parity zero/false) is never a valid signing key and is used as the
// "empty slot" sentinel for MPN accounts (spec §3 invariant 6).
type Address struct {
	PublicKey
}

// Treasury is the distinguished system address that funds block rewards
// (spec §3 "A distinguished Treasury address exists as the source of block
// rewards").
var Treasury = Address{}

// IsZero reports whether a is the zero/empty address.
func (a Address) IsZero() bool {
	return a.X.IsZero() && !a.Parity
}

// Equal reports address equality.
func (a Address) Equal(o Address) bool {
	return a.X.Equal(o.X) && a.Parity == o.Parity
}

// MpnAddress identifies an account inside the MPN contract by its slot
// index, rather than by public key (spec §3 MpnAccount, §4.G slot
// resolution: "existing index if known, else the next unused slot").
type MpnAddress struct {
	Index uint64
}

// TokenId is either the canonical Ziesha token or a content-addressed
// scalar derived from the transaction that created a custom token
// (spec §3 Money).
type TokenId scalar.Scalar

// Ziesha is the chain's native token id, the field constant 1 (spec §3).
var Ziesha = TokenId(scalar.FromUint64(1))

// Equal reports token id equality.
func (t TokenId) Equal(o TokenId) bool {
	return scalar.Scalar(t).Equal(scalar.Scalar(o))
}

// MarshalJSON/UnmarshalJSON delegate to scalar.Scalar's hex encoding, since
// a defined type does not inherit its underlying type's methods.
func (t TokenId) MarshalJSON() ([]byte, error) {
	return scalar.Scalar(t).MarshalJSON()
}

func (t *TokenId) UnmarshalJSON(data []byte) error {
	var s scalar.Scalar
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = TokenId(s)
	return nil
}

// Money is an amount of a specific token (spec §3).
type Money struct {
	TokenId TokenId
	Amount  uint64
}
