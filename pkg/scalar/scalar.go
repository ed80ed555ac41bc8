// Package scalar implements the BLS12-381 scalar field element that is the
// canonical unit of every commitment, address, token id and field-embedded
// amount in the ledger (spec §3 "Scalar").
package scalar

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// Errors returned while converting between u64 amounts and field elements.
var (
	ErrNotU64Representable = errors.New("scalar: high bits set, not representable as u64")
	ErrInvalidEncoding      = errors.New("scalar: invalid 32-byte encoding")
)

// Scalar is a field element of the BLS12-381 scalar field. Zero is the
// default/empty value, matching spec §3.
type Scalar struct {
	inner fr.Element
}

// Zero returns the additive identity.
func Zero() Scalar { return Scalar{} }

// One returns the multiplicative identity.
func One() Scalar {
	var s Scalar
	s.inner.SetOne()
	return s
}

// FromUint64 zero-pads a u64 amount into a scalar (spec §9 Number representation).
func FromUint64(v uint64) Scalar {
	var s Scalar
	s.inner.SetUint64(v)
	return s
}

// FromBigInt reduces an arbitrary big.Int modulo the scalar field.
func FromBigInt(v *big.Int) Scalar {
	var s Scalar
	s.inner.SetBigInt(v)
	return s
}

// Uint64 extracts a u64 amount back out of the scalar. Conversion is
// partial: it fails if any bits above the low 64 are set.
func (s Scalar) Uint64() (uint64, error) {
	var asBig big.Int
	s.inner.BigInt(&asBig)
	if asBig.BitLen() > 64 {
		return 0, ErrNotU64Representable
	}
	return asBig.Uint64(), nil
}

// Add returns s + o.
func (s Scalar) Add(o Scalar) Scalar {
	var r Scalar
	r.inner.Add(&s.inner, &o.inner)
	return r
}

// Sub returns s - o.
func (s Scalar) Sub(o Scalar) Scalar {
	var r Scalar
	r.inner.Sub(&s.inner, &o.inner)
	return r
}

// Mul returns s * o.
func (s Scalar) Mul(o Scalar) Scalar {
	var r Scalar
	r.inner.Mul(&s.inner, &o.inner)
	return r
}

// Inverse returns the multiplicative inverse of s (spec §9: field scalars
// must support multiplicative inverse).
func (s Scalar) Inverse() (Scalar, bool) {
	if s.IsZero() {
		return Scalar{}, false
	}
	var r Scalar
	r.inner.Inverse(&s.inner)
	return r, true
}

// Sqrt returns a square root of s, if one exists (spec §9: square root).
func (s Scalar) Sqrt() (Scalar, bool) {
	var r Scalar
	if r.inner.Sqrt(&s.inner) == nil {
		return Scalar{}, false
	}
	return r, true
}

// IsZero reports whether s is the additive identity.
func (s Scalar) IsZero() bool {
	return s.inner.IsZero()
}

// Equal reports field equality.
func (s Scalar) Equal(o Scalar) bool {
	return s.inner.Equal(&o.inner)
}

// Cmp provides a total order over canonical representations, used for the
// big-endian-complement descending rank indices (spec §3 staker_rank,
// §6 SRK/DEK/DRK key layout).
func (s Scalar) Cmp(o Scalar) int {
	sb := s.inner.Bytes()
	ob := o.inner.Bytes()
	for i := range sb {
		if sb[i] != ob[i] {
			if sb[i] < ob[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Bits returns the little-endian bit decomposition (spec §9).
func (s Scalar) Bits() []bool {
	var asBig big.Int
	s.inner.BigInt(&asBig)
	bits := make([]bool, fr.Bits)
	for i := 0; i < fr.Bits; i++ {
		bits[i] = asBig.Bit(i) == 1
	}
	return bits
}

// Bytes returns the canonical little-endian 32-byte encoding (spec §6:
// "scalars serialized in canonical little-endian 32-byte form").
func (s Scalar) Bytes() [32]byte {
	be := s.inner.Bytes()
	var le [32]byte
	for i, b := range be {
		le[32-1-i] = b
	}
	return le
}

// FromBytes decodes the canonical little-endian 32-byte encoding.
func FromBytes(b [32]byte) (Scalar, error) {
	var be [32]byte
	for i, v := range b {
		be[32-1-i] = v
	}
	var s Scalar
	if _, err := s.inner.SetBytesCanonical(be[:]); err != nil {
		return Scalar{}, ErrInvalidEncoding
	}
	return s, nil
}

// FromDigest reduces an arbitrary-length hash digest into a scalar by
// treating it as a big-endian integer modulo the field, used wherever a
// SHA3-256 digest needs to become a message scalar or content-addressed id.
func FromDigest(digest [32]byte) Scalar {
	return FromBigInt(new(big.Int).SetBytes(digest[:]))
}

// SetRandom draws a uniformly random scalar.
func SetRandom() (Scalar, error) {
	var s Scalar
	if _, err := s.inner.SetRandom(); err != nil {
		return Scalar{}, err
	}
	return s, nil
}

// Element exposes the underlying gnark-crypto field element for callers
// that need direct interop with gnark circuits/witnesses.
func (s Scalar) Element() fr.Element { return s.inner }

// FromElement wraps a raw gnark-crypto field element.
func FromElement(e fr.Element) Scalar { return Scalar{inner: e} }

// MarshalJSON encodes the scalar as the hex of its canonical 32-byte form,
// used by internal/txapply's contract/token persistence.
func (s Scalar) MarshalJSON() ([]byte, error) {
	b := s.Bytes()
	return json.Marshal(hex.EncodeToString(b[:]))
}

// UnmarshalJSON decodes the hex form written by MarshalJSON.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var h string
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return ErrInvalidEncoding
	}
	var arr [32]byte
	copy(arr[:], raw)
	decoded, err := FromBytes(arr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
