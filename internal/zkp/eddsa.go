package zkp

import (
	"crypto/rand"
	"errors"
	"hash"

	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	eddsabls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381/twistededwards/eddsa"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

// EdDSA-on-JubJub is consumed as an assumed primitive per spec §1/§6
// ("jubjub_eddsa_verify(pk, msg_scalar, sig) and sign(sk, msg_scalar)").
// gnark-crypto ships the JubJub-over-BLS12-381 twisted Edwards curve and a
// native (non-circuit) EdDSA implementation for exactly this pairing —
// this wraps that package rather than hand-rolling curve arithmetic.

// ErrInvalidSignature is returned when a signature fails verification.
var ErrInvalidSignature = errors.New("zkp: invalid eddsa signature")

// PrivateKey is a JubJub EdDSA signing key.
type PrivateKey struct {
	inner eddsabls12381.PrivateKey
}

// PublicKey is a JubJub EdDSA compressed public key (spec §3: "one scalar
// plus one parity bit").
type PublicKey struct {
	inner eddsabls12381.PublicKey
}

// Signature is a JubJub EdDSA signature.
type Signature struct {
	bytes []byte
}

// GenerateKey draws a new random signing key.
func GenerateKey() (*PrivateKey, error) {
	sk, err := eddsabls12381.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{inner: *sk}, nil
}

// Public returns the public key corresponding to sk.
func (sk *PrivateKey) Public() PublicKey {
	return PublicKey{inner: sk.inner.PublicKey}
}

// Sign signs a single field-element message scalar, as §6 requires.
func (sk *PrivateKey) Sign(msg scalar.Scalar) (Signature, error) {
	b := msg.Bytes()
	sig, err := sk.inner.Sign(b[:], hashFunctionForEdDSA())
	if err != nil {
		return Signature{}, err
	}
	return Signature{bytes: sig}, nil
}

// Verify checks sig against msg under pk.
func Verify(pk PublicKey, msg scalar.Scalar, sig Signature) (bool, error) {
	b := msg.Bytes()
	ok, err := pk.inner.Verify(sig.bytes, b[:], hashFunctionForEdDSA())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidSignature
	}
	return true, nil
}

// PublicKeyFromCompressed rebuilds a PublicKey from the compressed (x,
// parity) representation a types.Address carries (spec §3: "one scalar
// plus one parity bit").
func PublicKeyFromCompressed(x scalar.Scalar, parity bool) PublicKey {
	b := x.Bytes()
	if parity {
		b[31] |= 0x80
	}
	var pk eddsabls12381.PublicKey
	_, _ = pk.SetBytes(b[:])
	return PublicKey{inner: pk}
}

// SignatureFromBytes wraps a raw wire-format signature.
func SignatureFromBytes(raw []byte) Signature {
	return Signature{bytes: raw}
}

// Bytes returns sig's raw wire-format bytes.
func (sig Signature) Bytes() []byte {
	return sig.bytes
}

// Coordinates recovers pk's compressed (x, parity) representation, the
// inverse of PublicKeyFromCompressed — the pair a types.Address stores for
// any key a wallet generates rather than imports pre-compressed.
func (pk PublicKey) Coordinates() (scalar.Scalar, bool, error) {
	raw := pk.inner.Bytes()
	parity := raw[len(raw)-1]&0x80 != 0
	raw[len(raw)-1] &^= 0x80
	var arr [32]byte
	copy(arr[:], raw)
	x, err := scalar.FromBytes(arr)
	return x, parity, err
}

// hashFunctionForEdDSA returns the hash used for EdDSA's deterministic
// nonce + challenge derivation. gnark-crypto's bls12-381 EdDSA flavor is
// parameterized over the same curve's scalar field, so SHA3-256 (already
// the module's content-addressing hash, see hash.go) is consistent.
func hashFunctionForEdDSA() hash.Hash {
	return sha3Hash()
}

var jubjubID = tedwards.BLS12_381
