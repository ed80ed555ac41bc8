package zkp

import (
	"bytes"
	"errors"

	"github.com/consensys/gnark-crypto/ecc"
	gnarkgroth16 "github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

// Groth16 proof verification, BLS12-381 EdDSA and the circuits themselves
// are assumed external primitives (spec §1); this wraps gnark's generic
// groth16.Verify entrypoint for the BLS12-381 curve so UpdateContract's
// deposit/withdraw/function-call proof checks (spec §4.D) and the MPN
// batcher's public-input tuples (§4.G) have a real verifier to call,
// without defining the constraint systems those proofs were produced
// against (out of scope per §1 — "the Groth16 prover/verifier internals...
// assumed as primitives with the contracts in §6").

// ErrProofVerificationFailed means a submitted Groth16 proof does not
// verify against its verifying key and public inputs.
var ErrProofVerificationFailed = errors.New("zkp: groth16 proof did not verify")

const curve = ecc.BLS12_381

// VerifyingKey wraps a deserialized gnark BLS12-381 Groth16 verifying key.
type VerifyingKey struct {
	inner gnarkgroth16.VerifyingKey
}

// Proof wraps a deserialized gnark BLS12-381 Groth16 proof.
type Proof struct {
	inner gnarkgroth16.Proof
}

// DecodeVerifyingKey parses a gnark-serialized verifying key blob.
func DecodeVerifyingKey(raw []byte) (*VerifyingKey, error) {
	vk := gnarkgroth16.NewVerifyingKey(curve)
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &VerifyingKey{inner: vk}, nil
}

// DecodeProof parses a gnark-serialized proof blob.
func DecodeProof(raw []byte) (*Proof, error) {
	p := gnarkgroth16.NewProof(curve)
	if _, err := p.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &Proof{inner: p}, nil
}

// VerifyGroth16 checks proof against vk and the ordered public inputs,
// implementing spec §6's groth16_verify(vk, [public_inputs]) -> bool.
func VerifyGroth16(vk *VerifyingKey, proof *Proof, publicInputs []scalar.Scalar) (bool, error) {
	values := make([]any, len(publicInputs))
	for i, s := range publicInputs {
		values[i] = s.Element()
	}

	publicWitness, err := witness.New(curve.ScalarField())
	if err != nil {
		return false, err
	}
	if err := publicWitness.Fill(len(values), 0, sliceIterator(values)); err != nil {
		return false, err
	}

	if err := gnarkgroth16.Verify(proof.inner, vk.inner, publicWitness); err != nil {
		return false, ErrProofVerificationFailed
	}
	return true, nil
}

func sliceIterator(values []any) func() (any, error) {
	i := 0
	return func() (any, error) {
		if i >= len(values) {
			return nil, nil
		}
		v := values[i]
		i++
		return v, nil
	}
}
