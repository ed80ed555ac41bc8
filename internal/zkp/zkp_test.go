package zkp

import (
	"testing"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

func TestSha3_256Deterministic(t *testing.T) {
	a := Sha3_256([]byte("hello"))
	b := Sha3_256([]byte("hello"))
	if a != b {
		t.Error("Sha3_256 should be deterministic for identical input")
	}
}

func TestSha3_256DistinguishesInputs(t *testing.T) {
	a := Sha3_256([]byte("hello"))
	b := Sha3_256([]byte("world"))
	if a == b {
		t.Error("Sha3_256 should not collide for distinct inputs in this test")
	}
}

func TestSha3_256MultiArgMatchesConcatenation(t *testing.T) {
	a := Sha3_256([]byte("foo"), []byte("bar"))
	b := Sha3_256([]byte("foobar"))
	if a != b {
		t.Error("Sha3_256 over multiple args should match hashing the concatenation")
	}
}

func TestGenerateKeySignVerifyRoundTrip(t *testing.T) {
	sk, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pk := sk.Public()
	msg := scalar.FromUint64(12345)

	sig, err := sk.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify(pk, msg, sig)
	if err != nil || !ok {
		t.Fatalf("Verify(valid sig): ok=%v, err=%v", ok, err)
	}
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	sk, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pk := sk.Public()

	sig, err := sk.Sign(scalar.FromUint64(1))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, _ := Verify(pk, scalar.FromUint64(2), sig)
	if ok {
		t.Error("Verify should reject a signature over a different message")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	sk1, _ := GenerateKey()
	sk2, _ := GenerateKey()
	msg := scalar.FromUint64(7)

	sig, err := sk1.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, _ := Verify(sk2.Public(), msg, sig)
	if ok {
		t.Error("Verify should reject a signature checked against the wrong public key")
	}
}

func TestPoseidonDeterministicAndArityBound(t *testing.T) {
	in := []scalar.Scalar{scalar.FromUint64(1), scalar.FromUint64(2)}
	a := Poseidon(in...)
	b := Poseidon(in...)
	if !a.Equal(b) {
		t.Error("Poseidon should be deterministic for identical input")
	}

	other := Poseidon(scalar.FromUint64(1), scalar.FromUint64(3))
	if a.Equal(other) {
		t.Error("Poseidon should distinguish different inputs in this test")
	}
}

func TestPoseidonPanicsOutsideArityRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a single-element input below the minimum arity")
		}
	}()
	Poseidon(scalar.FromUint64(1))
}
