package scalar

import (
	"math/big"
	"testing"
)

func TestFromUint64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 32, ^uint64(0)} {
		s := FromUint64(v)
		got, err := s.Uint64()
		if err != nil {
			t.Fatalf("Uint64(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestUint64RejectsOversizedField(t *testing.T) {
	big := FromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))
	if _, err := big.Uint64(); err != ErrNotU64Representable {
		t.Errorf("expected ErrNotU64Representable, got %v", err)
	}
}

func TestZeroAndOne(t *testing.T) {
	if !Zero().IsZero() {
		t.Error("Zero() is not IsZero()")
	}
	if One().IsZero() {
		t.Error("One() reported IsZero()")
	}
	if !One().Equal(FromUint64(1)) {
		t.Error("One() != FromUint64(1)")
	}
}

func TestAddSubMulInverse(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(5)
	if !a.Add(b).Equal(FromUint64(12)) {
		t.Error("7 + 5 != 12")
	}
	if !a.Sub(b).Equal(FromUint64(2)) {
		t.Error("7 - 5 != 2")
	}
	if !a.Mul(b).Equal(FromUint64(35)) {
		t.Error("7 * 5 != 35")
	}
	inv, ok := a.Inverse()
	if !ok {
		t.Fatal("Inverse() reported not ok for nonzero scalar")
	}
	if !a.Mul(inv).Equal(One()) {
		t.Error("a * a^-1 != 1")
	}
	if _, ok := Zero().Inverse(); ok {
		t.Error("Inverse() of zero reported ok")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	s := FromUint64(123456789)
	b := s.Bytes()
	back, err := FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !s.Equal(back) {
		t.Error("Bytes/FromBytes round trip mismatch")
	}
}

func TestMarshalJSONRoundTrip(t *testing.T) {
	s := FromUint64(9001)
	raw, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var back Scalar
	if err := back.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !s.Equal(back) {
		t.Error("MarshalJSON/UnmarshalJSON round trip mismatch")
	}
}

func TestCmpOrdersDistinctScalars(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	if a.Cmp(b) >= 0 {
		t.Error("Cmp(1, 2) should be negative")
	}
	if a.Cmp(a) != 0 {
		t.Error("Cmp(a, a) should be zero")
	}
}
