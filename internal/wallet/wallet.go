// Package wallet wraps a generated signing key and the Address it derives,
// the Go counterpart of original_source's wallet::TxBuilder — a thin
// convenience layer over the raw sign/verify primitives spec.md leaves as
// an assumed external interface (spec §1/§6).
package wallet

import (
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// TxBuilder holds a signing key and its derived Address (original_source's
// TxBuilder struct).
type TxBuilder struct {
	priv *zkp.PrivateKey
	addr types.Address
}

// New generates a fresh signing key and derives its Address
// (original_source's TxBuilder::new).
func New() (*TxBuilder, error) {
	priv, err := zkp.GenerateKey()
	if err != nil {
		return nil, err
	}
	x, parity, err := priv.Public().Coordinates()
	if err != nil {
		return nil, err
	}
	return &TxBuilder{
		priv: priv,
		addr: types.Address{PublicKey: types.PublicKey{X: x, Parity: parity}},
	}, nil
}

// Address returns the builder's derived address (original_source's
// TxBuilder::get_address).
func (b *TxBuilder) Address() types.Address {
	return b.addr
}

// txMessageScalar folds a transaction's nonce/fee/memo into the same
// message scalar internal/txapply.verifySignature checks (everything the
// envelope carries except the signature itself).
func txMessageScalar(tx *types.Transaction) scalar.Scalar {
	var feeBuf [8]byte
	for i := range feeBuf {
		feeBuf[i] = byte(tx.Fee.Amount >> (8 * i))
	}
	var nonceBuf [8]byte
	for i := range nonceBuf {
		nonceBuf[i] = byte(uint64(tx.Nonce) >> (8 * i))
	}
	h := zkp.Sha3_256([]byte(tx.Memo), nonceBuf[:], feeBuf[:])
	return scalar.FromDigest(h)
}

// Sign sets tx.Src to b's address and installs a signature over tx's
// nonce/fee/memo (original_source's TxBuilder::sign).
func (b *TxBuilder) Sign(tx *types.Transaction) error {
	addr := b.addr
	tx.Src = &addr
	sig, err := b.priv.Sign(txMessageScalar(tx))
	if err != nil {
		return err
	}
	tx.Sig = types.Signature{Bytes: sig.Bytes()}
	return nil
}
