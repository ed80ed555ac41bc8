// Package mpn implements the payment-network batcher: the off-chain
// process that folds pending zk-authenticated deposit, withdraw and
// internal-transfer requests into the MPN contract's account tree and
// produces the row lists an UpdateContract transaction carries on-chain
// (spec §4.G).
//
// Grounded on original_source/src/mpn/{deposit,withdraw,update}.rs, with
// the zk-proof witness bookkeeping those files carry (balance_proof,
// src_proof, ...) dropped: this ledger's on-chain side
// (internal/txapply/updatecontract.go) only ever checks a batch's proof
// against (prevState, aux, nextState) where aux chains poseidon over a
// flat row-scalar per entry, so the batcher only needs to produce that
// much, leaving full circuit witnesses to an external prover (spec §1).
package mpn

import (
	"errors"

	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Errors surfaced by batch admission (spec §4.G "a request that fails any
// check is rejected, not aborted: batching continues with the rest").
var (
	ErrUnknownAccount     = errors.New("mpn: zk-address has no assigned account slot")
	ErrTokenSlotsExhausted = errors.New("mpn: account has no free or matching token slot")
	ErrTokenMismatch      = errors.New("mpn: amount token does not match the resolved slot")
	ErrBalanceInsufficient = errors.New("mpn: account token balance is insufficient")
	ErrNonceMismatch      = errors.New("mpn: request nonce does not match the account's next nonce")
	ErrAddressMismatch    = errors.New("mpn: account already bound to a different zk-address")
	ErrSignatureInvalid   = errors.New("mpn: signature verification failed")
)

// PendingDeposit is a raw incoming deposit request, equivalent to the
// original's MpnDeposit: chain-side payment (src, token, amount, fee) bound
// to a destination zk-address inside the MPN tree. Src's own signature over
// the payment (verified by internal/txapply when the surrounding
// DepositEntry lands on-chain) is carried in Sig; the batcher itself only
// resolves the destination slot and folds the amount in.
type PendingDeposit struct {
	ZkAddress types.PublicKey
	Src       types.Address
	Token     types.TokenId
	Amount    uint64
	FeeToken  types.TokenId
	Fee       uint64
	Calldata  scalar.Scalar
	Sig       types.Signature
}

// PendingWithdraw is a raw outgoing withdraw request, equivalent to the
// original's MpnWithdraw: authenticated by the account's own zk-signature
// (EdDSA over the request, not the signature of a chain transaction),
// since leaving the MPN tree requires the tree's own key, not a chain key.
type PendingWithdraw struct {
	ZkAddress types.PublicKey
	Dst       types.Address
	Token     types.TokenId
	Amount    uint64
	FeeToken  types.TokenId
	Fee       uint64
	Calldata  scalar.Scalar
	Nonce     uint64
	Sig       types.Signature
}

// PendingTransfer is a request to move balance between two MPN accounts
// without ever leaving the tree, equivalent to the original's
// MpnTransaction (spec §4.G "update").
type PendingTransfer struct {
	SrcPub types.PublicKey
	DstPub types.PublicKey
	Amount types.Money
	Fee    types.Money
	Nonce  uint32
	Sig    types.Signature
}

// Rejected pairs a pending request with the reason it did not make it into
// a batch (spec §4.G "rejections are reported, not silently dropped").
type Rejected[T any] struct {
	Request T
	Err     error
}

// BatchResult is shared by every batch function: the MPN contract's new
// compressed state plus the rows to carry on-chain and whatever requests
// did not make the cut.
type BatchResult[E any, P any] struct {
	NextState types.CompressedState
	Entries   []E
	Rejected  []Rejected[P]
}
