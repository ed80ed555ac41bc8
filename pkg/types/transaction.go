package types

import "github.com/ziesha-go/ledger/pkg/scalar"

// MaxMemoLength is the fixed constant from spec §6.
const MaxMemoLength = 64

// Signature is an EdDSA-on-JubJub signature over a transaction's hash
// scalar, or the Unsigned sentinel for system-issued transactions
// (spec §4.D: "src = None denotes a system-issued transaction with
// sig = Unsigned").
type Signature struct {
	Unsigned bool
	Bytes    []byte
}

// Transaction is the envelope common to every variant (spec §4.D).
type Transaction struct {
	Src  *Address // nil means system-issued (Treasury-sourced)
	Nonce uint32
	Data  TxData
	Fee   Money
	Sig   Signature
	Memo  string
}

// TxData is implemented by every transaction variant (spec §4.D).
type TxData interface {
	isTxData()
}

// RegularSend moves funds to one or more destinations, additionally
// appending each transfer to the teleport tree (spec §4.D).
type RegularSend struct {
	Entries []SendEntry
}

// SendEntry is a single (destination, amount) pair of a RegularSend.
type SendEntry struct {
	Dst   Address
	Money Money
}

func (RegularSend) isTxData() {}

// CreateContract deploys a new contract, installs its initial state and
// funds its escrow with Money (spec §4.D); it does not create or mint the
// contract's TokenContract token.
type CreateContract struct {
	Contract     Contract
	InitialState map[string]scalar.Scalar // locator-path-string -> leaf value, see txapply
	Money        Money
}

func (CreateContract) isTxData() {}

// DepositEntry is one row of an UpdateContract Deposit sub-operation
// (spec §4.D: "aux is the commitment to a fixed-shape List of (enabled,
// token_id, amount, calldata) rows").
type DepositEntry struct {
	Src      Address
	TokenId  TokenId
	Amount   uint64
	Calldata scalar.Scalar
	Sig      Signature
}

// WithdrawEntry is one row of an UpdateContract Withdraw sub-operation
// (spec §4.D: "aux over (enabled, amount_token, amount, fee_token, fee,
// fingerprint, calldata)").
type WithdrawEntry struct {
	Dst         Address
	AmountToken TokenId
	Amount      uint64
	FeeToken    TokenId
	Fee         uint64
	Calldata    scalar.Scalar
}

// ContractUpdate is a single sub-operation inside an UpdateContract
// transaction (spec §4.D).
type ContractUpdate struct {
	Deposit  *DepositUpdate
	Withdraw *WithdrawUpdate
	Function *FunctionCallUpdate
}

// DepositUpdate carries a deposit batch's proof (spec §4.D).
type DepositUpdate struct {
	CircuitId  uint32
	Entries    []DepositEntry
	NextState  CompressedState
	Proof      []byte
}

// WithdrawUpdate carries a withdraw batch's proof (spec §4.D).
type WithdrawUpdate struct {
	CircuitId  uint32
	Entries    []WithdrawEntry
	NextState  CompressedState
	Proof      []byte
}

// FunctionCallUpdate carries a plain function-call proof; it has no
// auxiliary row list (spec §4.D: "aux is a default compressed state").
type FunctionCallUpdate struct {
	FunctionId uint32
	NextState  CompressedState
	Proof      []byte
	Fee        uint64
}

// UpdateContract applies one or more zk-verified sub-operations to a
// contract, plus a direct state delta (spec §4.D).
type UpdateContract struct {
	ContractId ContractId
	Updates    []ContractUpdate
	Delta      map[string]scalar.Scalar // locator-path-string -> new leaf value
}

func (UpdateContract) isTxData() {}

// CreateToken mints a new fungible asset (spec §4.D).
type CreateToken struct {
	Token Token
}

func (CreateToken) isTxData() {}

// TokenUpdateKind discriminates UpdateToken's two operations (spec §4.D).
type TokenUpdateKind int

const (
	// TokenUpdateMint mints additional supply.
	TokenUpdateMint TokenUpdateKind = iota
	// TokenUpdateChangeMinter reassigns the minter key.
	TokenUpdateChangeMinter
)

// UpdateToken mints supply or changes a token's minter (spec §4.D).
type UpdateToken struct {
	TokenId    TokenId
	Kind       TokenUpdateKind
	MintAmount uint64   // valid when Kind == TokenUpdateMint
	NewMinter  *Address // valid when Kind == TokenUpdateChangeMinter
}

func (UpdateToken) isTxData() {}

// Delegate adjusts a delegation; Reverse undoes rather than adds
// (spec §4.D, confirmed against original_source's apply_tx/delegate.rs).
type Delegate struct {
	To      Address
	Amount  uint64
	Reverse bool
}

func (Delegate) isTxData() {}

// UpdateStaker registers or updates a validator entry (spec §4.D).
type UpdateStaker struct {
	VrfPublicKey [32]byte
	Commission   uint16
}

func (UpdateStaker) isTxData() {}

// AutoDelegate sets the auto-redelegation ratio toward a validator
// (spec §4.D).
type AutoDelegate struct {
	To    Address
	Ratio Ratio
}

func (AutoDelegate) isTxData() {}
