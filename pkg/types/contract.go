package types

// ContractId content-addresses a contract by its creation transaction's
// hash (spec §3 "A contract is content-addressed by its creation
// transaction's hash").
type ContractId Hash

// MpnContractId is the well-known contract id fixed at genesis for the
// payment-network rollup (spec §3, GLOSSARY "MPN").
var MpnContractId ContractId

// TeleportContractId is the well-known chain-owned contract recording
// every RegularSend as an append-only history (spec §4.D RegularSend,
// GLOSSARY "Teleport tree").
var TeleportContractId ContractId

// Contract is a deployed piece of zk-verified state (spec §3 "Contract").
type Contract struct {
	StateModel    StateModel
	InitialState  CompressedState
	TokenContract *TokenId // optional token id; deployment does not create or mint it

	DepositVerifyingKeys  [][]byte
	WithdrawVerifyingKeys [][]byte
	FunctionVerifyingKeys [][]byte
}

// ContractAccount tracks a contract's update height and current compressed
// state (spec §3 "ContractAccount... Incremented exactly once per contract
// update").
type ContractAccount struct {
	Height          uint64
	CompressedState CompressedState
}

// Token describes a custom fungible asset (spec §4.D CreateToken).
type Token struct {
	Id       TokenId
	Name     string
	Symbol   string
	Supply   uint64
	Minter   *Address // nil means not updatable (spec §4.D UpdateToken)
	Decimals uint8
}

// MpnAccount is a single slot of the MPN contract's account list: a fixed
// struct (tx_nonce, withdraw_nonce, address.x, address.y, tokens) where
// tokens is itself a sub-tree addressed by a small token index
// (spec §3 "MpnAccount").
type MpnAccount struct {
	TxNonce       uint64
	WithdrawNonce uint64
	Address       Address
	Tokens        map[uint64]MpnTokenSlot
}

// MpnTokenSlot is one (token_id, amount) pair inside an MpnAccount's token
// sub-tree.
type MpnTokenSlot struct {
	TokenId TokenId
	Amount  uint64
}

// IsEmpty reports whether this MPN slot has never been assigned a public
// key (spec §3 invariant 6: "An MPN account slot is either empty (address =
// zero point)...").
func (a MpnAccount) IsEmpty() bool {
	return a.Address.IsZero()
}
