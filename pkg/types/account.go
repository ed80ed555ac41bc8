package types

// Account is a chain account: a nonce and a set of token balances, stored
// as flat KV records keyed by (address, token_id) (spec §3).
type Account struct {
	Nonce    uint32
	Balances map[TokenId]uint64
}

// NewAccount returns a freshly allocated, empty account.
func NewAccount() *Account {
	return &Account{Balances: make(map[TokenId]uint64)}
}

// Balance returns the balance of tok, defaulting to zero.
func (a *Account) Balance(tok TokenId) uint64 {
	if a.Balances == nil {
		return 0
	}
	return a.Balances[tok]
}

// SetBalance assigns a balance, pruning zero entries so the map mirrors
// what is actually persisted to the KV (absent key == zero).
func (a *Account) SetBalance(tok TokenId, amount uint64) {
	if a.Balances == nil {
		a.Balances = make(map[TokenId]uint64)
	}
	if amount == 0 {
		delete(a.Balances, tok)
		return
	}
	a.Balances[tok] = amount
}

// Ratio is a fixed-point value in [0,1] represented as a single byte over
// 255, recording the fraction of future rewards auto-redelegated to a
// specific validator (spec §3 "Auto-delegation ratio").
type Ratio uint8

// RatioMax is the denominator for Ratio's fixed-point representation.
const RatioMax = 255

// Apply scales amount by the ratio, truncating.
func (r Ratio) Apply(amount uint64) uint64 {
	return amount * uint64(r) / RatioMax
}

// Validator is a registered block-proposing stake target (spec §4.D
// UpdateStaker): a VRF public key plus a commission rate out of 256.
type Validator struct {
	Address      Address
	VrfPublicKey [32]byte
	Commission   uint16 // out of 256, spec §4.H "commission/256"
	Stake        uint64
}
