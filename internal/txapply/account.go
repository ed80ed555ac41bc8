// Package txapply implements per-variant transaction application: the
// apply procedure of spec §4.D (signature check, nonce check, fee
// deduction, then variant-specific effects, all accumulating in a KV
// mirror that the caller discards whole on any failure).
package txapply

import (
	"encoding/binary"
	"errors"

	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// Validation/structural errors (spec §7).
var (
	ErrSignatureError          = errors.New("txapply: signature verification failed")
	ErrInvalidTransactionNonce = errors.New("txapply: invalid transaction nonce")
	ErrBalanceInsufficient     = errors.New("txapply: insufficient balance")
	ErrTokenAlreadyExists      = errors.New("txapply: token already exists")
	ErrTokenNotFound           = errors.New("txapply: token not found")
	ErrTokenNotUpdatable       = errors.New("txapply: token has no minter, not updatable")
	ErrTokenUpdatePermissionDenied = errors.New("txapply: token update permission denied")
	ErrTokenBadNameSymbol      = errors.New("txapply: invalid token name or symbol")
	ErrTokenSupplyOverflow     = errors.New("txapply: token supply overflow")
	ErrContractNotFound        = errors.New("txapply: contract not found")
	ErrIncorrectZkProof         = errors.New("txapply: zk proof did not verify")
	ErrInvalidState             = errors.New("txapply: resulting state root mismatch")
	ErrInvalidStateModel         = errors.New("txapply: invalid state model")
	ErrDepositWithdrawWrongFn    = errors.New("txapply: deposit/withdraw entry routed to wrong function")
	ErrMemoTooLong               = errors.New("txapply: memo exceeds max length")
	ErrFeeTokenMismatch          = errors.New("txapply: fee token does not match chain policy")
	ErrValidatorCommissionTooHigh = errors.New("txapply: validator commission exceeds max")
	ErrContractAlreadyExists     = errors.New("txapply: contract id already in use")
	ErrCircuitIdOutOfRange       = errors.New("txapply: circuit id has no registered verifying key")
)

// addressKey renders a types.Address as the compact string used inside KV
// keys: the hex of its compressed-point encoding.
func addressKey(a types.Address) string {
	x := a.X.Bytes()
	if a.Parity {
		return "1" + hexString(x[:])
	}
	return "0" + hexString(x[:])
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func tokenKey(t types.TokenId) string {
	b := scalar.Scalar(t).Bytes()
	return hexString(b[:])
}

// GetBalance reads an address's balance of tok (spec §6 "ACB-{address}-
// {token_id}").
func GetBalance(db kvstore.Store, addr types.Address, tok types.TokenId) (uint64, error) {
	raw, ok, err := db.Get(kvstore.AccountBalanceKey(addressKey(addr), tokenKey(tok)))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return decodeU64(raw), nil
}

// SetBalance writes addr's balance of tok, removing the key when zero so
// absent-means-zero holds (spec §3 Account).
func SetBalance(db kvstore.Store, addr types.Address, tok types.TokenId, amount uint64) error {
	key := kvstore.AccountBalanceKey(addressKey(addr), tokenKey(tok))
	if amount == 0 {
		return db.Update([]kvstore.WriteOp{kvstore.Remove(key)})
	}
	return db.Update([]kvstore.WriteOp{kvstore.Put(key, encodeU64(amount))})
}

// ContractBalance/SetContractBalance mirror GetBalance/SetBalance for a
// contract's escrow balance (spec §6 "CAB-{contract_id}-{token_id}").
func ContractBalance(db kvstore.Store, cid types.ContractId, tok types.TokenId) (uint64, error) {
	raw, ok, err := db.Get(kvstore.ContractAccountBalanceKey(hexString(cid[:]), tokenKey(tok)))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return decodeU64(raw), nil
}

func SetContractBalance(db kvstore.Store, cid types.ContractId, tok types.TokenId, amount uint64) error {
	key := kvstore.ContractAccountBalanceKey(hexString(cid[:]), tokenKey(tok))
	if amount == 0 {
		return db.Update([]kvstore.WriteOp{kvstore.Remove(key)})
	}
	return db.Update([]kvstore.WriteOp{kvstore.Put(key, encodeU64(amount))})
}

const nonceKeyPrefix = "NCE-"

// GetNonce reads an address's current nonce (0 if never touched).
func GetNonce(db kvstore.Store, addr types.Address) (uint32, error) {
	raw, ok, err := db.Get(nonceKeyPrefix + addressKey(addr))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return uint32(decodeU64(raw)), nil
}

// SetNonce writes an address's current nonce.
func SetNonce(db kvstore.Store, addr types.Address, nonce uint32) error {
	return db.Update([]kvstore.WriteOp{kvstore.Put(nonceKeyPrefix+addressKey(addr), encodeU64(uint64(nonce)))})
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		padded := make([]byte, 8)
		copy(padded, b)
		b = padded
	}
	return binary.LittleEndian.Uint64(b)
}

// GetDepositNonce reads src's deposit nonce against cid from its
// "DNC-{src}-{cid}" key, zero if never set.
func GetDepositNonce(db kvstore.Store, src types.Address, cid types.ContractId) (uint64, error) {
	raw, ok, err := db.Get(kvstore.DepositNonceKey(addressKey(src), hexString(cid[:])))
	if err != nil || !ok {
		return 0, err
	}
	return decodeU64(raw), nil
}

// SetDepositNonce writes src's next expected deposit nonce against cid
// (spec §6 "DNC-{src}-{cid}").
func SetDepositNonce(db kvstore.Store, src types.Address, cid types.ContractId, nonce uint64) error {
	key := kvstore.DepositNonceKey(addressKey(src), hexString(cid[:]))
	return db.Update([]kvstore.WriteOp{kvstore.Put(key, encodeU64(nonce))})
}

// transfer debits src and credits dst by amount of tok, failing with
// ErrBalanceInsufficient if src cannot cover it. When srcIsSystem is set
// (a system-issued transfer), src is ignored: nothing is debited and no
// balance is checked.
func transfer(db kvstore.Store, src, dst types.Address, tok types.TokenId, amount uint64, srcIsSystem bool) error {
	if !srcIsSystem {
		bal, err := GetBalance(db, src, tok)
		if err != nil {
			return err
		}
		if bal < amount {
			return ErrBalanceInsufficient
		}
		if err := SetBalance(db, src, tok, bal-amount); err != nil {
			return err
		}
	}
	dstBal, err := GetBalance(db, dst, tok)
	if err != nil {
		return err
	}
	return SetBalance(db, dst, tok, dstBal+amount)
}
