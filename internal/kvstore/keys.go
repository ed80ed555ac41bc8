package kvstore

import "fmt"

// Key-naming functions, ported faithfully from
// original_source/src/db/keys.rs and spec §6's "Persisted key layout" table
// so every subsystem addresses the same physical key for the same logical
// record.

// HeightKey is the chain's current height.
func HeightKey() string { return "height" }

// OutdatedKey tracks contracts whose compressed state lags their MPN
// batcher's pending updates.
func OutdatedKey() string { return "outdated" }

// BlockKey addresses a block body at the given height.
func BlockKey(height uint64) string { return fmt.Sprintf("block_%010d", height) }

// HeaderKey addresses a block header at the given height.
func HeaderKey(height uint64) string { return fmt.Sprintf("header_%010d", height) }

// PowerKey addresses the cumulative stake-weighted power at the given
// height (spec §4.E).
func PowerKey(height uint64) string { return fmt.Sprintf("power_%010d", height) }

// MerkleKey addresses the block_root merkle cache at the given height.
func MerkleKey(height uint64) string { return fmt.Sprintf("merkle_%010d", height) }

// RollbackKey renders the "rollback_{height}" key. The chain-level rollback
// journal is not stored under it: internal/chain records that journal via
// zkstate.RecordJournal, under LocalRollbackKey with its own namespace.
func RollbackKey(height uint64) string { return fmt.Sprintf("rollback_%010d", height) }

// ContractUpdatesKey addresses the set of contracts touched at the given
// height.
func ContractUpdatesKey(height uint64) string { return fmt.Sprintf("contract_updates_%010d", height) }

// AccountBalanceKey is "ACB-{address}-{token_id}" -> u64 balance.
func AccountBalanceKey(address, tokenID string) string {
	return fmt.Sprintf("ACB-%s-%s", address, tokenID)
}

// ContractAccountBalanceKey is "CAB-{contract_id}-{token_id}" -> u64
// contract balance.
func ContractAccountBalanceKey(contractID, tokenID string) string {
	return fmt.Sprintf("CAB-%s-%s", contractID, tokenID)
}

// ContractKey is "CON-{cid}" -> contract.
func ContractKey(contractID string) string { return fmt.Sprintf("CON-%s", contractID) }

// ContractAccountKey is "CAC-{cid}" -> ContractAccount.
func ContractAccountKey(contractID string) string { return fmt.Sprintf("CAC-%s", contractID) }

// TokenKey is "TKN-{tid}" -> Token.
func TokenKey(tokenID string) string { return fmt.Sprintf("TKN-%s", tokenID) }

// StakeKey is "STK-{addr}" -> aggregate stake.
func StakeKey(address string) string { return fmt.Sprintf("STK-%s", address) }

// StakerRankKey is "SRK-{~amount:016x}-{addr}" -> unit, where ~amount is
// the bitwise complement so a forward prefix scan yields descending order
// (spec §3, §6).
func StakerRankKey(complementedAmount uint64, address string) string {
	return fmt.Sprintf("SRK-%016x-%s", complementedAmount, address)
}

// DelegateKey is "DEL-{from}-{to}" -> Delegate.
func DelegateKey(from, to string) string { return fmt.Sprintf("DEL-%s-%s", from, to) }

// DelegateByDelegatorKey is "DEK-{from}-{~amt}-{to}" -> unit (by-delegator
// rank index).
func DelegateByDelegatorKey(from string, complementedAmount uint64, to string) string {
	return fmt.Sprintf("DEK-%s-%016x-%s", from, complementedAmount, to)
}

// DelegateByValidatorKey is "DRK-{to}-{~amt}-{from}" -> unit (by-validator
// rank index).
func DelegateByValidatorKey(to string, complementedAmount uint64, from string) string {
	return fmt.Sprintf("DRK-%s-%016x-%s", to, complementedAmount, from)
}

// AutoDelegateKey is "ADL-{from}-{to}" -> Ratio.
func AutoDelegateKey(from, to string) string { return fmt.Sprintf("ADL-%s-%s", from, to) }

// ValidatorKey is "VLD-{addr}" -> (vrf_pub_key, commission) record.
func ValidatorKey(address string) string { return fmt.Sprintf("VLD-%s", address) }

// DepositNonceKey is "DNC-{src}-{cid}" -> deposit nonce.
func DepositNonceKey(src, contractID string) string { return fmt.Sprintf("DNC-%s-%s", src, contractID) }

// LocalInternalNodeKey is "{cid}-{locator}" -> non-scalar internal node.
func LocalInternalNodeKey(contractID, locator string) string {
	return fmt.Sprintf("%s-%s", contractID, locator)
}

// LocalScalarLeafKey is "{cid}-s-{locator}" -> scalar leaf.
func LocalScalarLeafKey(contractID, locator string) string {
	return fmt.Sprintf("%s-s-%s", contractID, locator)
}

// LocalValueKey dispatches to LocalScalarLeafKey or LocalInternalNodeKey
// depending on whether the locator terminates at a scalar (spec §4.B
// "local_value(contract, locator, is_scalar)").
func LocalValueKey(contractID, locator string, isScalar bool) string {
	if isScalar {
		return LocalScalarLeafKey(contractID, locator)
	}
	return LocalInternalNodeKey(contractID, locator)
}

// LocalTreeAuxKey is "{cid}-{locator}-aux-{i}" -> cached sibling
// (spec §4.B "local_tree_aux(contract, locator, aux_offset+i)").
func LocalTreeAuxKey(contractID, locator string, auxIndex uint64) string {
	return fmt.Sprintf("%s-%s-aux-%d", contractID, locator, auxIndex)
}

// LocalHeightKey is the contract's local state height.
func LocalHeightKey(contractID string) string { return fmt.Sprintf("%s_height", contractID) }

// LocalRootKey is the contract's current compressed root.
func LocalRootKey(contractID string) string { return fmt.Sprintf("%s_root", contractID) }

// LocalRollbackKey is "{cid}_rollback_{height}" -> the per-contract
// rollback journal entry for that height (spec §4.C).
func LocalRollbackKey(contractID string, height uint64) string {
	return fmt.Sprintf("%s_rollback_%d", contractID, height)
}

// MpnIndexKey is "MPI-{pubkey}" -> the account-slot index assigned to a
// zk-address inside the MPN contract's account tree (spec §4.G slot
// resolution).
func MpnIndexKey(pubkeyHex string) string { return fmt.Sprintf("MPI-%s", pubkeyHex) }

// MpnIndexCountKey tracks the next unused MPN account-slot index.
func MpnIndexCountKey() string { return "mpn_index_count" }
