package zkstate

import (
	"encoding/binary"
	"errors"

	"github.com/ziesha-go/ledger/internal/kvstore"
)

// MaxRollbacks is the bounded ring size of recent rollback journal entries
// kept per contract (spec §4.C, §6 "MAX_ROLLBACKS=5").
const MaxRollbacks = 5

// ErrNoRollbackAvailable is returned when a contract has no journal entry
// for the height being rolled back (spec §7 "NoBlocksToRollback").
var ErrNoRollbackAvailable = errors.New("zkstate: no rollback entry for this height")

// journalEntry is one undo record: for every key a block's writes touched,
// the prior raw value, or absence (a key the block newly created).
type journalEntry struct {
	priorValues map[string][]byte // nil slice, present key => was absent
	hadValue    map[string]bool
}

func newJournalEntry() *journalEntry {
	return &journalEntry{priorValues: make(map[string][]byte), hadValue: make(map[string]bool)}
}

// RecordJournal captures the prior state (before writtenKeys were changed)
// as the rollback entry for contract cid at height, pruning any entry
// older than MaxRollbacks (spec §4.C: "The ring is capped at
// MAX_ROLLBACKS=5; older entries are pruned on write").
func RecordJournal(db kvstore.Store, cid string, height uint64, writtenKeys []string, before map[string]kvstore.Pair, beforePresent map[string]bool) error {
	entry := newJournalEntry()
	for _, k := range writtenKeys {
		entry.priorValues[k] = before[k].Value
		entry.hadValue[k] = beforePresent[k]
	}

	raw := encodeJournalEntry(entry)
	ops := []kvstore.WriteOp{kvstore.Put(kvstore.LocalRollbackKey(cid, height), raw)}
	if height > MaxRollbacks {
		ops = append(ops, kvstore.Remove(kvstore.LocalRollbackKey(cid, height-MaxRollbacks)))
	}
	return db.Update(ops)
}

// Rollback applies the inverse write-set for contract cid's journal entry
// at height, decrementing its local height (spec §4.C "Applying
// rollback(C): read the journal for the current height, write each prior
// value back (or remove if the prior was absent), decrement height").
func Rollback(db kvstore.Store, cid string, height uint64) error {
	raw, ok, err := db.Get(kvstore.LocalRollbackKey(cid, height))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoRollbackAvailable
	}
	entry, err := decodeJournalEntry(raw)
	if err != nil {
		return err
	}

	var ops []kvstore.WriteOp
	for k, had := range entry.hadValue {
		if had {
			ops = append(ops, kvstore.Put(k, entry.priorValues[k]))
		} else {
			ops = append(ops, kvstore.Remove(k))
		}
	}
	ops = append(ops, kvstore.Remove(kvstore.LocalRollbackKey(cid, height)))
	if height == 0 {
		ops = append(ops, kvstore.Put(kvstore.LocalHeightKey(cid), encodeHeight(0)))
	} else {
		ops = append(ops, kvstore.Put(kvstore.LocalHeightKey(cid), encodeHeight(height-1)))
	}
	return db.Update(ops)
}

// journal wire format: a flat sequence of
// [keyLen u32][key][hadValue u8][valueLen u32][value]
func encodeJournalEntry(e *journalEntry) []byte {
	var out []byte
	for k, had := range e.hadValue {
		out = append(out, u32le(uint32(len(k)))...)
		out = append(out, []byte(k)...)
		if had {
			out = append(out, 1)
			v := e.priorValues[k]
			out = append(out, u32le(uint32(len(v)))...)
			out = append(out, v...)
		} else {
			out = append(out, 0)
			out = append(out, u32le(0)...)
		}
	}
	return out
}

func decodeJournalEntry(raw []byte) (*journalEntry, error) {
	e := newJournalEntry()
	pos := 0
	for pos < len(raw) {
		if pos+4 > len(raw) {
			return nil, errors.New("zkstate: corrupt journal entry")
		}
		keyLen := int(binary.LittleEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if pos+keyLen > len(raw) {
			return nil, errors.New("zkstate: corrupt journal entry")
		}
		key := string(raw[pos : pos+keyLen])
		pos += keyLen

		if pos+1 > len(raw) {
			return nil, errors.New("zkstate: corrupt journal entry")
		}
		had := raw[pos] == 1
		pos++

		if pos+4 > len(raw) {
			return nil, errors.New("zkstate: corrupt journal entry")
		}
		valLen := int(binary.LittleEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if pos+valLen > len(raw) {
			return nil, errors.New("zkstate: corrupt journal entry")
		}
		val := raw[pos : pos+valLen]
		pos += valLen

		e.hadValue[key] = had
		e.priorValues[key] = val
	}
	return e, nil
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
