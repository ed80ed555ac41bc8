package txapply

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// teleportModel is the fixed shape of one row of the teleport tree: a
// (dst_as_scalar, poseidon(token_id, amount, salt)) pair committed under
// types.TeleportContractId, indexed by the teleport contract's own height
// (spec §4.D RegularSend: "append (dst, money) to the teleport-tree list
// state... locator [height, 0] = dst-as-scalar, [height, 1] =
// poseidon(token_id, amount, salt=0)"; mirrors original_source's
// put_in_teleport_tree). A log4-depth of 16 gives room for 4^16 rows, far
// beyond what this ledger will ever post.
var teleportModel = types.List(16, types.Struct(types.Scalar(), types.Scalar()))

// applyRegularSend moves funds to every destination in d.Entries and
// records each non-self transfer in the teleport tree (spec §4.D: "for
// each entry with dst != src"). A self-send (dst == src) is a no-op: no
// balance check, no teleport entry, matching original_source's
// `if entry.dst != tx_src { ... }` guard around the whole block.
func applyRegularSend(db kvstore.Store, mgr *zkstate.Manager, src types.Address, isSystem bool, d types.RegularSend) error {
	for _, entry := range d.Entries {
		if entry.Dst.Equal(src) {
			continue
		}
		if err := transfer(db, src, entry.Dst, entry.Money.TokenId, entry.Money.Amount, isSystem); err != nil {
			return err
		}
		if err := appendTeleportEntry(db, mgr, entry); err != nil {
			return err
		}
	}
	return nil
}

// appendTeleportEntry commits (dst, money) into the teleport tree at the
// teleport contract's current height, then advances that height by one
// (spec §4.D; original_source's put_in_teleport_tree).
func appendTeleportEntry(db kvstore.Store, mgr *zkstate.Manager, entry types.SendEntry) error {
	cidStr := contractIdKey(types.TeleportContractId)

	height, err := mgr.HeightOf(db, cidStr)
	if err != nil {
		return err
	}

	commitment := zkp.Poseidon(scalar.Scalar(entry.Money.TokenId), scalar.FromUint64(entry.Money.Amount), scalar.Zero())

	var sizeDelta int64
	if _, err := mgr.SetData(db, cidStr, teleportModel, types.Locator{height, 0}, entry.Dst.X, &sizeDelta); err != nil {
		return err
	}
	if _, err := mgr.SetData(db, cidStr, teleportModel, types.Locator{height, 1}, commitment, &sizeDelta); err != nil {
		return err
	}

	prevState, err := mgr.Root(db, cidStr, teleportModel)
	if err != nil {
		return err
	}
	root, err := mgr.GetData(db, cidStr, teleportModel, types.Locator{})
	if err != nil {
		return err
	}
	newSize := uint64(int64(prevState.StateSize) + sizeDelta)
	return mgr.CommitRoot(db, cidStr, types.CompressedState{StateHash: root, StateSize: newSize}, height+1)
}
