package txapply

import (
	"encoding/json"

	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/pkg/types"
)

// contentAddressHash derives the content-addressed id used for a newly
// created contract or token: a hash of the creating address, its nonce at
// the time of creation, and the creation payload (spec §3: "A contract is
// content-addressed by its creation transaction's hash").
func contentAddressHash(src types.Address, nonce uint32, payload any) (types.Hash, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return types.Hash{}, err
	}
	xb := src.X.Bytes()
	parity := byte(0)
	if src.Parity {
		parity = 1
	}
	digest := zkp.Sha3_256(xb[:], []byte{parity}, encodeU64(uint64(nonce)), body)
	return types.Hash(digest), nil
}
