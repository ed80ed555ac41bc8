package types

import (
	"encoding/binary"

	"github.com/ziesha-go/ledger/pkg/scalar"
)

// PosProof is the per-block proof-of-stake claim: a timestamp, the
// proposing validator's public key, and the VRF proof binding them to the
// claimed slot (spec §3 Block header, GLOSSARY "VRF proof"). VRF
// generation/verification itself is an assumed external primitive (spec §1
// "The PoS VRF/slot scheduler... assumed to yield, per slot, the address
// authorized to propose"); this module only carries and serializes it.
type PosProof struct {
	Timestamp    uint64
	ValidatorPub PublicKey
	VrfProof     []byte
}

// BlockHeader is a block's fixed-size envelope (spec §3 "Block... Header").
type BlockHeader struct {
	ParentHash Hash
	Number     uint64
	BlockRoot  scalar.Scalar // Merkle root of the body, spec §4.E
	PosProof   PosProof
}

// Block is a header plus its ordered transaction body (spec §3 "Block").
type Block struct {
	Header BlockHeader
	Body   []Transaction
}

// serializeForHash renders the header's hash-relevant fields in the
// little-endian wire layout spec §6 mandates ("bincode of {header, body}...
// Endianness: little-endian for u32/u64; scalars serialized in canonical
// little-endian 32-byte form").
func (h BlockHeader) serializeForHash() []byte {
	buf := make([]byte, 0, HashSize+8+32+8+32+1+len(h.PosProof.VrfProof))
	buf = append(buf, h.ParentHash[:]...)

	var numBuf [8]byte
	binary.LittleEndian.PutUint64(numBuf[:], h.Number)
	buf = append(buf, numBuf[:]...)

	rootBytes := h.BlockRoot.Bytes()
	buf = append(buf, rootBytes[:]...)

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], h.PosProof.Timestamp)
	buf = append(buf, tsBuf[:]...)

	xBytes := h.PosProof.ValidatorPub.X.Bytes()
	buf = append(buf, xBytes[:]...)
	if h.PosProof.ValidatorPub.Parity {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, h.PosProof.VrfProof...)
	return buf
}

// ComputeHash derives the block's content hash from its header.
func (h BlockHeader) ComputeHash(sha3_256 func(...[]byte) [32]byte) Hash {
	return Hash(sha3_256(h.serializeForHash()))
}
