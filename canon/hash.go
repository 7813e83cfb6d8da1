package canon

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/jaiminpan/myosotis/node"
)

// Hash is a 32-byte SHA-256 digest, used for both commit hashes and
// state hashes.
type Hash [32]byte

// ComputeCommitHash derives a commit's hash over its linked parent hash
// (the predecessor commit's hash, or the genesis state hash when there
// is none), its framed message, and its canonical mutations.
//
//	commit_hash = SHA-256( parent_hash_or_zero32 ‖ message_framed ‖ canonical(mutations) )
func ComputeCommitHash(parentHash *Hash, message *string, mutations []node.Mutation) Hash {
	h := sha256.New()
	if parentHash != nil {
		h.Write(parentHash[:])
	} else {
		var zero [32]byte
		h.Write(zero[:])
	}

	var lenBuf [8]byte
	if message != nil {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(*message)))
		h.Write(lenBuf[:])
		h.Write([]byte(*message))
	} else {
		binary.BigEndian.PutUint64(lenBuf[:], 0)
		h.Write(lenBuf[:])
	}

	h.Write(EncodeMutations(mutations))

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeStateHash derives a state's hash over the canonical encoding of
// its nodes, in ascending id order.
func ComputeStateHash(state map[node.NodeID]node.Node) Hash {
	var out Hash
	sum := sha256.Sum256(EncodeState(state))
	copy(out[:], sum[:])
	return out
}
