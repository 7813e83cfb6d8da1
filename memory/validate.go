package memory

import (
	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/myoerr"
	"github.com/jaiminpan/myosotis/node"
	"github.com/jaiminpan/myosotis/replay"
)

// Validate runs the store's integrity pipeline in order: schema,
// snapshot integrity, commit chain (each commit's own hash is
// recomputed first when verifyHashes is set, then its linkage to its
// predecessor), checkpoint hashes (conditional), semantic replay,
// bounds. It stops at the first failing stage.
func (m *Memory) Validate(verifyHashes bool) error {
	if err := m.validateSchema(); err != nil {
		return err
	}
	if err := m.validateSnapshotIntegrity(); err != nil {
		return err
	}
	if err := m.validateCommitChain(verifyHashes); err != nil {
		return err
	}
	if verifyHashes {
		if err := m.validateCheckpointHashes(); err != nil {
			return err
		}
	}
	replayed, err := m.validateSemanticReplay()
	if err != nil {
		return err
	}
	return m.validateBounds(replayed)
}

// validateSchema checks the one schema-level invariant: a fresh id
// counter is never zero.
func (m *Memory) validateSchema() error {
	if m.NextNodeID == 0 {
		return &myoerr.Invariant{Detail: "next_node_id is zero"}
	}
	return nil
}

// validateSnapshotIntegrity checks that a present genesis snapshot's
// state hash matches its recorded hash (and that a recorded hash never
// appears without a snapshot), and that every checkpoint references a
// present commit whose hash matches the checkpoint's commit_hash.
func (m *Memory) validateSnapshotIntegrity() error {
	if m.GenesisState != nil {
		want := canon.ComputeStateHash(m.GenesisState)
		if m.GenesisStateHash == nil || want != *m.GenesisStateHash {
			return myoerr.ErrCorruptGenesisHash
		}
	} else if m.GenesisStateHash != nil {
		return myoerr.ErrCorruptGenesisHash
	}

	for _, cp := range m.Checkpoints {
		found := false
		for i := range m.Commits {
			if m.Commits[i].ID == cp.CommitID {
				found = true
				if m.Commits[i].Hash != cp.CommitHash {
					return myoerr.ErrCheckpointCommitMismatch
				}
				break
			}
		}
		if !found {
			return myoerr.ErrCheckpointCommitMismatch
		}
	}
	return nil
}

// validateCommitChain checks that commit ids are strictly prev+1 (the
// first commit's id is unconstrained — compaction retains original
// ids, so it may start above 1), the first commit carries no parent
// id and its parent_hash equals genesis_state_hash, and every later
// commit's parent/parent_hash link its predecessor.
//
// When verifyHashes is set, each commit's own hash is recomputed and
// checked before its linkage to the next commit is examined. This
// ordering matters: a commit whose own hash was tampered with makes
// every later commit's stored parent_hash appear mismatched too, and
// recomputing first is what lets that corruption surface as
// CorruptCommitHash instead of a secondary ParentHashMismatch on its
// successor.
func (m *Memory) validateCommitChain(verifyHashes bool) error {
	_, genesisHash := m.genesisAnchor()

	var prev *Commit
	for i := range m.Commits {
		c := &m.Commits[i]

		if verifyHashes {
			want := canon.ComputeCommitHash(c.ParentHash, c.Message, c.Mutations)
			if want != c.Hash {
				return myoerr.ErrCorruptCommitHash
			}
		}

		if prev == nil {
			if c.Parent != nil {
				return &myoerr.CorruptCommitChain{Detail: "first commit has a parent id"}
			}
			if !hashesEqual(c.ParentHash, genesisHash) {
				return &myoerr.ParentHashMismatch{CommitID: c.ID}
			}
		} else {
			if c.ID != prev.ID+1 {
				return &myoerr.CorruptCommitChain{Detail: "commit id not contiguous"}
			}
			if c.Parent == nil || *c.Parent != prev.ID {
				return &myoerr.CorruptCommitChain{Detail: "parent id does not match predecessor"}
			}
			if c.ParentHash == nil || *c.ParentHash != prev.Hash {
				return &myoerr.ParentHashMismatch{CommitID: c.ID}
			}
		}
		prev = c
	}
	return nil
}

func hashesEqual(a, b *canon.Hash) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// validateCheckpointHashes recomputes every checkpoint's state hash
// from its snapshot and checks it against the stored value. Commit
// hashes are verified earlier, inside validateCommitChain, so that a
// tampered commit hash is reported before it can be mistaken for a
// broken link in a later commit.
func (m *Memory) validateCheckpointHashes() error {
	for _, cp := range m.Checkpoints {
		want := canon.ComputeStateHash(cp.State)
		if want != cp.StateHash {
			return myoerr.ErrCorruptCheckpointHash
		}
	}
	return nil
}

// validateSemanticReplay replays every commit from the latest anchor
// and returns the resulting state; any precondition violation fails
// validation.
func (m *Memory) validateSemanticReplay() (map[node.NodeID]node.Node, error) {
	if len(m.Commits) == 0 {
		base, _ := m.genesisAnchor()
		return replay.CloneState(base), nil
	}
	anchorState, tail, err := m.anchorFor(m.Commits[len(m.Commits)-1].ID)
	if err != nil {
		return nil, err
	}
	return replay.Replay(anchorState, commitLog(tail))
}

// validateBounds checks that next_node_id exceeds every id present in
// the replayed state, and that a populated head matches it exactly.
func (m *Memory) validateBounds(replayed map[node.NodeID]node.Node) error {
	var maxID uint64
	for id := range replayed {
		if uint64(id) > maxID {
			maxID = uint64(id)
		}
	}
	if uint64(m.NextNodeID) <= maxID {
		return &myoerr.Invariant{Detail: "next_node_id does not exceed replayed max id"}
	}

	if len(m.head) > 0 {
		want := canon.ComputeStateHash(replayed)
		got := canon.ComputeStateHash(m.head)
		if want != got {
			return &myoerr.Invariant{Detail: "head does not match replayed state"}
		}
	}
	return nil
}
