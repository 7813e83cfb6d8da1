// Package compactor rewrites a store's on-disk file so that history up
// to and including a chosen commit collapses into a single genesis
// snapshot. The
// rewrite is staged to a temporary file and verified by a full reload
// before it replaces the original — the same two-phase shape mt-trie's
// cleaner uses to move data from the dirty cache to disk only after it
// is confirmed durable.
package compactor

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/memory"
	"github.com/jaiminpan/myosotis/myoerr"
	"github.com/jaiminpan/myosotis/storage"
)

// Compact rewrites the file at path, collapsing every commit up to and
// including target into a new genesis snapshot. If target is nil, the
// highest checkpoint commit id is used, falling back to the last commit
// id, failing with InvalidCompactionTarget if the store has no commits
// at all.
func Compact(path string, target *uint64, log zerolog.Logger) error {
	runID := uuid.New()
	log = log.With().Str("compact_run_id", runID.String()).Logger()

	m, err := storage.Load(path)
	if err != nil {
		return fmt.Errorf("compactor: load %s: %w", path, err)
	}
	head := m.Head()
	beforeHash := canon.ComputeStateHash(head)
	log.Info().Str("before_hash", canon.Abbreviate(beforeHash)).Msg("compaction started")

	targetID, err := chooseTarget(m, target)
	if err != nil {
		log.Error().Err(err).Msg("no usable compaction target")
		return err
	}
	log.Info().Uint64("target", targetID).Msg("compaction target selected")

	newGenesis, err := m.StateAtCommit(targetID)
	if err != nil {
		return fmt.Errorf("compactor: materialise target state: %w", err)
	}
	newGenesisHash := canon.ComputeStateHash(newGenesis)

	retained := retainAfter(m.Commits, targetID)
	relinked := relink(retained, newGenesisHash)

	newCheckpoints := rehashCheckpoints(m.Checkpoints, targetID, relinked)

	rewritten := memory.New()
	rewritten.NextNodeID = m.NextNodeID
	rewritten.GenesisState = newGenesis
	rewritten.GenesisStateHash = &newGenesisHash
	rewritten.Commits = relinked
	rewritten.Checkpoints = newCheckpoints
	rewritten.SetRebuiltState(head)

	tmpPath := path + ".tmp"
	if err := storage.Save(tmpPath, rewritten); err != nil {
		return fmt.Errorf("compactor: write %s: %w", tmpPath, err)
	}

	reloaded, err := storage.LoadWithMode(tmpPath, storage.Strict)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compactor: reload %s: %w", tmpPath, err)
	}
	afterHash := canon.ComputeStateHash(reloaded.Head())
	if afterHash != beforeHash {
		os.Remove(tmpPath)
		log.Error().
			Str("before_hash", canon.Abbreviate(beforeHash)).
			Str("after_hash", canon.Abbreviate(afterHash)).
			Msg("compaction integrity mismatch")
		return myoerr.ErrCompactionIntegrityMismatch
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compactor: publish %s: %w", path, err)
	}

	log.Info().
		Uint64("target", targetID).
		Int("retained_commits", len(relinked)).
		Msg("compaction complete")
	return nil
}

// chooseTarget implements step 2: a supplied target must exist;
// otherwise the highest checkpoint commit id; otherwise the last commit
// id; otherwise InvalidCompactionTarget.
func chooseTarget(m *memory.Memory, target *uint64) (uint64, error) {
	if target != nil {
		for _, c := range m.Commits {
			if c.ID == *target {
				return *target, nil
			}
		}
		return 0, myoerr.ErrInvalidCompactionTarget
	}

	var highestCheckpoint uint64
	for _, cp := range m.Checkpoints {
		if cp.CommitID > highestCheckpoint {
			highestCheckpoint = cp.CommitID
		}
	}
	if highestCheckpoint > 0 {
		return highestCheckpoint, nil
	}

	if len(m.Commits) > 0 {
		return m.Commits[len(m.Commits)-1].ID, nil
	}

	return 0, myoerr.ErrInvalidCompactionTarget
}

// retainAfter returns the commits with id strictly greater than target,
// in their original order.
func retainAfter(commits []memory.Commit, target uint64) []memory.Commit {
	var out []memory.Commit
	for _, c := range commits {
		if c.ID > target {
			out = append(out, c)
		}
	}
	return out
}

// relink walks the retained commits in order, re-pointing parent and
// parent_hash at the new chain start, and recomputes every hash. Since
// mutations and messages are unchanged, only the parent-hash prefix of
// each hash differs from before compaction.
func relink(retained []memory.Commit, genesisHash canon.Hash) []memory.Commit {
	out := make([]memory.Commit, len(retained))
	prevID := (*uint64)(nil)
	prevHash := genesisHash
	for i, c := range retained {
		newC := c
		newC.Parent = prevID
		ph := prevHash
		newC.ParentHash = &ph
		newC.Hash = canon.ComputeCommitHash(&ph, c.Message, c.Mutations)

		out[i] = newC
		id := newC.ID
		prevID = &id
		prevHash = newC.Hash
	}
	return out
}

// rehashCheckpoints drops checkpoints at or before target and updates
// each survivor's commit_hash to match its relinked commit.
func rehashCheckpoints(checkpoints []memory.Checkpoint, target uint64, relinked []memory.Commit) []memory.Checkpoint {
	hashByID := make(map[uint64]canon.Hash, len(relinked))
	for _, c := range relinked {
		hashByID[c.ID] = c.Hash
	}

	var out []memory.Checkpoint
	for _, cp := range checkpoints {
		if cp.CommitID <= target {
			continue
		}
		newHash, ok := hashByID[cp.CommitID]
		if !ok {
			continue
		}
		cp.CommitHash = newHash
		out = append(out, cp)
	}
	return out
}
