package memory

import (
	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/node"
)

// Commit is one entry in the store's append-only log: a contiguous,
// strictly monotone id; an optional parent commit id and linked parent
// hash; the commit's own hash; an optional human message; and the
// ordered, non-empty sequence of mutations it froze.
type Commit struct {
	ID         uint64
	Parent     *uint64
	ParentHash *canon.Hash
	Hash       canon.Hash
	Message    *string
	Mutations  []node.Mutation
}

// Checkpoint is a cached full state snapshot taken at a specific commit,
// used to bound how far back Replay must walk when reconstructing state.
type Checkpoint struct {
	CommitID   uint64
	CommitHash canon.Hash
	StateHash  canon.Hash
	State      map[node.NodeID]node.Node
}

// CheckpointInterval is K in spec terms: a checkpoint is emitted every
// time the commit count becomes a multiple of this value.
const CheckpointInterval = 50

// commitLog adapts []Commit to replay.Commits without copying mutations.
type commitLog []Commit

func (c commitLog) Len() int { return len(c) }

func (c commitLog) MutationsAt(i int) []node.Mutation { return c[i].Mutations }

// sliceUpTo returns the prefix of commits with id <= upTo, assuming
// commits is sorted by strictly ascending, contiguous id (as validated
// elsewhere). It does not assume upTo itself is present.
func sliceUpTo(commits []Commit, upTo uint64) []Commit {
	n := 0
	for n < len(commits) && commits[n].ID <= upTo {
		n++
	}
	return commits[:n]
}
