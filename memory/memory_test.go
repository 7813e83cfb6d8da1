package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaiminpan/myosotis/myoerr"
	"github.com/jaiminpan/myosotis/node"
)

func commitMsg(s string) *string { return &s }

func TestCreateAndCommit(t *testing.T) {
	m := New()
	id := m.Create("widget")
	require.Equal(t, node.NodeID(1), id)

	require.NoError(t, m.Commit(commitMsg("first")))
	require.Len(t, m.Commits, 1)
	require.Equal(t, uint64(1), m.Commits[0].ID)
	require.Nil(t, m.Commits[0].Parent)
	require.Contains(t, m.Head(), id)
}

func TestCommitWithNothingPendingFails(t *testing.T) {
	m := New()
	err := m.Commit(commitMsg("x"))
	var invalidInput *myoerr.InvalidInput
	require.ErrorAs(t, err, &invalidInput)
}

func TestSetDefersReferenceValidityToCommit(t *testing.T) {
	m := New()
	id := m.Create("widget")

	// Referencing a node id that does not exist yet is allowed at stage
	// time...
	require.NoError(t, m.Set(id, "ref", node.RefValue(999)))

	// ...but fails when the pending buffer is revalidated at commit time.
	err := m.Commit(commitMsg("x"))
	require.Error(t, err)
}

func TestSetOnMissingOrDeletedNode(t *testing.T) {
	m := New()
	err := m.Set(42, "k", node.IntValue(1))
	var notFound *myoerr.NodeNotFound
	require.ErrorAs(t, err, &notFound)

	id := m.Create("widget")
	require.NoError(t, m.DeleteNode(id))
	err = m.Set(id, "k", node.IntValue(1))
	var deleted *myoerr.NodeDeleted
	require.ErrorAs(t, err, &deleted)
}

func TestCommitChainsParentHash(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("one")))
	first := m.Commits[0]

	id2 := m.Create("widget")
	require.NoError(t, m.Set(id2, "k", node.IntValue(1)))
	require.NoError(t, m.Commit(commitMsg("two")))
	second := m.Commits[1]

	require.NotNil(t, second.Parent)
	require.Equal(t, first.ID, *second.Parent)
	require.NotNil(t, second.ParentHash)
	require.Equal(t, first.Hash, *second.ParentHash)
}

func TestCheckpointEmittedEveryInterval(t *testing.T) {
	m := New()
	for i := 0; i < CheckpointInterval; i++ {
		m.Create("widget")
		require.NoError(t, m.Commit(commitMsg("c")))
	}
	require.Len(t, m.Checkpoints, 1)
	require.Equal(t, uint64(CheckpointInterval), m.Checkpoints[0].CommitID)
}

func TestStateAtCommitReconstructsHistoricalState(t *testing.T) {
	m := New()
	id := m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("create")))

	require.NoError(t, m.DeleteNode(id))
	require.NoError(t, m.Commit(commitMsg("delete")))

	atFirst, err := m.StateAtCommit(1)
	require.NoError(t, err)
	require.False(t, atFirst[id].Deleted)

	atSecond, err := m.StateAtCommit(2)
	require.NoError(t, err)
	require.True(t, atSecond[id].Deleted)
}

func TestStateAtCommitUnknownID(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("c")))

	_, err := m.StateAtCommit(99)
	var notFound *myoerr.CommitNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestStateAtCommitUsesCheckpointAnchor(t *testing.T) {
	m := New()
	for i := 0; i < CheckpointInterval+5; i++ {
		m.Create("widget")
		require.NoError(t, m.Commit(commitMsg("c")))
	}
	state, err := m.StateAtCommit(CheckpointInterval + 3)
	require.NoError(t, err)
	require.Len(t, state, CheckpointInterval+3)
}
