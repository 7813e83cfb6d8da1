package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/myoerr"
)

func TestValidatePassesOnFreshStore(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("c")))
	require.NoError(t, m.Validate(true))
}

func TestValidateCatchesTamperedCommitHash(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("c")))

	m.Commits[0].Hash[0] ^= 0xff
	require.Error(t, m.Validate(true))
	require.NoError(t, m.Validate(false), "structural/semantic checks alone should not detect a flipped hash byte")
}

func TestValidateCatchesTamperedCommitHashInTwoCommitHistory(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("one")))
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("two")))

	m.Commits[0].Hash[0] ^= 0xff
	require.ErrorIs(t, m.Validate(true), myoerr.ErrCorruptCommitHash)
}

func TestValidateCatchesBrokenParentLink(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("one")))
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("two")))

	var wrong canon.Hash
	wrong[0] = 0x42
	m.Commits[1].ParentHash = &wrong

	require.Error(t, m.Validate(false))
}

func TestValidateCatchesNextNodeIDTooLow(t *testing.T) {
	m := New()
	m.Create("widget")
	require.NoError(t, m.Commit(commitMsg("c")))

	m.NextNodeID = 1
	require.Error(t, m.Validate(false))
}
