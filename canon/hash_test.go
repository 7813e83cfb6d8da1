package canon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaiminpan/myosotis/node"
)

func TestComputeCommitHashDeterministic(t *testing.T) {
	muts := []node.Mutation{node.CreateNode{ID: 1, Type: "widget"}}
	msg := "first"
	h1 := ComputeCommitHash(nil, &msg, muts)
	h2 := ComputeCommitHash(nil, &msg, muts)
	require.Equal(t, h1, h2)
}

func TestComputeCommitHashSensitiveToParent(t *testing.T) {
	muts := []node.Mutation{node.CreateNode{ID: 1, Type: "widget"}}
	msg := "first"
	h1 := ComputeCommitHash(nil, &msg, muts)

	var parent Hash
	parent[0] = 0xff
	h2 := ComputeCommitHash(&parent, &msg, muts)

	require.NotEqual(t, h1, h2)
}

func TestComputeCommitHashEmptyMessageFramesLikeNoMessage(t *testing.T) {
	muts := []node.Mutation{node.CreateNode{ID: 1, Type: "widget"}}
	empty := ""
	withNil := ComputeCommitHash(nil, nil, muts)
	withEmpty := ComputeCommitHash(nil, &empty, muts)
	require.Equal(t, withNil, withEmpty, "no message and an empty message both frame as a zero length")
}

func TestComputeStateHashOrderIndependentOfMapIteration(t *testing.T) {
	s1 := map[node.NodeID]node.Node{1: node.New(1, "a"), 2: node.New(2, "b")}
	s2 := map[node.NodeID]node.Node{2: node.New(2, "b"), 1: node.New(1, "a")}
	require.Equal(t, ComputeStateHash(s1), ComputeStateHash(s2))
}

func TestAbbreviateIsStableAndShort(t *testing.T) {
	var h Hash
	h[0] = 1
	a1 := Abbreviate(h)
	a2 := Abbreviate(h)
	require.Equal(t, a1, a2)
	require.Len(t, a1, 12)
}
