// Package replay implements the pure state-transition function the rest
// of the store is built on: Apply validates and applies one mutation to
// a state, and Replay folds a sequence of commits' mutations over an
// initial state. Both are deterministic and side-effect free — they are
// the single place the store's semantic preconditions are enforced.
package replay

import (
	"github.com/jaiminpan/myosotis/myoerr"
	"github.com/jaiminpan/myosotis/node"
)

// CloneState returns a deep copy of state, safe to mutate independently.
func CloneState(state map[node.NodeID]node.Node) map[node.NodeID]node.Node {
	out := make(map[node.NodeID]node.Node, len(state))
	for id, n := range state {
		out[id] = n.Clone()
	}
	return out
}

// Apply returns the state obtained by applying mutation to state. state
// is not mutated; the returned map may share unmodified entries with it.
func Apply(state map[node.NodeID]node.Node, mutation node.Mutation) (map[node.NodeID]node.Node, error) {
	switch m := mutation.(type) {
	case node.CreateNode:
		if _, exists := state[m.ID]; exists {
			return nil, &myoerr.Invariant{Detail: "create node: id already present"}
		}
		out := make(map[node.NodeID]node.Node, len(state)+1)
		for id, n := range state {
			out[id] = n
		}
		out[m.ID] = node.New(m.ID, m.Type)
		return out, nil

	case node.SetField:
		n, exists := state[m.ID]
		if !exists {
			return nil, &myoerr.NodeNotFound{ID: m.ID}
		}
		if n.Deleted {
			return nil, &myoerr.NodeDeleted{ID: m.ID}
		}
		for _, ref := range node.CollectRefs(m.Value, nil) {
			if _, ok := state[ref]; !ok {
				return nil, &myoerr.Invariant{Detail: "set field: dangling reference"}
			}
		}
		out := make(map[node.NodeID]node.Node, len(state))
		for id, nn := range state {
			out[id] = nn
		}
		updated := n.Clone()
		updated.Fields[m.Key] = node.Clone(m.Value)
		out[m.ID] = updated
		return out, nil

	case node.DeleteField:
		n, exists := state[m.ID]
		if !exists {
			return nil, &myoerr.DeleteNonexistentNode{ID: m.ID}
		}
		if n.Deleted {
			return nil, &myoerr.DeleteOnDeletedNode{ID: m.ID}
		}
		if _, ok := n.Fields[m.Key]; !ok {
			return nil, &myoerr.FieldNotFound{Key: m.Key}
		}
		out := make(map[node.NodeID]node.Node, len(state))
		for id, nn := range state {
			out[id] = nn
		}
		updated := n.Clone()
		delete(updated.Fields, m.Key)
		out[m.ID] = updated
		return out, nil

	case node.DeleteNode:
		n, exists := state[m.ID]
		if !exists {
			return nil, &myoerr.DeleteNonexistentNode{ID: m.ID}
		}
		if n.Deleted {
			return nil, &myoerr.DeleteOnDeletedNode{ID: m.ID}
		}
		out := make(map[node.NodeID]node.Node, len(state))
		for id, nn := range state {
			out[id] = nn
		}
		updated := n.Clone()
		updated.Deleted = true
		out[m.ID] = updated
		return out, nil

	default:
		return nil, &myoerr.Invariant{Detail: "replay: unknown mutation type"}
	}
}

// Commits is the minimal view of a commit Replay needs: its ordered
// mutations. Defined here (rather than imported from a commit package)
// so this package has no dependency on the engine's commit record shape.
type Commits interface {
	Len() int
	MutationsAt(i int) []node.Mutation
}

// MutationSlices adapts a [][]node.Mutation (one slice per commit) to
// the Commits interface.
type MutationSlices [][]node.Mutation

func (s MutationSlices) Len() int                        { return len(s) }
func (s MutationSlices) MutationsAt(i int) []node.Mutation { return s[i] }

// Replay applies every mutation of every commit, in order, over initial
// and returns the resulting state. Any precondition violation aborts
// with the underlying Apply error.
func Replay(initial map[node.NodeID]node.Node, commits Commits) (map[node.NodeID]node.Node, error) {
	state := CloneState(initial)
	for i := 0; i < commits.Len(); i++ {
		for _, m := range commits.MutationsAt(i) {
			next, err := Apply(state, m)
			if err != nil {
				return nil, err
			}
			state = next
		}
	}
	return state, nil
}
