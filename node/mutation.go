package node

import (
	"encoding/json"
	"fmt"
)

// Mutation is a tagged variant over the four operations that can change a
// state: CreateNode, SetField, DeleteField, DeleteNode.
type Mutation interface {
	isMutation()
}

// CreateNode introduces a new node with empty fields, not deleted.
type CreateNode struct {
	ID   NodeID
	Type string
}

// SetField inserts or overwrites one field on a live node.
type SetField struct {
	ID    NodeID
	Key   string
	Value Value
}

// DeleteField removes a field from a live node; the field must exist.
type DeleteField struct {
	ID  NodeID
	Key string
}

// DeleteNode tombstones a live node.
type DeleteNode struct {
	ID NodeID
}

func (CreateNode) isMutation()  {}
func (SetField) isMutation()    {}
func (DeleteField) isMutation() {}
func (DeleteNode) isMutation()  {}

const (
	mutTagCreateNode  = "create_node"
	mutTagSetField    = "set_field"
	mutTagDeleteField = "delete_field"
	mutTagDeleteNode  = "delete_node"
)

type mutationWire struct {
	Kind  string          `json:"kind"`
	ID    NodeID          `json:"id"`
	Type  string          `json:"type,omitempty"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalMutationJSON encodes m as its tagged-object wire form.
func MarshalMutationJSON(m Mutation) ([]byte, error) {
	switch mm := m.(type) {
	case CreateNode:
		return json.Marshal(mutationWire{Kind: mutTagCreateNode, ID: mm.ID, Type: mm.Type})
	case SetField:
		raw, err := MarshalValueJSON(mm.Value)
		if err != nil {
			return nil, fmt.Errorf("node: encode mutation value: %w", err)
		}
		return json.Marshal(mutationWire{Kind: mutTagSetField, ID: mm.ID, Key: mm.Key, Value: raw})
	case DeleteField:
		return json.Marshal(mutationWire{Kind: mutTagDeleteField, ID: mm.ID, Key: mm.Key})
	case DeleteNode:
		return json.Marshal(mutationWire{Kind: mutTagDeleteNode, ID: mm.ID})
	default:
		return nil, fmt.Errorf("node: unknown mutation type %T", m)
	}
}

// UnmarshalMutationJSON decodes a Mutation from its tagged-object wire form.
func UnmarshalMutationJSON(data []byte) (Mutation, error) {
	var w mutationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("node: decode mutation: %w", err)
	}
	switch w.Kind {
	case mutTagCreateNode:
		return CreateNode{ID: w.ID, Type: w.Type}, nil
	case mutTagSetField:
		var v Value
		if len(w.Value) > 0 {
			var err error
			v, err = UnmarshalValueJSON(w.Value)
			if err != nil {
				return nil, err
			}
		}
		return SetField{ID: w.ID, Key: w.Key, Value: v}, nil
	case mutTagDeleteField:
		return DeleteField{ID: w.ID, Key: w.Key}, nil
	case mutTagDeleteNode:
		return DeleteNode{ID: w.ID}, nil
	default:
		return nil, fmt.Errorf("node: unknown mutation kind %q", w.Kind)
	}
}

// MarshalJSON lets a []Mutation field marshal transparently via
// encoding/json's slice handling.
func (m CreateNode) MarshalJSON() ([]byte, error)  { return MarshalMutationJSON(m) }
func (m SetField) MarshalJSON() ([]byte, error)    { return MarshalMutationJSON(m) }
func (m DeleteField) MarshalJSON() ([]byte, error) { return MarshalMutationJSON(m) }
func (m DeleteNode) MarshalJSON() ([]byte, error)  { return MarshalMutationJSON(m) }
