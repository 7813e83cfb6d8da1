// Package canon implements the deterministic canonical byte encoding that
// all hashing in the store is derived from. The encoding is independent
// of in-memory layout: structurally equal inputs always produce
// byte-identical output, which is what lets commit hashes and state
// hashes serve as integrity checks across save/load and compaction.
package canon

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/jaiminpan/myosotis/node"
)

// Value tag bytes. Part of the wire contract — never renumber these.
const (
	tagInt   byte = 0x01
	tagFloat byte = 0x02
	tagBool  byte = 0x03
	tagStr   byte = 0x04
	tagRef   byte = 0x05
	tagList  byte = 0x06
	tagMap   byte = 0x07
)

// Mutation tag bytes. Part of the wire contract — never renumber these.
const (
	tagCreateNode  byte = 0x01
	tagSetField    byte = 0x02
	tagDeleteField byte = 0x03
	tagDeleteNode  byte = 0x04
)

func putU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendValue appends the canonical encoding of v to buf and returns the
// extended slice.
func AppendValue(buf []byte, v node.Value) []byte {
	switch vv := v.(type) {
	case node.IntValue:
		buf = append(buf, tagInt)
		buf = putU64(buf, uint64(int64(vv)))
		return buf
	case node.FloatValue:
		buf = append(buf, tagFloat)
		buf = putU64(buf, math.Float64bits(float64(vv)))
		return buf
	case node.BoolValue:
		buf = append(buf, tagBool)
		if vv {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		return buf
	case node.StrValue:
		buf = append(buf, tagStr)
		buf = putU64(buf, uint64(len(vv)))
		buf = append(buf, vv...)
		return buf
	case node.RefValue:
		buf = append(buf, tagRef)
		buf = putU64(buf, uint64(vv))
		return buf
	case node.ListValue:
		buf = append(buf, tagList)
		buf = putU64(buf, uint64(len(vv)))
		for _, e := range vv {
			buf = AppendValue(buf, e)
		}
		return buf
	case node.MapValue:
		buf = append(buf, tagMap)
		buf = putU64(buf, uint64(len(vv)))
		for _, k := range sortedMapKeys(vv) {
			buf = putU64(buf, uint64(len(k)))
			buf = append(buf, k...)
			buf = AppendValue(buf, vv[k])
		}
		return buf
	default:
		panic(fmt.Sprintf("canon: unknown value type %T", v))
	}
}

// EncodeValue returns the canonical encoding of v.
func EncodeValue(v node.Value) []byte {
	return AppendValue(nil, v)
}

// sortedMapKeys returns m's keys sorted by ascending key bytes — the
// encoder's mandated map ordering regardless of the container's
// iteration order.
func sortedMapKeys(m node.MapValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// AppendMutation appends the canonical encoding of m to buf and returns
// the extended slice.
func AppendMutation(buf []byte, m node.Mutation) []byte {
	switch mm := m.(type) {
	case node.CreateNode:
		buf = append(buf, tagCreateNode)
		buf = putU64(buf, uint64(mm.ID))
		buf = putU64(buf, uint64(len(mm.Type)))
		buf = append(buf, mm.Type...)
		return buf
	case node.SetField:
		buf = append(buf, tagSetField)
		buf = putU64(buf, uint64(mm.ID))
		buf = putU64(buf, uint64(len(mm.Key)))
		buf = append(buf, mm.Key...)
		buf = AppendValue(buf, mm.Value)
		return buf
	case node.DeleteField:
		buf = append(buf, tagDeleteField)
		buf = putU64(buf, uint64(mm.ID))
		buf = putU64(buf, uint64(len(mm.Key)))
		buf = append(buf, mm.Key...)
		return buf
	case node.DeleteNode:
		buf = append(buf, tagDeleteNode)
		buf = putU64(buf, uint64(mm.ID))
		return buf
	default:
		panic(fmt.Sprintf("canon: unknown mutation type %T", m))
	}
}

// EncodeMutations returns the canonical concatenation of mutations in
// order, with no enclosing length prefix (the commit hash framing
// supplies that separately via the message and parent-hash prefix).
func EncodeMutations(mutations []node.Mutation) []byte {
	var buf []byte
	for _, m := range mutations {
		buf = AppendMutation(buf, m)
	}
	return buf
}

// EncodeState returns the canonical concatenation used to derive a state
// hash: nodes in ascending id order, each as id, type, deleted flag,
// field count, then fields in ascending key order.
func EncodeState(state map[node.NodeID]node.Node) []byte {
	ids := make([]node.NodeID, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf []byte
	for _, id := range ids {
		n := state[id]
		buf = putU64(buf, uint64(n.ID))
		buf = putU64(buf, uint64(len(n.Type)))
		buf = append(buf, n.Type...)
		if n.Deleted {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = putU64(buf, uint64(len(n.Fields)))
		keys := make([]string, 0, len(n.Fields))
		for k := range n.Fields {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			buf = putU64(buf, uint64(len(k)))
			buf = append(buf, k...)
			buf = AppendValue(buf, n.Fields[k])
		}
	}
	return buf
}
