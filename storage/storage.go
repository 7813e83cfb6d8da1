// Package storage implements the store's on-disk file format: a
// versioned, magic-tagged JSON document, strict and permissive load
// modes, and transparent migration of the pre-versioning legacy shape.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/memory"
	"github.com/jaiminpan/myosotis/myoerr"
	"github.com/jaiminpan/myosotis/node"
)

// Magic is the required value of the root "magic" field in the current
// format.
const Magic = "MYOSOTIS"

// FormatVersion is the newest format version this codec writes and the
// highest it will load.
const FormatVersion = 1

// Mode selects how strictly Load verifies a file's integrity.
type Mode int

const (
	// Strict verifies the full hash chain and every checkpoint's state
	// hash. This is the default for Load.
	Strict Mode = iota
	// Unsafe skips recomputing commit hashes and checkpoint state hashes
	// but still runs every structural and semantic check, including the
	// genesis snapshot's state-hash check. Intended for recovery
	// inspection only.
	Unsafe
)

// rootWire mirrors the root JSON object of §4.7. Fields are pointers or
// omitempty where the shape is genuinely optional, matching the schema
// exactly so unrecognised top-level keys can be detected with DisallowUnknownFields.
type rootWire struct {
	Magic            *string               `json:"magic,omitempty"`
	FormatVersion    *int                  `json:"format_version,omitempty"`
	GenesisState     map[string]node.Node  `json:"genesis_state,omitempty"`
	GenesisStateHash *hashWire             `json:"genesis_state_hash,omitempty"`
	Commits          []commitWire          `json:"commits"`
	Checkpoints      []checkpointWire      `json:"checkpoints"`
	NextNodeID       node.NodeID           `json:"next_node_id"`
}

type hashWire [32]byte

func (h hashWire) MarshalJSON() ([]byte, error) {
	arr := make([]int, 32)
	for i, b := range h {
		arr[i] = int(b)
	}
	return json.Marshal(arr)
}

func (h *hashWire) UnmarshalJSON(data []byte) error {
	var arr []int
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 32 {
		return fmt.Errorf("storage: hash field has %d bytes, want 32", len(arr))
	}
	for i, v := range arr {
		h[i] = byte(v)
	}
	return nil
}

func hashToWire(h canon.Hash) hashWire { return hashWire(h) }
func wireToHash(h hashWire) canon.Hash { return canon.Hash(h) }

type commitWire struct {
	ID         uint64            `json:"id"`
	Parent     *uint64           `json:"parent,omitempty"`
	ParentHash *hashWire         `json:"parent_hash,omitempty"`
	Hash       hashWire          `json:"hash"`
	Message    *string           `json:"message,omitempty"`
	Mutations  []json.RawMessage `json:"mutations"`
}

type checkpointWire struct {
	CommitID   uint64               `json:"commit_id"`
	CommitHash hashWire             `json:"commit_hash"`
	StateHash  hashWire             `json:"state_hash"`
	State      map[string]node.Node `json:"state"`
}

func encodeState(state map[node.NodeID]node.Node) map[string]node.Node {
	out := make(map[string]node.Node, len(state))
	for id, n := range state {
		out[fmt.Sprintf("%d", id)] = n
	}
	return out
}

func decodeState(wire map[string]node.Node) (map[node.NodeID]node.Node, error) {
	out := make(map[node.NodeID]node.Node, len(wire))
	for k, n := range wire {
		var id uint64
		if _, err := fmt.Sscanf(k, "%d", &id); err != nil {
			return nil, myoerr.ErrMalformedFileStructure
		}
		out[id] = n
	}
	return out, nil
}

func encodeCommit(c memory.Commit) commitWire {
	w := commitWire{ID: c.ID, Parent: c.Parent, Hash: hashToWire(c.Hash), Message: c.Message}
	if c.ParentHash != nil {
		h := hashToWire(*c.ParentHash)
		w.ParentHash = &h
	}
	w.Mutations = make([]json.RawMessage, len(c.Mutations))
	for i, m := range c.Mutations {
		raw, err := node.MarshalMutationJSON(m)
		if err != nil {
			// Mutations are always one of the four known concrete
			// types constructed by this module; encoding cannot fail.
			panic(err)
		}
		w.Mutations[i] = raw
	}
	return w
}

func decodeCommit(w commitWire) (memory.Commit, error) {
	c := memory.Commit{ID: w.ID, Parent: w.Parent, Message: w.Message}
	c.Hash = wireToHash(w.Hash)
	if w.ParentHash != nil {
		h := wireToHash(*w.ParentHash)
		c.ParentHash = &h
	}
	if len(w.Mutations) == 0 {
		return memory.Commit{}, &myoerr.CorruptCommitChain{Detail: "commit with no mutations"}
	}
	c.Mutations = make([]node.Mutation, len(w.Mutations))
	for i, raw := range w.Mutations {
		m, err := node.UnmarshalMutationJSON(raw)
		if err != nil {
			return memory.Commit{}, fmt.Errorf("storage: decode commit %d: %w", w.ID, err)
		}
		c.Mutations[i] = m
	}
	return c, nil
}

func encodeCheckpoint(cp memory.Checkpoint) checkpointWire {
	return checkpointWire{
		CommitID:   cp.CommitID,
		CommitHash: hashToWire(cp.CommitHash),
		StateHash:  hashToWire(cp.StateHash),
		State:      encodeState(cp.State),
	}
}

func decodeCheckpoint(w checkpointWire) (memory.Checkpoint, error) {
	state, err := decodeState(w.State)
	if err != nil {
		return memory.Checkpoint{}, err
	}
	return memory.Checkpoint{
		CommitID:   w.CommitID,
		CommitHash: wireToHash(w.CommitHash),
		StateHash:  wireToHash(w.StateHash),
		State:      state,
	}, nil
}

// toWire renders m as the current versioned root document.
func toWire(m *memory.Memory) rootWire {
	magic := Magic
	version := FormatVersion
	w := rootWire{
		Magic:         &magic,
		FormatVersion: &version,
		NextNodeID:    m.NextNodeID,
		Commits:       make([]commitWire, len(m.Commits)),
		Checkpoints:   make([]checkpointWire, len(m.Checkpoints)),
	}
	for i, c := range m.Commits {
		w.Commits[i] = encodeCommit(c)
	}
	for i, cp := range m.Checkpoints {
		w.Checkpoints[i] = encodeCheckpoint(cp)
	}
	if m.GenesisState != nil {
		w.GenesisState = encodeState(m.GenesisState)
	}
	if m.GenesisStateHash != nil {
		h := hashToWire(*m.GenesisStateHash)
		w.GenesisStateHash = &h
	}
	return w
}

// fromWire rebuilds a Memory from a parsed root document. It does not
// run validation or rebuild head — callers do that after checking the
// requested load mode.
func fromWire(w rootWire) (*memory.Memory, error) {
	m := memory.New()
	m.NextNodeID = w.NextNodeID

	if w.GenesisState != nil {
		state, err := decodeState(w.GenesisState)
		if err != nil {
			return nil, err
		}
		m.GenesisState = state
	}
	if w.GenesisStateHash != nil {
		h := wireToHash(*w.GenesisStateHash)
		m.GenesisStateHash = &h
	}

	m.Commits = make([]memory.Commit, len(w.Commits))
	for i, cw := range w.Commits {
		c, err := decodeCommit(cw)
		if err != nil {
			return nil, err
		}
		m.Commits[i] = c
	}

	m.Checkpoints = make([]memory.Checkpoint, len(w.Checkpoints))
	for i, cpw := range w.Checkpoints {
		cp, err := decodeCheckpoint(cpw)
		if err != nil {
			return nil, err
		}
		m.Checkpoints[i] = cp
	}

	return m, nil
}

// Save serialises m as the current versioned format and writes it to
// path, pretty-printed. Writes are not atomic at this layer; Compact
// performs its own tmp+rename for that guarantee.
func Save(path string, m *memory.Memory) error {
	data, err := json.MarshalIndent(toWire(m), "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads path under Strict mode.
func Load(path string) (*memory.Memory, error) {
	return LoadWithMode(path, Strict)
}

// LoadWithMode reads and parses path, validates it (recomputing hashes
// only under Strict), and rebuilds the head state by replaying from the
// latest anchor.
func LoadWithMode(path string, mode Mode) (*memory.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}

	m, legacy, err := parseRoot(data)
	if err != nil {
		return nil, err
	}

	if err := m.Validate(mode == Strict); err != nil {
		return nil, err
	}

	var head map[node.NodeID]node.Node
	if len(m.Commits) > 0 {
		head, err = m.StateAtCommit(lastCommitID(m))
		if err != nil {
			return nil, err
		}
	} else if m.GenesisState != nil {
		head = m.GenesisState
	} else {
		head = map[node.NodeID]node.Node{}
	}
	m.SetRebuiltState(head)

	if legacy {
		if err := Save(path, m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func lastCommitID(m *memory.Memory) uint64 {
	if len(m.Commits) == 0 {
		return 0
	}
	return m.Commits[len(m.Commits)-1].ID
}

// parseRoot implements the §4.7 load algorithm's key-presence dispatch
// between current and legacy shapes, reporting whether the legacy shape
// was used.
func parseRoot(data []byte) (*memory.Memory, bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, myoerr.ErrMalformedFileStructure
	}

	_, hasMagic := probe["magic"]
	_, hasVersion := probe["format_version"]

	switch {
	case hasMagic && !hasVersion:
		return nil, false, myoerr.ErrMissingFormatVersion

	case hasVersion:
		var w rootWire
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&w); err != nil {
			return nil, false, fmt.Errorf("%w: %v", myoerr.ErrMalformedFileStructure, err)
		}
		if w.FormatVersion == nil {
			return nil, false, myoerr.ErrMissingFormatVersion
		}
		if *w.FormatVersion < 1 || *w.FormatVersion > FormatVersion {
			return nil, false, &myoerr.UnsupportedFormatVersion{Version: *w.FormatVersion}
		}
		if w.Magic == nil || *w.Magic != Magic {
			return nil, false, myoerr.ErrInvalidFileMagic
		}
		m, err := fromWire(w)
		return m, false, err

	default:
		var w rootWire
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&w); err != nil {
			return nil, false, fmt.Errorf("%w: %v", myoerr.ErrMalformedFileStructure, err)
		}
		m, err := fromWire(w)
		return m, true, err
	}
}
