package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaiminpan/myosotis/canon"
	"github.com/jaiminpan/myosotis/memory"
	"github.com/jaiminpan/myosotis/myoerr"
	"github.com/jaiminpan/myosotis/node"
)

func msg(s string) *string { return &s }

func buildStore(t *testing.T) *memory.Memory {
	t.Helper()
	m := memory.New()
	id := m.Create("widget")
	require.NoError(t, m.Set(id, "name", node.StrValue("thing")))
	require.NoError(t, m.Commit(msg("first")))
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	m := buildStore(t)
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, canon.ComputeStateHash(m.Head()), canon.ComputeStateHash(loaded.Head()))
	require.Len(t, loaded.Commits, 1)
}

func TestSavedFileCarriesCurrentMagicAndVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, Save(path, buildStore(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var probe struct {
		Magic         string `json:"magic"`
		FormatVersion int    `json:"format_version"`
	}
	require.NoError(t, json.Unmarshal(data, &probe))
	require.Equal(t, Magic, probe.Magic)
	require.Equal(t, FormatVersion, probe.FormatVersion)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.False(t, Exists(path))
	require.NoError(t, Save(path, memory.New()))
	require.True(t, Exists(path))
}

func TestStrictLoadDetectsTamperedCommitHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, Save(path, buildStore(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	var commits []commitWire
	require.NoError(t, json.Unmarshal(raw["commits"], &commits))
	commits[0].Hash[0] ^= 0xff
	tamperedCommits, err := json.Marshal(commits)
	require.NoError(t, err)
	raw["commits"] = tamperedCommits
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	_, err = Load(path)
	require.ErrorIs(t, err, myoerr.ErrCorruptCommitHash)

	_, err = LoadWithMode(path, Unsafe)
	require.NoError(t, err)
}

func TestLegacyFileMigratesOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	m := buildStore(t)
	w := toWire(m)
	w.Magic = nil
	w.FormatVersion = nil
	data, err := json.MarshalIndent(w, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, canon.ComputeStateHash(m.Head()), canon.ComputeStateHash(loaded.Head()))

	reread, err := os.ReadFile(path)
	require.NoError(t, err)
	var probe struct {
		Magic         string `json:"magic"`
		FormatVersion int    `json:"format_version"`
	}
	require.NoError(t, json.Unmarshal(reread, &probe))
	require.Equal(t, Magic, probe.Magic, "re-saving a legacy file must stamp the current magic")
	require.Equal(t, FormatVersion, probe.FormatVersion)
}

func TestMissingFormatVersionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	data := []byte(`{"magic":"MYOSOTIS","commits":[],"checkpoints":[],"next_node_id":1}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, myoerr.ErrMissingFormatVersion)
}

func TestInvalidMagicFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	data := []byte(`{"magic":"NOPE","format_version":1,"commits":[],"checkpoints":[],"next_node_id":1}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, myoerr.ErrInvalidFileMagic)
}

func TestUnsupportedFormatVersionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	data := []byte(`{"magic":"MYOSOTIS","format_version":99,"commits":[],"checkpoints":[],"next_node_id":1}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	var unsupported *myoerr.UnsupportedFormatVersion
	require.ErrorAs(t, err, &unsupported)
}
