package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingOrEmptyFile(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "nested", "outbox.json"))

	entries, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.MkdirAll(filepath.Dir(q.Path()), 0o700))
	require.NoError(t, os.WriteFile(q.Path(), []byte("\n"), 0o600))
	entries, err = q.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPushKeepsOrderAndNumbers(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "nested", "outbox.json"))

	require.NoError(t, q.Push(Entry{Action: "add-player", Params: map[string]any{"name": "Ada"}, IdempotencyKey: "k1"}))
	require.NoError(t, q.Push(Entry{Action: "transfer", Params: map[string]any{"source": "p1", "target": "bank", "amount": int64(9007199254740993)}, IdempotencyKey: "k2"}))

	entries, err := q.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "k1", entries[0].IdempotencyKey)
	assert.False(t, entries[0].QueuedAt.IsZero())
	assert.Equal(t, json.Number("9007199254740993"), entries[1].Params["amount"])
}

func TestSaveEmptyRemovesFile(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "outbox.json"))
	require.NoError(t, q.Push(Entry{Action: "pay-privates", IdempotencyKey: "k"}))
	require.FileExists(t, q.Path())

	require.NoError(t, q.Save(nil))
	assert.NoFileExists(t, q.Path())
	require.NoError(t, q.Save(nil))
}

func TestLoadRejectsGarbage(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "outbox.json"))
	require.NoError(t, os.WriteFile(q.Path(), []byte("{not json"), 0o600))

	_, err := q.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
