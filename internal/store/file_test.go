package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardbank/internal/ledger"
)

func seededSession(t *testing.T) *ledger.Session {
	t.Helper()
	s := ledger.NewSession()
	p, err := s.AddPlayer("Ada")
	require.NoError(t, err)
	c, err := s.ParCompany("PRR", 67)
	require.NoError(t, err)
	require.NoError(t, s.BuyIPO(p.ID, c.ID, 2))
	return s
}

func TestFileStoreLoadMissingReturnsFreshSession(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	s, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Players)
	assert.Empty(t, s.Companies)
	assert.Len(t, s.Privates, 6)
	assert.Empty(t, s.Log)
}

func TestFileStoreSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	want := seededSession(t)

	require.NoError(t, fs.Save(context.Background(), want))

	got, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(filepath.Join(dir, "game-state.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"players\"")
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, fs.Save(context.Background(), seededSession(t)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"archive", "game-state.json"}, names)
}

func TestFileStoreArchiveWritesTimestampedCopy(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	s := seededSession(t)
	at := time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)

	name, err := fs.Archive(context.Background(), s, at)
	require.NoError(t, err)
	assert.Equal(t, "game-state-20260314T150926.535Z.json", name)

	names, err := fs.Archives()
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)
}

func TestFileStoreLoadRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fs.Path(), []byte("{not json"), 0o644))

	_, err = fs.Load(context.Background())
	require.ErrorContains(t, err, "decode session")
}

func TestFileStoreSaveFailsWhenDirectoryIsGone(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = fs.Save(context.Background(), seededSession(t))
	require.Error(t, err)
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, fs.Save(ctx, seededSession(t)), context.Canceled)
}
