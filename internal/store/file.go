package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"boardbank/internal/ledger"
)

const (
	stateFileName   = "game-state.json"
	archiveDirName  = "archive"
	stateFileMode   = 0o644
	stateDirMode    = 0o755
	tempFilePattern = ".game-state-*.json.tmp"
	archiveLayout   = "20060102T150405.000Z"
)

// FileStore keeps the session as one indented JSON document, rewritten in
// full through a temp file and rename on every save.
type FileStore struct {
	path       string
	archiveDir string
}

var _ ledger.Store = (*FileStore)(nil)

func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is empty")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, archiveDirName), stateDirMode); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{
		path:       filepath.Join(abs, stateFileName),
		archiveDir: filepath.Join(abs, archiveDirName),
	}, nil
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(ctx context.Context) (*ledger.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ledger.NewSession(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return decode(data)
}

func (f *FileStore) Save(ctx context.Context, s *ledger.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(s)
	if err != nil {
		return err
	}
	return writeAtomic(f.path, data)
}

func (f *FileStore) Archive(ctx context.Context, s *ledger.Session, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encode(s)
	if err != nil {
		return "", err
	}
	name := archiveName(at) + ".json"
	if err := writeAtomic(filepath.Join(f.archiveDir, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// Archives lists archived document names, oldest first.
func (f *FileStore) Archives() ([]string, error) {
	entries, err := os.ReadDir(f.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("read archive directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func writeAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tempFile.Chmod(stateFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	cleanup = false
	return nil
}

func encode(s *ledger.Session) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*ledger.Session, error) {
	if len(data) == 0 {
		return ledger.NewSession(), nil
	}
	var s ledger.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.Normalize()
	return &s, nil
}

func archiveName(at time.Time) string {
	return "game-state-" + at.UTC().Format(archiveLayout)
}
