// Package syncq keeps actions that could not reach the API so they can be
// replayed later under their original idempotency keys.
package syncq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Entry struct {
	Action         string         `json:"action"`
	Params         map[string]any `json:"params,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// Queue is a JSON file holding entries in the order they were pushed.
type Queue struct {
	path string
}

func New(path string) *Queue {
	return &Queue{path: path}
}

// DefaultPath is outbox.json under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "boardbank", "outbox.json"), nil
}

func (q *Queue) Path() string { return q.path }

func (q *Queue) Load() ([]Entry, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []Entry{}, nil
	}
	// UseNumber keeps amounts as the literals they were queued with.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out []Entry
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.path, err)
	}
	return out, nil
}

// Save replaces the queue. An empty slice removes the file.
func (q *Queue) Save(entries []Entry) error {
	if len(entries) == 0 {
		if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".outbox-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), q.path)
}

func (q *Queue) Push(e Entry) error {
	entries, err := q.Load()
	if err != nil {
		return err
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now().UTC()
	}
	entries = append(entries, e)
	return q.Save(entries)
}
