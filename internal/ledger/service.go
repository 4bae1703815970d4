package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"boardbank/internal/metrics"
)

const recentKeyLimit = 256

// Store persists whole session documents.
type Store interface {
	// Load returns the last saved session, or a fresh one if none exists.
	Load(ctx context.Context) (*Session, error)
	// Save durably replaces the saved session.
	Save(ctx context.Context, s *Session) error
	// Archive keeps a copy of s under a name derived from at.
	Archive(ctx context.Context, s *Session, at time.Time) (string, error)
}

// Fanout delivers an encoded message to every connected observer.
type Fanout interface {
	Broadcast(msg []byte)
}

// Message is the envelope pushed to observers.
type Message struct {
	Type string   `json:"type"`
	Data *Session `json:"data"`
}

type Result struct {
	Action  Action   `json:"action"`
	Entries []string `json:"entries"`
	Archive string   `json:"archive,omitempty"`
}

// Service owns the live session and runs every action through one
// serialized pipeline: apply to a copy, audit, save, swap, broadcast.
type Service struct {
	store  Store
	fanout Fanout
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	session *Session
	recent  *recentKeys
}

func NewService(ctx context.Context, store Store, fanout Fanout, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	session.Normalize()
	if err := Audit(session); err != nil {
		logger.Warn("loaded session fails audit", "err", err)
	}
	return &Service{
		store:   store,
		fanout:  fanout,
		log:     logger,
		now:     time.Now,
		session: session,
		recent:  newRecentKeys(recentKeyLimit),
	}, nil
}

// Apply runs cmd against the live session. On any error the live session is
// unchanged and nothing is broadcast.
func (s *Service) Apply(ctx context.Context, cmd Command, idempotencyKey string) (Result, error) {
	start := time.Now()
	action := cmd.Action()
	out := Result{Action: action}

	s.mu.Lock()
	defer s.mu.Unlock()

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" && s.recent.has(idempotencyKey) {
		s.record(action, "rejected", start, ErrDuplicateAction)
		return out, ErrDuplicateAction
	}

	var working *Session
	if action == ActionNewGame {
		working = NewSession()
	} else {
		working = s.session.Clone()
		if err := cmd.apply(working); err != nil {
			s.record(action, "rejected", start, err)
			return out, err
		}
		if err := Audit(working); err != nil {
			s.record(action, "failed", start, err)
			return out, err
		}
	}

	if action == ActionNewGame {
		name, err := s.store.Archive(ctx, s.session, s.now().UTC())
		if err != nil {
			err = fmt.Errorf("%w: archive: %w", ErrPersistence, err)
			s.record(action, "failed", start, err)
			return out, err
		}
		out.Archive = name
	}
	if err := s.store.Save(ctx, working); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		s.record(action, "failed", start, err)
		return out, err
	}

	out.Entries = append([]string{}, working.Log[len(working.Log)-newEntries(s.session, working, action):]...)
	s.session = working
	if idempotencyKey != "" {
		s.recent.add(idempotencyKey)
	}
	s.broadcastLocked("update")

	s.record(action, "committed", start, nil)
	s.log.Info("action committed", "action", string(action), "entries", out.Entries, "duration", time.Since(start).String())
	return out, nil
}

// Subscribe hands register the current state as an "initial" message while
// holding the pipeline lock, so no update can slip in between the initial
// state and the observer joining the fanout.
func (s *Service) Subscribe(register func(initial []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, err := json.Marshal(Message{Type: "initial", Data: s.session})
	if err != nil {
		return err
	}
	register(msg)
	return nil
}

// Snapshot returns a deep copy of the live session.
func (s *Service) Snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Log returns the last tail entries, or all of them when tail <= 0.
func (s *Service) Log(tail int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.session.Log
	if tail > 0 && tail < len(entries) {
		entries = entries[len(entries)-tail:]
	}
	return append([]string(nil), entries...)
}

func (s *Service) broadcastLocked(kind string) {
	if s.fanout == nil {
		return
	}
	msg, err := json.Marshal(Message{Type: kind, Data: s.session})
	if err != nil {
		s.log.Error("encode broadcast", "err", err)
		return
	}
	s.fanout.Broadcast(msg)
}

func (s *Service) record(action Action, outcome string, start time.Time, err error) {
	metrics.RecordAction(string(action), outcome, time.Since(start))
	if err == nil {
		return
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrInvariant) {
		s.log.Error("action failed", "action", string(action), "err", err)
		return
	}
	s.log.Warn("action rejected", "action", string(action), "err", err)
}

func newEntries(before, after *Session, action Action) int {
	if action == ActionNewGame {
		return len(after.Log)
	}
	return len(after.Log) - len(before.Log)
}

// recentKeys remembers the last n idempotency keys in arrival order.
type recentKeys struct {
	order []string
	next  int
	set   map[string]struct{}
}

func newRecentKeys(n int) *recentKeys {
	return &recentKeys{order: make([]string, n), set: make(map[string]struct{}, n)}
}

func (r *recentKeys) has(key string) bool {
	_, ok := r.set[key]
	return ok
}

func (r *recentKeys) add(key string) {
	if old := r.order[r.next]; old != "" {
		delete(r.set, old)
	}
	r.order[r.next] = key
	r.set[key] = struct{}{}
	r.next = (r.next + 1) % len(r.order)
}
