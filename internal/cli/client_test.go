package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardbank/internal/api"
	"boardbank/internal/config"
	"boardbank/internal/fanout"
	"boardbank/internal/ledger"
	"boardbank/internal/store"
	"boardbank/internal/syncq"
)

func newStack(t *testing.T) (*Client, *fanout.Hub) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	hub := fanout.NewHub(8, nil)
	svc, err := ledger.NewService(context.Background(), fs, hub, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(api.New(config.APIConfig{}, nil, svc, hub).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return NewClient(srv.URL + "/"), hub
}

func TestClientRunsASessionRound(t *testing.T) {
	c, _ := newStack(t)
	ctx := context.Background()

	_, err := c.AddPlayer(ctx, "Ada", "")
	require.NoError(t, err)
	_, err = c.InitialMoney(ctx, 600, "")
	require.NoError(t, err)
	_, err = c.ParCompany(ctx, "B&O", 100, "")
	require.NoError(t, err)
	_, err = c.BuyIPO(ctx, "p1", "c1", 2, "")
	require.NoError(t, err)
	res, err := c.PayPerShare(ctx, "c1", 10, false, "")
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionPayPerShare, res.Action)
	assert.Equal(t, []string{"B&O pays 10 per share"}, res.Entries)

	s, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600-200+20), s.Players["p1"].Money)
	assert.Equal(t, int64(1000), s.Companies["c1"].Money)

	entries, err := c.Log(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"B&O pays 10 per share"}, entries)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c, _ := newStack(t)

	_, err := c.Transfer(context.Background(), "p7", "bank", 10, "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "p7")
}

func TestClientReusedKeyIsRejected(t *testing.T) {
	c, _ := newStack(t)
	ctx := context.Background()

	_, err := c.AddPlayer(ctx, "Ada", "retry-1")
	require.NoError(t, err)
	_, err = c.AddPlayer(ctx, "Ada", "retry-1")
	assert.True(t, IsStatus(err, http.StatusConflict))
}

func offlineClient(t *testing.T) (*Client, *syncq.Queue) {
	t.Helper()
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	c := NewClient(dead.URL)
	c.Outbox = syncq.New(filepath.Join(t.TempDir(), "outbox.json"))
	return c, c.Outbox
}

func TestClientQueuesWhenUnreachableAndSyncsLater(t *testing.T) {
	offline, outbox := offlineClient(t)
	ctx := context.Background()

	_, err := offline.AddPlayer(ctx, "Ada", "k-ada")
	require.ErrorIs(t, err, ErrQueued)
	require.ErrorIs(t, err, ErrUnreachable)
	_, err = offline.Transfer(ctx, "p9", "bank", 5, "k-bad")
	require.ErrorIs(t, err, ErrQueued)
	_, err = offline.PlayerMoney(ctx, "p1", 50, "k-money")
	require.ErrorIs(t, err, ErrQueued)

	queued, err := outbox.Load()
	require.NoError(t, err)
	require.Len(t, queued, 3)
	assert.Equal(t, "add-player", queued[0].Action)
	assert.Equal(t, "k-money", queued[2].IdempotencyKey)

	c, _ := newStack(t)
	// The first request made it to the server before the link dropped.
	_, err = c.AddPlayer(ctx, "Ada", "k-ada")
	require.NoError(t, err)

	report, err := c.Sync(ctx, outbox)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.Duplicate)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "k-bad", report.Rejected[0].Entry.IdempotencyKey)
	assert.True(t, IsStatus(report.Rejected[0].Err, http.StatusNotFound))
	assert.Zero(t, report.Remaining)

	s, err := c.State(ctx)
	require.NoError(t, err)
	assert.Len(t, s.Players, 1)
	assert.Equal(t, int64(50), s.Players["p1"].Money)

	left, err := outbox.Load()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestClientSyncKeepsEntriesWhileUnreachable(t *testing.T) {
	offline, outbox := offlineClient(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		_, err := offline.PayPrivates(ctx, key)
		require.ErrorIs(t, err, ErrQueued)
	}

	report, err := offline.Sync(ctx, outbox)
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 2, report.Remaining)

	left, err := outbox.Load()
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "a", left[0].IdempotencyKey)
}

func TestClientDoesNotQueueAnswers(t *testing.T) {
	c, _ := newStack(t)
	c.Outbox = syncq.New(filepath.Join(t.TempDir(), "outbox.json"))

	_, err := c.Transfer(context.Background(), "p7", "bank", 10, "k1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueued)

	left, err := c.Outbox.Load()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestClientWatchReceivesInitialAndUpdate(t *testing.T) {
	c, hub := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs := make(chan ledger.Message, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(m ledger.Message) error {
			msgs <- m
			if m.Type == "update" {
				return errors.New("seen enough")
			}
			return nil
		})
	}()

	first := <-msgs
	assert.Equal(t, "initial", first.Type)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := c.AddPlayer(ctx, "Ada", "")
	require.NoError(t, err)

	second := <-msgs
	assert.Equal(t, "update", second.Type)
	assert.Equal(t, []string{"Ada joins the game"}, second.Data.Log)
	assert.EqualError(t, <-done, "seen enough")
}

func TestWebsocketURL(t *testing.T) {
	for base, want := range map[string]string{
		"http://localhost:3000":    "ws://localhost:3000/ws",
		"https://bank.example.com": "wss://bank.example.com/ws",
	} {
		got, err := NewClient(base).websocketURL("/ws")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := NewClient("ftp://bank").websocketURL("/ws")
	require.Error(t, err)
}
