package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"boardbank/internal/ledger"
	"boardbank/internal/syncq"
)

var (
	// ErrUnreachable wraps transport failures where no answer came back.
	ErrUnreachable = errors.New("api unreachable")
	// ErrQueued means the action was parked in the outbox instead of applied.
	ErrQueued = errors.New("action queued for sync")
)

// Client talks to the boardbank API. When Outbox is set, actions that fail
// with ErrUnreachable are queued there instead.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
	Outbox  *syncq.Queue
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		Dialer: websocket.DefaultDialer,
	}
}

func (c *Client) State(ctx context.Context) (ledger.Session, error) {
	var out ledger.Session
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", nil, &out, "")
	return out, err
}

func (c *Client) Log(ctx context.Context, tail int) ([]string, error) {
	path := "/v1/log"
	if tail > 0 {
		path += "?tail=" + strconv.Itoa(tail)
	}
	var out struct {
		Entries []string `json:"entries"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out.Entries, err
}

// Apply posts one action. params values may be strings, numbers or bools.
func (c *Client) Apply(ctx context.Context, action ledger.Action, params map[string]any, idem string) (ledger.Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	var out ledger.Result
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/actions/"+url.PathEscape(string(action)), params, &out, idem)
	if err != nil && c.Outbox != nil && idem != "" && errors.Is(err, ErrUnreachable) {
		entry := syncq.Entry{Action: string(action), Params: params, IdempotencyKey: idem}
		if qerr := c.Outbox.Push(entry); qerr != nil {
			return out, fmt.Errorf("%w (outbox: %v)", err, qerr)
		}
		return out, fmt.Errorf("%w: %w", ErrQueued, err)
	}
	return out, err
}

// SyncReport counts what a Sync did with each outbox entry.
type SyncReport struct {
	Applied   int
	Duplicate int
	Rejected  []RejectedEntry
	Remaining int
}

type RejectedEntry struct {
	Entry syncq.Entry
	Err   error
}

// Sync replays the outbox in order. A 409 for an already used key counts as
// applied earlier. Other API errors drop the entry. Replay stops at the first
// transport failure and keeps that entry and everything after it.
func (c *Client) Sync(ctx context.Context, q *syncq.Queue) (SyncReport, error) {
	var report SyncReport
	entries, err := q.Load()
	if err != nil {
		return report, err
	}
	plain := *c
	plain.Outbox = nil

	i := 0
	for ; i < len(entries); i++ {
		e := entries[i]
		_, err := plain.Apply(ctx, ledger.Action(e.Action), e.Params, e.IdempotencyKey)
		switch {
		case err == nil:
			report.Applied++
		case IsDuplicate(err):
			report.Duplicate++
		case errors.Is(err, ErrUnreachable):
			report.Remaining = len(entries) - i
			if serr := q.Save(entries[i:]); serr != nil {
				return report, serr
			}
			return report, err
		default:
			report.Rejected = append(report.Rejected, RejectedEntry{Entry: e, Err: err})
		}
	}
	return report, q.Save(nil)
}

func (c *Client) NewGame(ctx context.Context, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionNewGame, nil, idem)
}

func (c *Client) AddPlayer(ctx context.Context, name, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionAddPlayer, map[string]any{"name": name}, idem)
}

func (c *Client) InitialMoney(ctx context.Context, amount int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionInitialMoney, map[string]any{"amount": amount}, idem)
}

func (c *Client) ParCompany(ctx context.Context, name string, price int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionParCompany, map[string]any{"name": name, "price": price}, idem)
}

// TradeShares buys from (quantity > 0) or sells to (quantity < 0) the bank pool.
func (c *Client) TradeShares(ctx context.Context, player, company string, quantity int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionShareAction, map[string]any{
		"player":   player,
		"company":  company,
		"quantity": quantity,
	}, idem)
}

func (c *Client) BuyIPO(ctx context.Context, player, company string, quantity int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionBuyIPO, map[string]any{
		"player":   player,
		"company":  company,
		"quantity": quantity,
	}, idem)
}

func (c *Client) CompanyMoney(ctx context.Context, company string, amount int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionUpdateCompanyMoney, map[string]any{"company": company, "amount": amount}, idem)
}

func (c *Client) PlayerMoney(ctx context.Context, player string, amount int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionUpdatePlayerMoney, map[string]any{"player": player, "amount": amount}, idem)
}

func (c *Client) PayPerShare(ctx context.Context, company string, amount int64, retains bool, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionPayPerShare, map[string]any{
		"company": company,
		"amount":  amount,
		"retains": retains,
	}, idem)
}

func (c *Client) CompanyPrice(ctx context.Context, company string, price int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionUpdateCompanyPrice, map[string]any{"company": company, "price": price}, idem)
}

func (c *Client) PayPrivates(ctx context.Context, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionPayPrivates, nil, idem)
}

func (c *Client) SellPrivate(ctx context.Context, key, target string, price int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionSellPrivate, map[string]any{"key": key, "target": target, "price": price}, idem)
}

func (c *Client) ClosePrivate(ctx context.Context, key, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionClosePrivate, map[string]any{"key": key}, idem)
}

func (c *Client) Transfer(ctx context.Context, source, target string, amount int64, idem string) (ledger.Result, error) {
	return c.Apply(ctx, ledger.ActionTransfer, map[string]any{
		"source": source,
		"target": target,
		"amount": amount,
	}, idem)
}

// Watch streams observer messages to fn until ctx ends, the server hangs up,
// or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(ledger.Message) error) error {
	wsURL, err := c.websocketURL("/ws")
	if err != nil {
		return err
	}
	conn, _, err := c.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg ledger.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsDuplicate reports whether the server had already seen the idempotency key.
func IsDuplicate(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict &&
		apiErr.Message == ledger.ErrDuplicateAction.Error()
}
