package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// SharesPerCompany is the fixed share count of every parred company.
	SharesPerCompany = int64(10)
	// MaxAmount caps every price, payout and cash delta. A capped amount
	// times a share count cannot overflow int64.
	MaxAmount = int64(1_000_000_000)

	BankID   = "bank"
	BankName = "Bank"

	playerPrefix  = "p"
	companyPrefix = "c"
)

var (
	ErrValidation      = errors.New("invalid parameters")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrPersistence     = errors.New("persist session")
	ErrDuplicateAction = errors.New("duplicate idempotency key")
	ErrInvariant       = errors.New("ledger invariant violated")
)

type Player struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Money  int64            `json:"money"`
	Shares map[string]int64 `json:"shares"`
}

type Company struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Money           int64  `json:"money"`
	ParPrice        int64  `json:"parPrice"`
	CurrentPrice    int64  `json:"currentPrice"`
	LastPayPerShare int64  `json:"lastPayPerShare"`
	IPOShares       int64  `json:"ipoShares"`
	BankPoolShares  int64  `json:"bankPoolShares"`
}

// Private is a revenue-paying asset. An empty Owner means unowned.
type Private struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Cost     int64  `json:"cost"`
	Revenue  int64  `json:"revenue"`
	Owner    string `json:"owner,omitempty"`
	IsClosed bool   `json:"isClosed"`
}

// Session is the root aggregate persisted as one JSON document.
type Session struct {
	Players   map[string]*Player  `json:"players"`
	Companies map[string]*Company `json:"companies"`
	Privates  map[string]*Private `json:"privates"`
	Log       []string            `json:"log"`
}

// StartingPrivates returns the fixed private set every session starts with.
func StartingPrivates() map[string]*Private {
	seed := []Private{
		{ID: "sv", Name: "Schuylkill Valley", Cost: 20, Revenue: 5},
		{ID: "cs", Name: "Champlain & St. Lawrence", Cost: 40, Revenue: 10},
		{ID: "dh", Name: "Delaware & Hudson", Cost: 70, Revenue: 15},
		{ID: "mh", Name: "Mohawk & Hudson", Cost: 110, Revenue: 20},
		{ID: "ca", Name: "Camden & Amboy", Cost: 160, Revenue: 25},
		{ID: "bo", Name: "Baltimore & Ohio", Cost: 220, Revenue: 30},
	}
	out := make(map[string]*Private, len(seed))
	for i := range seed {
		p := seed[i]
		out[p.ID] = &p
	}
	return out
}

func NewSession() *Session {
	return &Session{
		Players:   map[string]*Player{},
		Companies: map[string]*Company{},
		Privates:  StartingPrivates(),
		Log:       []string{},
	}
}

// Normalize fills nil collections and re-keys ids after decoding a document
// written by an older build or by hand.
func (s *Session) Normalize() {
	if s.Players == nil {
		s.Players = map[string]*Player{}
	}
	if s.Companies == nil {
		s.Companies = map[string]*Company{}
	}
	if s.Privates == nil {
		s.Privates = StartingPrivates()
	}
	if s.Log == nil {
		s.Log = []string{}
	}
	for id, p := range s.Players {
		if p == nil {
			delete(s.Players, id)
			continue
		}
		p.ID = id
		if p.Shares == nil {
			p.Shares = map[string]int64{}
		}
	}
	for id, c := range s.Companies {
		if c == nil {
			delete(s.Companies, id)
			continue
		}
		c.ID = id
	}
	for id, p := range s.Privates {
		if p == nil {
			delete(s.Privates, id)
			continue
		}
		p.ID = id
	}
}

func (s *Session) Clone() *Session {
	out := &Session{
		Players:   make(map[string]*Player, len(s.Players)),
		Companies: make(map[string]*Company, len(s.Companies)),
		Privates:  make(map[string]*Private, len(s.Privates)),
		Log:       make([]string, len(s.Log)),
	}
	for id, p := range s.Players {
		cp := *p
		cp.Shares = make(map[string]int64, len(p.Shares))
		for k, v := range p.Shares {
			cp.Shares[k] = v
		}
		out.Players[id] = &cp
	}
	for id, c := range s.Companies {
		cc := *c
		out.Companies[id] = &cc
	}
	for id, p := range s.Privates {
		cp := *p
		out.Privates[id] = &cp
	}
	copy(out.Log, s.Log)
	return out
}

// Append adds one entry to the log. Entries are never edited afterwards.
func (s *Session) Append(format string, args ...any) {
	s.Log = append(s.Log, fmt.Sprintf(format, args...))
}

// HeldShares sums every player's holding in the company.
func (s *Session) HeldShares(companyID string) int64 {
	var total int64
	for _, p := range s.Players {
		total += p.Shares[companyID]
	}
	return total
}

// PlayerIDs returns player ids in allocation order.
func (s *Session) PlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// CompanyIDs returns company ids in allocation order.
func (s *Session) CompanyIDs() []string {
	ids := make([]string, 0, len(s.Companies))
	for id := range s.Companies {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (s *Session) PrivateIDs() []string {
	ids := make([]string, 0, len(s.Privates))
	for id := range s.Privates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func nextID[T any](prefix string, existing map[string]T) string {
	var max int64
	for id := range existing {
		n, ok := idNumber(prefix, id)
		if ok && n > max {
			max = n
		}
	}
	return prefix + strconv.FormatInt(max+1, 10)
}

func idNumber(prefix, id string) (int64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(id, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
}

func shareCount(n int64) string {
	if n == 1 || n == -1 {
		return "1 share"
	}
	return strconv.FormatInt(n, 10) + " shares"
}
