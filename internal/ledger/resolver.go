package ledger

import "fmt"

// Entity is anything cash can move to or from.
type Entity interface {
	EntityID() string
	DisplayName() string
	// Credit adds amount to the entity's cash; a negative amount debits.
	Credit(amount int64)
	IsBank() bool
}

type playerEntity struct{ p *Player }

func (e playerEntity) EntityID() string    { return e.p.ID }
func (e playerEntity) DisplayName() string { return e.p.Name }
func (e playerEntity) Credit(amount int64) { e.p.Money += amount }
func (e playerEntity) IsBank() bool        { return false }

type companyEntity struct{ c *Company }

func (e companyEntity) EntityID() string    { return e.c.ID }
func (e companyEntity) DisplayName() string { return e.c.Name }
func (e companyEntity) Credit(amount int64) { e.c.Money += amount }
func (e companyEntity) IsBank() bool        { return false }

// bankEntity accepts every adjustment and stores none of them.
type bankEntity struct{}

func (bankEntity) EntityID() string    { return BankID }
func (bankEntity) DisplayName() string { return BankName }
func (bankEntity) Credit(int64)        {}
func (bankEntity) IsBank() bool        { return true }

// Resolve looks up the bank, then companies, then players.
func (s *Session) Resolve(id string) (Entity, bool) {
	if id == BankID {
		return bankEntity{}, true
	}
	if c, ok := s.Companies[id]; ok {
		return companyEntity{c: c}, true
	}
	if p, ok := s.Players[id]; ok {
		return playerEntity{p: p}, true
	}
	return nil, false
}

func (s *Session) entity(id string) (Entity, error) {
	e, ok := s.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrNotFound, id)
	}
	return e, nil
}

func (s *Session) player(id string) (*Player, error) {
	p, ok := s.Players[id]
	if !ok {
		return nil, fmt.Errorf("%w: player %q", ErrNotFound, id)
	}
	return p, nil
}

func (s *Session) company(id string) (*Company, error) {
	c, ok := s.Companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: company %q", ErrNotFound, id)
	}
	return c, nil
}

func (s *Session) private(id string) (*Private, error) {
	p, ok := s.Privates[id]
	if !ok {
		return nil, fmt.Errorf("%w: private %q", ErrNotFound, id)
	}
	return p, nil
}
