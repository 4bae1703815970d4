package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

type Action string

const (
	ActionNewGame            Action = "new-game"
	ActionAddPlayer          Action = "add-player"
	ActionInitialMoney       Action = "initial-money"
	ActionParCompany         Action = "par-company"
	ActionShareAction        Action = "share-action"
	ActionBuyIPO             Action = "buy-ipo"
	ActionUpdateCompanyMoney Action = "update-company-money"
	ActionUpdatePlayerMoney  Action = "update-player-money"
	ActionPayPerShare        Action = "pay-per-share"
	ActionUpdateCompanyPrice Action = "update-company-price"
	ActionPayPrivates        Action = "pay-privates"
	ActionSellPrivate        Action = "sell-private"
	ActionClosePrivate       Action = "close-private"
	ActionTransfer           Action = "transfer"
)

// Actions lists every action the pipeline accepts.
var Actions = []Action{
	ActionNewGame,
	ActionAddPlayer,
	ActionInitialMoney,
	ActionParCompany,
	ActionShareAction,
	ActionBuyIPO,
	ActionUpdateCompanyMoney,
	ActionUpdatePlayerMoney,
	ActionPayPerShare,
	ActionUpdateCompanyPrice,
	ActionPayPrivates,
	ActionSellPrivate,
	ActionClosePrivate,
	ActionTransfer,
}

// Command is a validated, typed action ready to run against a session.
type Command interface {
	Action() Action
	apply(s *Session) error
}

type NewGame struct{}

type AddPlayer struct{ Name string }

type InitialMoney struct{ Amount int64 }

type ParCompany struct {
	Name  string
	Price int64
}

type ShareAction struct {
	Player   string
	Company  string
	Quantity int64
}

type BuyIPO struct {
	Player   string
	Company  string
	Quantity int64
}

type UpdateCompanyMoney struct {
	Company string
	Amount  int64
}

type UpdatePlayerMoney struct {
	Player string
	Amount int64
}

type PayPerShare struct {
	Company string
	Amount  int64
	Retains bool
}

type UpdateCompanyPrice struct {
	Company string
	Price   int64
}

type PayPrivates struct{}

type SellPrivate struct {
	Key    string
	Target string
	Price  int64
}

type ClosePrivate struct{ Key string }

type Transfer struct {
	Source string
	Target string
	Amount int64
}

func (NewGame) Action() Action            { return ActionNewGame }
func (AddPlayer) Action() Action          { return ActionAddPlayer }
func (InitialMoney) Action() Action       { return ActionInitialMoney }
func (ParCompany) Action() Action         { return ActionParCompany }
func (ShareAction) Action() Action        { return ActionShareAction }
func (BuyIPO) Action() Action             { return ActionBuyIPO }
func (UpdateCompanyMoney) Action() Action { return ActionUpdateCompanyMoney }
func (UpdatePlayerMoney) Action() Action  { return ActionUpdatePlayerMoney }
func (PayPerShare) Action() Action        { return ActionPayPerShare }
func (UpdateCompanyPrice) Action() Action { return ActionUpdateCompanyPrice }
func (PayPrivates) Action() Action        { return ActionPayPrivates }
func (SellPrivate) Action() Action        { return ActionSellPrivate }
func (ClosePrivate) Action() Action       { return ActionClosePrivate }
func (Transfer) Action() Action           { return ActionTransfer }

// NewGame is handled by the service, which swaps in a fresh session.
func (NewGame) apply(*Session) error { return nil }

func (c AddPlayer) apply(s *Session) error {
	_, err := s.AddPlayer(c.Name)
	return err
}

func (c InitialMoney) apply(s *Session) error { return s.SetInitialMoney(c.Amount) }

func (c ParCompany) apply(s *Session) error {
	_, err := s.ParCompany(c.Name, c.Price)
	return err
}

func (c ShareAction) apply(s *Session) error {
	return s.TradeWithBank(c.Player, c.Company, c.Quantity)
}

func (c BuyIPO) apply(s *Session) error { return s.BuyIPO(c.Player, c.Company, c.Quantity) }

func (c UpdateCompanyMoney) apply(s *Session) error {
	return s.AdjustCompanyMoney(c.Company, c.Amount)
}

func (c UpdatePlayerMoney) apply(s *Session) error {
	return s.AdjustPlayerMoney(c.Player, c.Amount)
}

func (c PayPerShare) apply(s *Session) error {
	if c.Retains {
		return s.RetainEarnings(c.Company, c.Amount)
	}
	return s.PayDividend(c.Company, c.Amount)
}

func (c UpdateCompanyPrice) apply(s *Session) error {
	return s.SetCompanyPrice(c.Company, c.Price)
}

func (PayPrivates) apply(s *Session) error { return s.PayPrivates() }

func (c SellPrivate) apply(s *Session) error { return s.SellPrivate(c.Key, c.Target, c.Price) }

func (c ClosePrivate) apply(s *Session) error { return s.ClosePrivate(c.Key) }

func (c Transfer) apply(s *Session) error { return s.Transfer(c.Source, c.Target, c.Amount) }

// ParseCommand validates raw transport parameters and builds the typed
// command for action. It never looks at the session.
func ParseCommand(action string, raw map[string]string) (Command, error) {
	p := params(raw)
	var (
		cmd Command
		err error
	)
	switch Action(strings.TrimSpace(action)) {
	case ActionNewGame:
		cmd = NewGame{}
	case ActionAddPlayer:
		var c AddPlayer
		c.Name, err = p.text("name")
		cmd = c
	case ActionInitialMoney:
		var c InitialMoney
		c.Amount, err = p.nonZero("amount")
		cmd = c
	case ActionParCompany:
		var c ParCompany
		if c.Name, err = p.text("name"); err == nil {
			c.Price, err = p.positive("price")
		}
		cmd = c
	case ActionShareAction:
		var c ShareAction
		if c.Player, err = p.text("player"); err == nil {
			if c.Company, err = p.text("company"); err == nil {
				c.Quantity, err = p.shares("quantity")
			}
		}
		cmd = c
	case ActionBuyIPO:
		var c BuyIPO
		if c.Player, err = p.text("player"); err == nil {
			if c.Company, err = p.text("company"); err == nil {
				if c.Quantity, err = p.shares("quantity"); err == nil && c.Quantity < 0 {
					err = fmt.Errorf("%w: quantity must be > 0", ErrValidation)
				}
			}
		}
		cmd = c
	case ActionUpdateCompanyMoney:
		var c UpdateCompanyMoney
		if c.Company, err = p.text("company"); err == nil {
			c.Amount, err = p.nonZero("amount")
		}
		cmd = c
	case ActionUpdatePlayerMoney:
		var c UpdatePlayerMoney
		if c.Player, err = p.text("player"); err == nil {
			c.Amount, err = p.nonZero("amount")
		}
		cmd = c
	case ActionPayPerShare:
		var c PayPerShare
		if c.Company, err = p.text("company"); err == nil {
			if c.Amount, err = p.nonZero("amount"); err == nil {
				c.Retains, err = p.flag("retains")
			}
		}
		cmd = c
	case ActionUpdateCompanyPrice:
		var c UpdateCompanyPrice
		if c.Company, err = p.text("company"); err == nil {
			c.Price, err = p.positive("price")
		}
		cmd = c
	case ActionPayPrivates:
		cmd = PayPrivates{}
	case ActionSellPrivate:
		var c SellPrivate
		if c.Key, err = p.text("key"); err == nil {
			if c.Target, err = p.text("target"); err == nil {
				c.Price, err = p.integer("price")
			}
		}
		cmd = c
	case ActionClosePrivate:
		var c ClosePrivate
		c.Key, err = p.text("key")
		cmd = c
	case ActionTransfer:
		var c Transfer
		if c.Source, err = p.text("source"); err == nil {
			if c.Target, err = p.text("target"); err == nil {
				c.Amount, err = p.nonZero("amount")
			}
		}
		cmd = c
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

type params map[string]string

func (p params) text(key string) (string, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, key)
	}
	return v, nil
}

func (p params) integer(key string) (int64, error) {
	v, err := p.text(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrValidation, key, v)
	}
	if err := checkAmount(key, n); err != nil {
		return 0, err
	}
	return n, nil
}

// shares is a non-zero share count no larger than a company's issue.
func (p params) shares(key string) (int64, error) {
	n, err := p.nonZero(key)
	if err != nil {
		return 0, err
	}
	if err := checkQuantity(n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p params) nonZero(key string) (int64, error) {
	n, err := p.integer(key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s must be non-zero", ErrValidation, key)
	}
	return n, nil
}

func (p params) positive(key string) (int64, error) {
	n, err := p.integer(key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be > 0", ErrValidation, key)
	}
	return n, nil
}

// flag treats a missing value as false.
func (p params) flag(key string) (bool, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false, got %q", ErrValidation, key, v)
	}
	return b, nil
}
