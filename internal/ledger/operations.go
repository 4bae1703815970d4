package ledger

import (
	"fmt"
	"strings"
)

// Every operation checks all of its preconditions before touching the
// session, so a returned error always means nothing was changed.

func checkAmount(label string, v int64) error {
	if v > MaxAmount || v < -MaxAmount {
		return fmt.Errorf("%w: %s must be within ±%d", ErrValidation, label, MaxAmount)
	}
	return nil
}

func checkQuantity(q int64) error {
	if q > SharesPerCompany || q < -SharesPerCompany {
		return fmt.Errorf("%w: quantity must be within ±%d", ErrValidation, SharesPerCompany)
	}
	return nil
}

func (s *Session) AddPlayer(name string) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: player name is required", ErrValidation)
	}
	p := &Player{
		ID:     nextID(playerPrefix, s.Players),
		Name:   name,
		Shares: map[string]int64{},
	}
	s.Players[p.ID] = p
	s.Append("%s joins the game", p.Name)
	return p, nil
}

// SetInitialMoney overwrites every player's cash with amount.
func (s *Session) SetInitialMoney(amount int64) error {
	if err := checkAmount("amount", amount); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrValidation)
	}
	for _, p := range s.Players {
		p.Money = amount
	}
	s.Append("Every player starts with %d", amount)
	return nil
}

// ParCompany opens a company: all shares go to the IPO pool and the treasury
// is funded with parPrice for each of them.
func (s *Session) ParCompany(name string, parPrice int64) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrValidation)
	}
	if parPrice <= 0 {
		return nil, fmt.Errorf("%w: par price must be > 0", ErrValidation)
	}
	if err := checkAmount("par price", parPrice); err != nil {
		return nil, err
	}
	c := &Company{
		ID:           nextID(companyPrefix, s.Companies),
		Name:         name,
		Money:        parPrice * SharesPerCompany,
		ParPrice:     parPrice,
		CurrentPrice: parPrice,
		IPOShares:    SharesPerCompany,
	}
	s.Companies[c.ID] = c
	s.Append("%s opens at %d", c.Name, parPrice)
	return c, nil
}

// TradeWithBank buys (quantity > 0) from or sells (quantity < 0) to the bank
// pool at the company's current price.
func (s *Session) TradeWithBank(playerID, companyID string, quantity int64) error {
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be non-zero", ErrValidation)
	}
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	p, err := s.player(playerID)
	if err != nil {
		return err
	}
	c, err := s.company(companyID)
	if err != nil {
		return err
	}
	if quantity > 0 && c.BankPoolShares < quantity {
		return fmt.Errorf("%w: bank pool has %s of %s, cannot buy %d", ErrConflict, shareCount(c.BankPoolShares), c.Name, quantity)
	}
	if quantity < 0 && p.Shares[c.ID] < -quantity {
		return fmt.Errorf("%w: %s holds %s of %s, cannot sell %d", ErrConflict, p.Name, shareCount(p.Shares[c.ID]), c.Name, -quantity)
	}

	cost := c.CurrentPrice * quantity
	p.Money -= cost
	p.Shares[c.ID] += quantity
	c.BankPoolShares -= quantity
	if quantity > 0 {
		s.Append("%s buys %s of %s from the bank pool for %d", p.Name, shareCount(quantity), c.Name, cost)
	} else {
		s.Append("%s sells %s of %s to the bank pool for %d", p.Name, shareCount(-quantity), c.Name, -cost)
	}
	return nil
}

// BuyIPO buys shares from the IPO pool at par. Selling into the IPO is not a
// thing, so quantity must be positive.
func (s *Session) BuyIPO(playerID, companyID string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	p, err := s.player(playerID)
	if err != nil {
		return err
	}
	c, err := s.company(companyID)
	if err != nil {
		return err
	}
	if c.IPOShares < quantity {
		return fmt.Errorf("%w: IPO has %s of %s, cannot buy %d", ErrConflict, shareCount(c.IPOShares), c.Name, quantity)
	}

	cost := c.ParPrice * quantity
	p.Money -= cost
	p.Shares[c.ID] += quantity
	c.IPOShares -= quantity
	s.Append("%s buys %s of %s from the IPO for %d", p.Name, shareCount(quantity), c.Name, cost)
	return nil
}

// PayDividend pays perShare to every shareholder. Bank pool shares pay the
// company itself.
func (s *Session) PayDividend(companyID string, perShare int64) error {
	if err := checkAmount("per-share amount", perShare); err != nil {
		return err
	}
	c, err := s.company(companyID)
	if err != nil {
		return err
	}
	for _, p := range s.Players {
		p.Money += perShare * p.Shares[c.ID]
	}
	c.Money += perShare * c.BankPoolShares
	c.LastPayPerShare = perShare
	s.Append("%s pays %d per share", c.Name, perShare)
	return nil
}

// RetainEarnings keeps the whole payout in the treasury.
func (s *Session) RetainEarnings(companyID string, perShare int64) error {
	if err := checkAmount("per-share amount", perShare); err != nil {
		return err
	}
	c, err := s.company(companyID)
	if err != nil {
		return err
	}
	retained := perShare * SharesPerCompany
	c.Money += retained
	c.LastPayPerShare = perShare
	s.Append("%s retains %d", c.Name, retained)
	return nil
}

func (s *Session) SetCompanyPrice(companyID string, price int64) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be > 0", ErrValidation)
	}
	if err := checkAmount("price", price); err != nil {
		return err
	}
	c, err := s.company(companyID)
	if err != nil {
		return err
	}
	old := c.CurrentPrice
	c.CurrentPrice = price
	s.Append("%s price changes from %d to %d", c.Name, old, price)
	return nil
}

func (s *Session) AdjustCompanyMoney(companyID string, delta int64) error {
	if err := checkAmount("amount", delta); err != nil {
		return err
	}
	c, err := s.company(companyID)
	if err != nil {
		return err
	}
	c.Money += delta
	s.Append("%s money adjusted by %+d", c.Name, delta)
	return nil
}

func (s *Session) AdjustPlayerMoney(playerID string, delta int64) error {
	if err := checkAmount("amount", delta); err != nil {
		return err
	}
	p, err := s.player(playerID)
	if err != nil {
		return err
	}
	p.Money += delta
	s.Append("%s money adjusted by %+d", p.Name, delta)
	return nil
}

// PayPrivates credits each open, owned private's revenue to its owner.
func (s *Session) PayPrivates() error {
	type payout struct {
		private *Private
		owner   Entity
	}
	var payouts []payout
	for _, id := range s.PrivateIDs() {
		pr := s.Privates[id]
		if pr.IsClosed || pr.Owner == "" {
			continue
		}
		owner, err := s.entity(pr.Owner)
		if err != nil {
			return fmt.Errorf("owner of %s: %w", pr.Name, err)
		}
		payouts = append(payouts, payout{private: pr, owner: owner})
	}

	if len(payouts) == 0 {
		s.Append("No privates pay revenue")
		return nil
	}
	for _, po := range payouts {
		po.owner.Credit(po.private.Revenue)
		s.Append("%s pays %d to %s", po.private.Name, po.private.Revenue, po.owner.DisplayName())
	}
	return nil
}

// SellPrivate moves a private to target for price. The previous owner, if
// any, receives the price.
func (s *Session) SellPrivate(privateID, targetID string, price int64) error {
	if price < 0 {
		return fmt.Errorf("%w: price must be >= 0", ErrValidation)
	}
	if err := checkAmount("price", price); err != nil {
		return err
	}
	pr, err := s.private(privateID)
	if err != nil {
		return err
	}
	if pr.IsClosed {
		return fmt.Errorf("%w: %s is closed", ErrConflict, pr.Name)
	}
	target, err := s.entity(targetID)
	if err != nil {
		return err
	}
	if pr.Owner == target.EntityID() {
		return fmt.Errorf("%w: %s already owns %s", ErrConflict, target.DisplayName(), pr.Name)
	}
	var seller Entity
	if pr.Owner != "" {
		if seller, err = s.entity(pr.Owner); err != nil {
			return fmt.Errorf("owner of %s: %w", pr.Name, err)
		}
	}

	target.Credit(-price)
	pr.Owner = target.EntityID()
	if seller != nil {
		seller.Credit(price)
		s.Append("%s sells %s to %s for %d", seller.DisplayName(), pr.Name, target.DisplayName(), price)
		return nil
	}
	s.Append("%s buys %s for %d", target.DisplayName(), pr.Name, price)
	return nil
}

// ClosePrivate is irreversible.
func (s *Session) ClosePrivate(privateID string) error {
	pr, err := s.private(privateID)
	if err != nil {
		return err
	}
	if pr.IsClosed {
		return fmt.Errorf("%w: %s is already closed", ErrConflict, pr.Name)
	}
	pr.IsClosed = true
	s.Append("%s closes", pr.Name)
	return nil
}

// Transfer moves amount from source to target. It is zero-sum unless one
// side is the bank.
func (s *Session) Transfer(sourceID, targetID string, amount int64) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrValidation)
	}
	if err := checkAmount("amount", amount); err != nil {
		return err
	}
	if sourceID == targetID {
		return fmt.Errorf("%w: source and target are the same", ErrValidation)
	}
	source, err := s.entity(sourceID)
	if err != nil {
		return err
	}
	target, err := s.entity(targetID)
	if err != nil {
		return err
	}
	source.Credit(-amount)
	target.Credit(amount)
	s.Append("%s pays %d to %s", source.DisplayName(), amount, target.DisplayName())
	return nil
}
