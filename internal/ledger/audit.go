package ledger

import (
	"errors"
	"fmt"
)

// Audit checks the invariants that must hold after every commit and returns
// all violations joined, or nil.
func Audit(s *Session) error {
	var errs []error
	for _, id := range s.CompanyIDs() {
		c := s.Companies[id]
		if c.IPOShares < 0 || c.BankPoolShares < 0 {
			errs = append(errs, fmt.Errorf("%s: negative pool (ipo=%d bank=%d)", c.Name, c.IPOShares, c.BankPoolShares))
		}
		total := c.IPOShares + c.BankPoolShares + s.HeldShares(id)
		if total != SharesPerCompany {
			errs = append(errs, fmt.Errorf("%s: %d shares in circulation, want %d", c.Name, total, SharesPerCompany))
		}
	}
	for _, id := range s.PlayerIDs() {
		p := s.Players[id]
		for companyID, n := range p.Shares {
			if _, ok := s.Companies[companyID]; !ok {
				errs = append(errs, fmt.Errorf("%s: holds shares of unknown company %q", p.Name, companyID))
			}
			if n < 0 {
				errs = append(errs, fmt.Errorf("%s: negative holding %d in %q", p.Name, n, companyID))
			}
		}
	}
	for _, id := range s.PrivateIDs() {
		pr := s.Privates[id]
		if pr.Owner == "" {
			continue
		}
		if _, ok := s.Resolve(pr.Owner); !ok {
			errs = append(errs, fmt.Errorf("%s: owner %q does not resolve", pr.Name, pr.Owner))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvariant, errors.Join(errs...))
}
