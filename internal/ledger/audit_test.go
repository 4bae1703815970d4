package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditPassesFreshAndPlayedSessions(t *testing.T) {
	require.NoError(t, Audit(NewSession()))

	s := table(t, "Alice")
	require.NoError(t, s.BuyIPO("p1", "c1", 4))
	require.NoError(t, s.TradeWithBank("p1", "c1", -1))
	require.NoError(t, s.SellPrivate("sv", "c1", 20))
	require.NoError(t, Audit(s))
}

func TestAuditReportsEveryViolation(t *testing.T) {
	s := table(t, "Alice")
	s.Companies["c1"].IPOShares = 12
	s.Players["p1"].Shares["c7"] = -1
	s.Privates["bo"].Owner = "p42"

	err := Audit(s)
	require.ErrorIs(t, err, ErrInvariant)
	msg := err.Error()
	assert.Contains(t, msg, "12 shares in circulation")
	assert.Contains(t, msg, `unknown company "c7"`)
	assert.Contains(t, msg, "negative holding")
	assert.Contains(t, msg, `owner "p42" does not resolve`)
}

func TestAuditFlagsNegativePool(t *testing.T) {
	s := table(t, "Alice")
	s.Companies["c1"].BankPoolShares = -1
	s.Companies["c1"].IPOShares = 11

	err := Audit(s)
	require.ErrorIs(t, err, ErrInvariant)
	assert.Contains(t, err.Error(), "negative pool")
}
