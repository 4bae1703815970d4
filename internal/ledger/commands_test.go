package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandBuildsTypedCommands(t *testing.T) {
	cases := []struct {
		action string
		raw    map[string]string
		want   Command
	}{
		{"new-game", nil, NewGame{}},
		{"add-player", map[string]string{"name": " Alice "}, AddPlayer{Name: "Alice"}},
		{"initial-money", map[string]string{"amount": "600"}, InitialMoney{Amount: 600}},
		{"par-company", map[string]string{"name": "B&O", "price": "100"}, ParCompany{Name: "B&O", Price: 100}},
		{"share-action", map[string]string{"player": "p1", "company": "c1", "quantity": "-2"}, ShareAction{Player: "p1", Company: "c1", Quantity: -2}},
		{"buy-ipo", map[string]string{"player": "p1", "company": "c1", "quantity": "3"}, BuyIPO{Player: "p1", Company: "c1", Quantity: 3}},
		{"update-company-money", map[string]string{"company": "c1", "amount": "-15"}, UpdateCompanyMoney{Company: "c1", Amount: -15}},
		{"update-player-money", map[string]string{"player": "p2", "amount": "40"}, UpdatePlayerMoney{Player: "p2", Amount: 40}},
		{"pay-per-share", map[string]string{"company": "c1", "amount": "10"}, PayPerShare{Company: "c1", Amount: 10}},
		{"pay-per-share", map[string]string{"company": "c1", "amount": "10", "retains": "true"}, PayPerShare{Company: "c1", Amount: 10, Retains: true}},
		{"update-company-price", map[string]string{"company": "c1", "price": "82"}, UpdateCompanyPrice{Company: "c1", Price: 82}},
		{"pay-privates", nil, PayPrivates{}},
		{"sell-private", map[string]string{"key": "sv", "target": "p1", "price": "0"}, SellPrivate{Key: "sv", Target: "p1", Price: 0}},
		{"share-action", map[string]string{"player": "p1", "company": "c1", "quantity": "-10"}, ShareAction{Player: "p1", Company: "c1", Quantity: -10}},
		{"par-company", map[string]string{"name": "PRR", "price": "1000000000"}, ParCompany{Name: "PRR", Price: MaxAmount}},
		{"close-private", map[string]string{"key": "sv"}, ClosePrivate{Key: "sv"}},
		{"transfer", map[string]string{"source": "bank", "target": "p1", "amount": "50"}, Transfer{Source: "bank", Target: "p1", Amount: 50}},
	}
	for _, tc := range cases {
		got, err := ParseCommand(tc.action, tc.raw)
		require.NoError(t, err, tc.action)
		assert.Equal(t, tc.want, got, tc.action)
		assert.Equal(t, Action(tc.action), got.Action())
	}
}

func TestParseCommandCoversEveryAction(t *testing.T) {
	seen := map[Action]bool{}
	for _, a := range Actions {
		_, err := ParseCommand(string(a), map[string]string{})
		if err == nil {
			seen[a] = true
			continue
		}
		require.ErrorIs(t, err, ErrValidation)
		assert.NotContains(t, err.Error(), "unknown action", string(a))
	}
	assert.True(t, seen[ActionNewGame])
	assert.True(t, seen[ActionPayPrivates])
}

func TestParseCommandValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		action string
		raw    map[string]string
	}{
		{"unknown action", "fly", nil},
		{"blank name", "add-player", map[string]string{"name": "  "}},
		{"zero initial money", "initial-money", map[string]string{"amount": "0"}},
		{"non-numeric amount", "initial-money", map[string]string{"amount": "12.5"}},
		{"zero par", "par-company", map[string]string{"name": "B&O", "price": "0"}},
		{"negative par", "par-company", map[string]string{"name": "B&O", "price": "-1"}},
		{"zero trade", "share-action", map[string]string{"player": "p1", "company": "c1", "quantity": "0"}},
		{"negative ipo", "buy-ipo", map[string]string{"player": "p1", "company": "c1", "quantity": "-1"}},
		{"zero adjustment", "update-player-money", map[string]string{"player": "p1", "amount": "0"}},
		{"zero dividend", "pay-per-share", map[string]string{"company": "c1", "amount": "0"}},
		{"bad retains", "pay-per-share", map[string]string{"company": "c1", "amount": "5", "retains": "maybe"}},
		{"missing price", "sell-private", map[string]string{"key": "sv", "target": "p1"}},
		{"zero transfer", "transfer", map[string]string{"source": "p1", "target": "p2", "amount": "0"}},
		{"missing target", "transfer", map[string]string{"source": "p1", "amount": "5"}},
		{"par beyond cap", "par-company", map[string]string{"name": "PRR", "price": "922337203685477581"}},
		{"min int trade", "share-action", map[string]string{"player": "p1", "company": "c1", "quantity": "-9223372036854775808"}},
		{"trade larger than issue", "share-action", map[string]string{"player": "p1", "company": "c1", "quantity": "11"}},
		{"ipo larger than issue", "buy-ipo", map[string]string{"player": "p1", "company": "c1", "quantity": "11"}},
		{"dividend beyond cap", "pay-per-share", map[string]string{"company": "c1", "amount": "1000000001"}},
		{"adjustment beyond cap", "update-company-money", map[string]string{"company": "c1", "amount": "-1000000001"}},
	}
	for _, tc := range cases {
		_, err := ParseCommand(tc.action, tc.raw)
		assert.ErrorIs(t, err, ErrValidation, tc.name)
	}
}
