package main

import (
	"fmt"
	"sort"
	"strings"

	"boardbank/internal/ledger"

	"github.com/Rhymond/go-money"
	"github.com/fatih/color"
)

// Game money has no minor unit.
var gameCurrency = money.AddCurrency("BBK", "$", "$1", ".", ",", 0)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func renderResult(r ledger.Result) {
	if r.Archive != "" {
		printInfo("Previous session archived as " + r.Archive)
	}
	if len(r.Entries) == 0 {
		printSuccess(string(r.Action) + " done.")
		return
	}
	for _, e := range r.Entries {
		printSuccess(e)
	}
}

func renderState(s *ledger.Session) {
	accent.Println("\n== PLAYERS ==")
	if len(s.Players) == 0 {
		printInfo("No players yet.")
	} else {
		fmt.Printf("%-5s %-20s %12s  %s\n", "ID", "NAME", "CASH", "SHARES")
		for _, id := range s.PlayerIDs() {
			p := s.Players[id]
			fmt.Printf("%-5s %-20s %12s  %s\n", p.ID, truncate(p.Name, 20), colorizeAmount(p.Money), holdings(s, p))
		}
	}

	accent.Println("\n== COMPANIES ==")
	if len(s.Companies) == 0 {
		printInfo("No companies yet.")
	} else {
		fmt.Printf("%-5s %-16s %12s %8s %8s %5s %5s %8s\n", "ID", "NAME", "TREASURY", "PAR", "PRICE", "IPO", "POOL", "LAST")
		for _, id := range s.CompanyIDs() {
			c := s.Companies[id]
			fmt.Printf("%-5s %-16s %12s %8s %8s %5d %5d %8s\n",
				c.ID,
				truncate(c.Name, 16),
				colorizeAmount(c.Money),
				formatAmount(c.ParPrice),
				formatAmount(c.CurrentPrice),
				c.IPOShares,
				c.BankPoolShares,
				formatAmount(c.LastPayPerShare),
			)
		}
	}

	accent.Println("\n== PRIVATES ==")
	fmt.Printf("%-4s %-26s %6s %8s  %-16s %s\n", "KEY", "NAME", "COST", "REVENUE", "OWNER", "STATUS")
	for _, id := range s.PrivateIDs() {
		pr := s.Privates[id]
		status := success.Sprint("open")
		if pr.IsClosed {
			status = danger.Sprint("closed")
		}
		fmt.Printf("%-4s %-26s %6s %8s  %-16s %s\n",
			pr.ID,
			truncate(pr.Name, 26),
			formatAmount(pr.Cost),
			formatAmount(pr.Revenue),
			truncate(ownerName(s, pr.Owner), 16),
			status,
		)
	}
	fmt.Println()
}

func renderLog(entries []string) {
	if len(entries) == 0 {
		printInfo("Log is empty.")
		return
	}
	for _, e := range entries {
		fmt.Println(e)
	}
}

// renderMessage prints log lines the watcher has not seen yet and returns the
// new high-water mark.
func renderMessage(msg ledger.Message, seen int) int {
	if msg.Data == nil {
		return seen
	}
	log := msg.Data.Log
	if msg.Type == "initial" {
		accent.Printf("== %d players, %d companies, %d log entries ==\n", len(msg.Data.Players), len(msg.Data.Companies), len(log))
		for _, e := range tail(log, 10) {
			printInfo(e)
		}
		return len(log)
	}
	if len(log) < seen {
		printWarn("-- new game --")
		seen = 0
	}
	for _, e := range log[seen:] {
		printSuccess(e)
	}
	return len(log)
}

func holdings(s *ledger.Session, p *ledger.Player) string {
	ids := make([]string, 0, len(p.Shares))
	for id, n := range p.Shares {
		if n != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "-"
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		if c, ok := s.Companies[id]; ok {
			name = c.Name
		}
		parts = append(parts, fmt.Sprintf("%s×%d", name, p.Shares[id]))
	}
	return strings.Join(parts, " ")
}

func ownerName(s *ledger.Session, id string) string {
	if id == "" {
		return "-"
	}
	if e, ok := s.Resolve(id); ok {
		return e.DisplayName()
	}
	return id
}

func formatAmount(v int64) string {
	return money.New(v, gameCurrency.Code).Display()
}

func colorizeAmount(v int64) string {
	text := formatAmount(v)
	if v < 0 {
		return danger.Sprint(text)
	}
	return neutral.Sprint(text)
}

func tail(entries []string, n int) []string {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
