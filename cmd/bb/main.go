package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cl "boardbank/internal/cli"
	"boardbank/internal/config"
	"boardbank/internal/ledger"
	"boardbank/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

type options struct {
	apiBase    string
	idemKey    string
	outboxPath string
	noQueue    bool
}

func main() {
	cfg := config.LoadCLI()
	opts := &options{apiBase: cfg.APIBaseURL, outboxPath: cfg.OutboxPath}

	root := &cobra.Command{
		Use:          "bb",
		Short:        "Boardbank: the bank for 18xx table sessions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.apiBase, "api", opts.apiBase, "boardbank api base url")
	root.PersistentFlags().StringVar(&opts.idemKey, "idempotency-key", "", "reuse a key to make a retried action safe")
	root.PersistentFlags().StringVar(&opts.outboxPath, "outbox", opts.outboxPath, "file holding actions queued while the api is unreachable")
	root.PersistentFlags().BoolVar(&opts.noQueue, "no-queue", false, "fail instead of queueing when the api is unreachable")

	root.AddCommand(
		newNewGameCmd(opts),
		newPlayerCmd(opts),
		newCompanyCmd(opts),
		newSharesCmd(opts),
		newPrivateCmd(opts),
		newTransferCmd(opts),
		newStateCmd(opts),
		newLogCmd(opts),
		newWatchCmd(opts),
		newSyncCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(opts *options) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(opts.apiBase), "/"))
}

func (o *options) outbox() (*syncq.Queue, error) {
	path := strings.TrimSpace(o.outboxPath)
	if path == "" {
		var err error
		if path, err = syncq.DefaultPath(); err != nil {
			return nil, fmt.Errorf("locate outbox: %w", err)
		}
	}
	return syncq.New(path), nil
}

func (o *options) key() string {
	if k := strings.TrimSpace(o.idemKey); k != "" {
		return k
	}
	return uuid.NewString()
}

// runAction wraps one mutating call with a timeout and prints what it logged.
func runAction(cmd *cobra.Command, opts *options, call func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	client := newClient(opts)
	if !opts.noQueue {
		q, err := opts.outbox()
		if err != nil {
			return err
		}
		client.Outbox = q
	}
	idem := opts.key()
	result, err := call(ctx, client, idem)
	if errors.Is(err, cl.ErrQueued) {
		printWarn(fmt.Sprintf("API unreachable, queued as %s. Run `bb sync` once it is back.", idem))
		return nil
	}
	if err != nil {
		return err
	}
	renderResult(result)
	return nil
}

func newNewGameCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new-game",
		Short: "Archive the current session and start a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.NewGame(ctx, idem)
			})
		},
	}
}

func newPlayerCmd(opts *options) *cobra.Command {
	player := &cobra.Command{Use: "player", Short: "Player actions"}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a player",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.AddPlayer(ctx, name, idem)
			})
		},
	}

	money := &cobra.Command{
		Use:     "money <player> <amount>",
		Short:   "Adjust a player's cash by a signed amount",
		Example: "  bb player money p1 100\n  bb player money p1 -- -50",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1], "amount")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.PlayerMoney(ctx, args[0], amount, idem)
			})
		},
	}

	initial := &cobra.Command{
		Use:   "initial-money <amount>",
		Short: "Set every player's cash to amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0], "amount")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.InitialMoney(ctx, amount, idem)
			})
		},
	}

	player.AddCommand(add, money, initial)
	return player
}

func newCompanyCmd(opts *options) *cobra.Command {
	company := &cobra.Command{Use: "company", Short: "Company actions"}

	par := &cobra.Command{
		Use:   "par <name> <par-price>",
		Short: "Float a company at a par price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parseAmount(args[1], "par price")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.ParCompany(ctx, args[0], price, idem)
			})
		},
	}

	money := &cobra.Command{
		Use:     "money <company> <amount>",
		Short:   "Adjust a company's treasury by a signed amount",
		Example: "  bb company money c1 -- -80",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1], "amount")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.CompanyMoney(ctx, args[0], amount, idem)
			})
		},
	}

	price := &cobra.Command{
		Use:   "price <company> <price>",
		Short: "Move a company's share price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseAmount(args[1], "price")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.CompanyPrice(ctx, args[0], p, idem)
			})
		},
	}

	var retain bool
	pay := &cobra.Command{
		Use:   "pay <company> <per-share>",
		Short: "Pay a dividend per share, or retain it with --retain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1], "per-share amount")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.PayPerShare(ctx, args[0], amount, retain, idem)
			})
		},
	}
	pay.Flags().BoolVar(&retain, "retain", false, "keep the full amount in the company treasury")

	company.AddCommand(par, money, price, pay)
	return company
}

func newSharesCmd(opts *options) *cobra.Command {
	shares := &cobra.Command{Use: "shares", Short: "Share trading"}

	trade := &cobra.Command{
		Use:     "trade <player> <company> <quantity>",
		Short:   "Buy from (positive) or sell to (negative) the bank pool at the current price",
		Example: "  bb shares trade p1 c1 2\n  bb shares trade p1 c1 -- -1",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseAmount(args[2], "quantity")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.TradeShares(ctx, args[0], args[1], qty, idem)
			})
		},
	}

	ipo := &cobra.Command{
		Use:   "ipo <player> <company> <quantity>",
		Short: "Buy shares from the IPO at par",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseAmount(args[2], "quantity")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.BuyIPO(ctx, args[0], args[1], qty, idem)
			})
		},
	}

	shares.AddCommand(trade, ipo)
	return shares
}

func newPrivateCmd(opts *options) *cobra.Command {
	private := &cobra.Command{Use: "private", Short: "Private company actions"}

	pay := &cobra.Command{
		Use:   "pay",
		Short: "Pay revenue on every owned, open private",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.PayPrivates(ctx, idem)
			})
		},
	}

	sell := &cobra.Command{
		Use:   "sell <key> <buyer> <price>",
		Short: "Sell a private to a player or company",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parseAmount(args[2], "price")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.SellPrivate(ctx, args[0], args[1], price, idem)
			})
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <key>",
		Short: "Close a private for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.ClosePrivate(ctx, args[0], idem)
			})
		},
	}

	private.AddCommand(pay, sell, closeCmd)
	return private
}

func newTransferCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "transfer <source> <target> <amount>",
		Short:   "Move cash between players, companies and the bank",
		Example: "  bb transfer p1 c1 50\n  bb transfer bank p2 100",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2], "amount")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, func(ctx context.Context, c *cl.Client, idem string) (ledger.Result, error) {
				return c.Transfer(ctx, args[0], args[1], amount, idem)
			})
		},
	}
}

func newStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show players, companies and privates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			s, err := newClient(opts).State(ctx)
			if err != nil {
				return err
			}
			renderState(&s)
			return nil
		},
	}
}

func newLogCmd(opts *options) *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the session log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			entries, err := newClient(opts).Log(ctx, tail)
			if err != nil {
				return err
			}
			renderLog(entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "only show the last n entries")
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the session live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printInfo("Watching " + opts.apiBase + " (ctrl-c to stop)")
			seen := 0
			err := newClient(opts).Watch(ctx, func(msg ledger.Message) error {
				seen = renderMessage(msg, seen)
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func newSyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay actions queued while the api was unreachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.outbox()
			if err != nil {
				return err
			}
			queued, err := q.Load()
			if err != nil {
				return err
			}
			if len(queued) == 0 {
				printInfo("Outbox is empty.")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*requestTimeout)
			defer cancel()
			report, err := newClient(opts).Sync(ctx, q)
			for _, r := range report.Rejected {
				printWarn(fmt.Sprintf("Dropped %s (%s): %v", r.Entry.Action, r.Entry.IdempotencyKey, r.Err))
			}
			printSuccess(fmt.Sprintf("Sync: applied=%d already-applied=%d rejected=%d remaining=%d",
				report.Applied, report.Duplicate, len(report.Rejected), report.Remaining))
			return err
		},
	}
}

func parseAmount(raw, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number, got %q", label, raw)
	}
	return v, nil
}
