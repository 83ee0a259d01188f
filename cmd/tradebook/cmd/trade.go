package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Record and inspect trades",
	Long: `Record trades and their exits. Output is Org-mode so it can be pasted
into a notes file.

Examples:
  tradebook trade add AAPL --entry 185.20 --stop 181 --shares 50
  tradebook trade add SPY --type options --strike 500 --exp 2024-06-21 --option call --entry 4.10 --stop 2 --shares 2
  tradebook trade trim <id> --shares 25 --price 190 --date 2024-03-08
  tradebook trade close <id> --price 192.50`,
}

var tradeAddCmd = &cobra.Command{
	Use:   "add <ticker>",
	Short: "Open a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradeAdd,
}

var tradeTrimCmd = &cobra.Command{
	Use:   "trim <trade-id>",
	Short: "Partially close a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradeTrim,
}

var tradeCloseCmd = &cobra.Command{
	Use:   "close <trade-id>",
	Short: "Close what is left of a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradeClose,
}

var tradeDeleteCmd = &cobra.Command{
	Use:   "delete <trade-id>",
	Short: "Delete a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradeDelete,
}

var tradeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trades",
	Args:  cobra.NoArgs,
	RunE:  runTradeList,
}

var tradeShowCmd = &cobra.Command{
	Use:   "show <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradeShow,
}

var (
	tradeType   string
	tradeEntry  float64
	tradeStop   float64
	tradeTarget float64
	tradeShares float64
	tradeStrike float64
	tradeExp    string
	tradeOption string
	tradeRisk   float64
	tradeNotes  string
	tradeWhen   string

	exitDate   string
	exitPrice  float64
	exitShares float64

	listOpen bool
)

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(tradeAddCmd, tradeTrimCmd, tradeCloseCmd, tradeDeleteCmd, tradeListCmd, tradeShowCmd)

	f := tradeAddCmd.Flags()
	f.StringVar(&tradeType, "type", "stock", "asset type: stock or options")
	f.Float64Var(&tradeEntry, "entry", 0, "entry price (required)")
	f.Float64Var(&tradeStop, "stop", 0, "stop price")
	f.Float64Var(&tradeTarget, "target", 0, "target price")
	f.Float64Var(&tradeShares, "shares", 0, "shares or contracts (required)")
	f.Float64Var(&tradeStrike, "strike", 0, "option strike")
	f.StringVar(&tradeExp, "exp", "", "option expiration (YYYY-MM-DD)")
	f.StringVar(&tradeOption, "option", "", "option type: call or put")
	f.Float64Var(&tradeRisk, "risk", 0, "dollars at risk before the option multiplier (default (entry-stop) x shares)")
	f.StringVar(&tradeNotes, "notes", "", "free-form notes")
	f.StringVar(&tradeWhen, "at", "", "entry time, YYYY-MM-DD or YYYY-MM-DDTHH:MM (default now)")
	_ = tradeAddCmd.MarkFlagRequired("entry")
	_ = tradeAddCmd.MarkFlagRequired("shares")

	for _, c := range []*cobra.Command{tradeTrimCmd, tradeCloseCmd} {
		c.Flags().StringVar(&exitDate, "date", "", "exit date (default today)")
		c.Flags().Float64Var(&exitPrice, "price", 0, "exit price (required)")
		_ = c.MarkFlagRequired("price")
	}
	tradeTrimCmd.Flags().Float64Var(&exitShares, "shares", 0, "shares to sell (required)")
	_ = tradeTrimCmd.MarkFlagRequired("shares")

	tradeListCmd.Flags().BoolVar(&listOpen, "open", false, "only open positions")
}

func runTradeAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	at, ok := market.ParseAssetType(tradeType)
	if !ok {
		return fmt.Errorf("unknown asset type %q", tradeType)
	}
	when, err := parseWhen(tradeWhen, a.MarketCalendar(), time.Now())
	if err != nil {
		return err
	}
	t := journal.Trade{
		Ticker:    strings.ToUpper(args[0]),
		AssetType: at,
		Entry:     tradeEntry,
		Stop:      tradeStop,
		Target:    optionalFloat(cmd, "target", tradeTarget),
		Shares:    tradeShares,
		EntryTime: when,
		Notes:     tradeNotes,
	}
	if at == market.Options {
		t.Strike = optionalFloat(cmd, "strike", tradeStrike)
		t.Expiration = tradeExp
		ot, ok := market.ParseOptionType(tradeOption)
		if !ok {
			return fmt.Errorf("--option must be call or put")
		}
		t.OptionType = ot
	}
	t.RiskDollars = tradeRisk
	if !cmd.Flags().Changed("risk") && tradeStop > 0 {
		t.RiskDollars = (tradeEntry - tradeStop) * tradeShares
	}

	t, err = a.Ledger.AddTrade(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
	return nil
}

func exitDay(cal market.Calendar) (string, error) {
	if exitDate == "" {
		return cal.Today(time.Now()), nil
	}
	if _, err := market.ParseDate(exitDate); err != nil {
		return "", err
	}
	return exitDate, nil
}

func runTradeTrim(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := exitDay(a.MarketCalendar())
	if err != nil {
		return err
	}
	t, err := a.Ledger.TrimTrade(ctx, args[0], date, exitShares, exitPrice)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
	return nil
}

func runTradeClose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := exitDay(a.MarketCalendar())
	if err != nil {
		return err
	}
	t, err := a.Ledger.CloseTrade(ctx, args[0], date, exitPrice)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
	return nil
}

func runTradeDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Ledger.DeleteTrade(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted trade %s\n", args[0])
	return nil
}

func runTradeList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	trades, err := a.Ledger.ListTrades(ctx)
	if err != nil {
		return err
	}
	if listOpen {
		open := trades[:0]
		for _, t := range trades {
			if t.IsOpen() {
				open = append(open, t)
			}
		}
		trades = open
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(trades))
	return nil
}

func runTradeShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.Ledger.GetTrade(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(t))
	return nil
}
