package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/stats"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [YYYY-MM-DD]",
	Short: "Show the current balance, or the closing balance of a day",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBalance,
}

var equityCmd = &cobra.Command{
	Use:   "equity",
	Short: "Print the daily equity curve",
	Args:  cobra.NoArgs,
	RunE:  runEquity,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show performance statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Show daily, weekly or monthly P&L",
	Long: `P&L excludes deposits and withdrawals and is only reported for days
whose closing balance and the previous trading day's are both known.

Examples:
  tradebook calendar day 2024-03-08
  tradebook calendar week 2024-03-09
  tradebook calendar month 2024 3`,
}

var calendarDayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "P&L for one trading day",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCalendarDay,
}

var calendarWeekCmd = &cobra.Command{
	Use:   "week <saturday>",
	Short: "P&L for the Monday-Friday week ending on a Saturday",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalendarWeek,
}

var calendarMonthCmd = &cobra.Command{
	Use:   "month <year> <month>",
	Short: "Day-by-day P&L grid for a month",
	Args:  cobra.ExactArgs(2),
	RunE:  runCalendarMonth,
}

var (
	rangeFrom string
	rangeTo   string
)

func init() {
	rootCmd.AddCommand(balanceCmd, equityCmd, statsCmd, calendarCmd)
	calendarCmd.AddCommand(calendarDayCmd, calendarWeekCmd, calendarMonthCmd)

	for _, c := range []*cobra.Command{equityCmd, statsCmd} {
		c.Flags().StringVar(&rangeFrom, "from", "", "first date (YYYY-MM-DD)")
		c.Flags().StringVar(&rangeTo, "to", "", "last date (YYYY-MM-DD)")
	}
}

func pnlOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return journal.Dollars(*v)
}

func pctOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func ratioOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		if _, err := market.ParseDate(args[0]); err != nil {
			return err
		}
		p, ok := a.Equity.PointOnDate(ctx, args[0])
		if !ok {
			fmt.Fprintf(out, "%s: no data\n", args[0])
			return nil
		}
		fmt.Fprintf(out, "%s  %s", p.Date, journal.Dollars(p.Balance))
		if p.Incomplete {
			fmt.Fprint(out, "  (missing prices)")
		}
		fmt.Fprintln(out)
		return nil
	}

	sum, err := a.Refresh(ctx)
	if err != nil {
		return err
	}
	r := sum.Balance
	fmt.Fprintf(out, "Balance:     %s\n", journal.Dollars(r.Balance))
	fmt.Fprintf(out, "Realized:    %s\n", journal.Dollars(r.RealizedBalance))
	fmt.Fprintf(out, "Unrealized:  %s\n", journal.Dollars(r.UnrealizedPnL))
	if len(r.MissingTickers) > 0 {
		fmt.Fprintf(out, "No price for: %s\n", strings.Join(r.MissingTickers, ", "))
	}
	return nil
}

func runEquity(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	pts, err := a.Equity.Build(ctx, rangeFrom, rangeTo)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s  %14s  %12s  %12s\n", "DATE", "BALANCE", "DAY P&L", "CASH")
	for _, p := range pts {
		mark := ""
		if p.Incomplete {
			mark = " *"
		}
		fmt.Fprintf(out, "%-10s  %14s  %12s  %12s%s\n", p.Date,
			journal.Dollars(p.Balance), journal.Dollars(p.DayPnL), journal.Dollars(p.CashFlow), mark)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.StatsBetween(ctx, rangeFrom, rangeTo)
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), rec)
	return nil
}

func printStats(out io.Writer, rec stats.Record) {
	fmt.Fprintf(out, "Trades:          %d (%d W / %d L)\n", rec.WinsLosses.Total, rec.WinsLosses.Wins, rec.WinsLosses.Losses)
	fmt.Fprintf(out, "Win rate:        %s\n", pctOrDash(rec.WinRate))
	fmt.Fprintf(out, "Total P&L:       %s\n", journal.Dollars(rec.TotalPnL))
	fmt.Fprintf(out, "Avg win:         %s\n", pnlOrDash(rec.AvgWin))
	fmt.Fprintf(out, "Avg loss:        %s\n", pnlOrDash(rec.AvgLoss))
	fmt.Fprintf(out, "Profit factor:   %s\n", ratioOrDash(rec.ProfitFactor))
	fmt.Fprintf(out, "Expectancy:      %s\n", pnlOrDash(rec.Expectancy))
	fmt.Fprintf(out, "Largest win:     %s\n", pnlOrDash(rec.LargestWin))
	fmt.Fprintf(out, "Largest loss:    %s\n", pnlOrDash(rec.LargestLoss))
	hold := "-"
	if rec.AvgHoldTime != nil {
		hold = fmt.Sprintf("%.1f days", rec.AvgHoldTime.Hours()/24)
	}
	fmt.Fprintf(out, "Avg hold time:   %s\n", hold)
}

func runCalendarDay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := dateOrToday(args, a.MarketCalendar())
	if err != nil {
		return err
	}
	var pnl *float64
	if v, ok := a.Calendar.DailyPnL(ctx, date); ok {
		pnl = &v
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", date, pnlOrDash(pnl))
	return nil
}

func runCalendarWeek(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	v, ok, err := a.Calendar.WeeklyPnL(ctx, args[0])
	if err != nil {
		return err
	}
	var pnl *float64
	if ok {
		pnl = &v
	}
	fmt.Fprintf(cmd.OutOrStdout(), "week ending %s  %s\n", args[0], pnlOrDash(pnl))
	return nil
}

func runCalendarMonth(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("year: %w", err)
	}
	month, err := strconv.Atoi(args[1])
	if err != nil || month < 1 || month > 12 {
		return fmt.Errorf("month must be 1-12, got %q", args[1])
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.Calendar.Month(ctx, year, time.Month(month))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d\n", time.Month(m.Month), m.Year)
	for _, d := range m.Days {
		if !d.Trading {
			continue
		}
		fmt.Fprintf(out, "  %s %s  %s\n", d.Date, market.Weekday(d.Date).String()[:3], pnlOrDash(d.PnL))
	}
	for _, w := range m.Weeks {
		fmt.Fprintf(out, "  week ending %s  %s\n", w.Saturday, pnlOrDash(w.PnL))
	}
	fmt.Fprintf(out, "  total  %s\n", pnlOrDash(m.Total))
	return nil
}
