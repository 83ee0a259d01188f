package cmd

import (
	"fmt"

	"github.com/rustyeddy/tradebook/journal"
	"github.com/spf13/cobra"
)

var eodCmd = &cobra.Command{
	Use:   "eod",
	Short: "Manage end-of-day balance snapshots",
}

var eodCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record today's closing balance from live prices",
	Long: `Capture saves today's balance as the day's snapshot. It does nothing
before the session close, on non-trading days, or when a complete
snapshot already exists.`,
	Args: cobra.NoArgs,
	RunE: runEODCapture,
}

var eodListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached snapshots",
	Args:  cobra.NoArgs,
	RunE:  runEODList,
}

var eodClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached snapshots so they are recomputed",
	Args:  cobra.NoArgs,
	RunE:  runEODClear,
}

var eodClearFrom string

func init() {
	rootCmd.AddCommand(eodCmd)
	eodCmd.AddCommand(eodCaptureCmd, eodListCmd, eodClearCmd)
	eodClearCmd.Flags().StringVar(&eodClearFrom, "from", "", "only drop snapshots on or after this date")
}

func runEODCapture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.CaptureEOD(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !res.Saved {
		fmt.Fprintf(out, "skipped: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(out, "✓ %s  %s\n", res.Snapshot.Date, journal.Dollars(res.Snapshot.Balance))
	if len(res.Snapshot.MissingTickers) > 0 {
		fmt.Fprintf(out, "  incomplete, no price for %v\n", res.Snapshot.MissingTickers)
	}
	return nil
}

func runEODList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for _, d := range a.EOD.Dates(ctx) {
		s := a.EOD.Get(ctx, d)
		if s == nil {
			continue
		}
		flag := ""
		if !s.Trusted() {
			flag = "  (incomplete)"
		}
		fmt.Fprintf(out, "%s  %14s  %-10s%s\n", s.Date, journal.Dollars(s.Balance), s.Source, flag)
	}
	return nil
}

func runEODClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if eodClearFrom == "" {
		if err := a.EOD.ClearAll(ctx); err != nil {
			return err
		}
		a.Equity.Reset()
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all snapshots")
		return nil
	}
	n, err := a.EOD.InvalidateFromDate(ctx, eodClearFrom)
	if err != nil {
		return err
	}
	a.Equity.Reset()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %d snapshots from %s\n", n, eodClearFrom)
	return nil
}
