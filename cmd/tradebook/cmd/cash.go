package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rustyeddy/tradebook/journal"
	"github.com/spf13/cobra"
)

var cashCmd = &cobra.Command{
	Use:   "cash",
	Short: "Record deposits and withdrawals",
	Long: `Deposits and withdrawals move the balance without counting as P&L.
To correct one, delete it and record it again.

Examples:
  tradebook cash deposit 5000 --at 2024-03-06
  tradebook cash withdraw 250
  tradebook cash list`,
}

var cashDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Record a deposit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCashFlow(cmd, journal.Deposit, args[0])
	},
}

var cashWithdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Record a withdrawal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCashFlow(cmd, journal.Withdrawal, args[0])
	},
}

var cashDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a deposit or withdrawal",
	Args:  cobra.ExactArgs(1),
	RunE:  runCashDelete,
}

var cashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deposits and withdrawals",
	Args:  cobra.NoArgs,
	RunE:  runCashList,
}

var cashWhen string

func init() {
	rootCmd.AddCommand(cashCmd)
	cashCmd.AddCommand(cashDepositCmd, cashWithdrawCmd, cashDeleteCmd, cashListCmd)
	for _, c := range []*cobra.Command{cashDepositCmd, cashWithdrawCmd} {
		c.Flags().StringVar(&cashWhen, "at", "", "when, YYYY-MM-DD or YYYY-MM-DDTHH:MM (default now)")
	}
}

func runCashFlow(cmd *cobra.Command, typ journal.CashFlowType, amount string) error {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	when, err := parseWhen(cashWhen, a.MarketCalendar(), time.Now())
	if err != nil {
		return err
	}
	c, err := a.Ledger.AddCashFlow(ctx, journal.CashFlow{Type: typ, Amount: v, Timestamp: when})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s on %s (%s)\n", c.Type, journal.Dollars(c.Amount), c.Date(), c.ID)
	return nil
}

func runCashDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Ledger.DeleteCashFlow(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted cash flow %s\n", args[0])
	return nil
}

func runCashList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	flows, err := a.Ledger.ListCashFlows(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range flows {
		fmt.Fprintf(out, "%s  %-10s  %12s  %s\n", c.Date(), c.Type, journal.Dollars(c.Signed()), c.ID)
	}
	return nil
}
