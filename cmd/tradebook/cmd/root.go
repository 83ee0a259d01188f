package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/config"
	"github.com/rustyeddy/tradebook/internal/app"
	"github.com/rustyeddy/tradebook/internal/logging"
	"github.com/rustyeddy/tradebook/market"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradebook",
	Short: "Trading journal with balance, equity curve and performance stats",
	Long: `Tradebook keeps a journal of stock and option trades and deposits,
and derives the account balance, a daily equity curve, performance
statistics and a P&L calendar from it.

Settings are read from a YAML or JSON config file and can be overridden
with TRADEBOOK_* and APCA_* environment variables or a .env file.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute adds all child commands to the root command and runs it until
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)
}

// openApp loads the configuration and initializes the service. Callers
// must Close it.
func openApp(ctx context.Context, schedule bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, app.Deps{Log: newLogger(cfg), Schedule: schedule})
	if err != nil {
		return nil, err
	}
	if err := a.Init(ctx); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return a, nil
}

// parseWhen accepts YYYY-MM-DD or YYYY-MM-DDTHH:MM in the market's
// timezone. A bare date means noon so the calendar day survives any
// timezone conversion in storage.
func parseWhen(s string, cal market.Calendar, now time.Time) (time.Time, error) {
	loc := cal.Location
	if loc == nil {
		loc = time.UTC
	}
	if s == "" {
		return now.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(market.DateFormat, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q want YYYY-MM-DD or YYYY-MM-DDTHH:MM", s)
	}
	return t.Add(12 * time.Hour), nil
}

// dateOrToday returns args[0] when present, otherwise today's date.
func dateOrToday(args []string, cal market.Calendar) (string, error) {
	if len(args) == 0 {
		return cal.Today(time.Now()), nil
	}
	if _, err := market.ParseDate(args[0]); err != nil {
		return "", err
	}
	return args[0], nil
}

func optionalFloat(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
