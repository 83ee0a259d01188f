package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/tradebook/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the scheduled EOD capture",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var (
	serveAddr       string
	serveNoSchedule bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "do not schedule the EOD capture")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, !serveNoSchedule)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveAddr != "" {
		a.Config().Server.Addr = serveAddr
	}
	log := newLogger(a.Config())
	srv := server.New(a, log)

	// Warm the caches so the first dashboard load is cheap.
	if _, err := a.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial refresh failed")
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errc
}
