package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/tradebook/config"
	"github.com/rustyeddy/tradebook/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhen(t *testing.T) {
	cal := market.DefaultCalendar()
	now := time.Date(2024, 3, 8, 20, 0, 0, 0, time.UTC)

	got, err := parseWhen("", cal, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08", market.FormatDate(got))

	got, err = parseWhen("2024-03-06", cal, now)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Hour())
	assert.Equal(t, "2024-03-06", market.FormatDate(got.UTC()))

	got, err = parseWhen("2024-03-06T09:45", cal, now)
	require.NoError(t, err)
	assert.Equal(t, 45, got.Minute())
	assert.Equal(t, cal.Location, got.Location())

	_, err = parseWhen("March 6", cal, now)
	assert.Error(t, err)
}

func TestDateOrToday(t *testing.T) {
	cal := market.DefaultCalendar()
	d, err := dateOrToday([]string{"2024-03-06"}, cal)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-06", d)

	_, err = dateOrToday([]string{"06/03/2024"}, cal)
	assert.Error(t, err)

	d, err = dateOrToday(nil, cal)
	require.NoError(t, err)
	assert.Equal(t, cal.Today(time.Now()), d)
}

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tb.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"config", "init", "-o", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, *cfg.Account.StartingBalance)

	out.Reset()
	rootCmd.SetArgs([]string{"config", "validate", "-f", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Configuration valid")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), version)
}

func TestJournalCommands(t *testing.T) {
	t.Setenv("TRADEBOOK_DB", filepath.Join(t.TempDir(), "tb.db"))
	t.Setenv("TRADEBOOK_LOG_LEVEL", "disabled")

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute(), args)
		return out.String()
	}
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	out := run("trade", "add", "acme", "--entry", "10", "--stop", "9", "--shares", "100", "--at", "2024-03-04T10:00")
	assert.Contains(t, out, ":TICKER: ACME")
	assert.Contains(t, out, ":RISK: $100.00")

	out = run("cash", "deposit", "500", "--at", "2024-03-06")
	assert.Contains(t, out, "deposit $500.00 on 2024-03-06")

	out = run("balance")
	assert.Contains(t, out, "Realized:    $10,500.00")
	assert.Contains(t, out, "No price for: ACME")

	out = run("stats")
	assert.Contains(t, out, "Trades:          0")
}
