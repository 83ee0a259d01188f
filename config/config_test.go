package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 10000.0, *cfg.Account.StartingBalance)
	assert.Equal(t, "static", cfg.Prices.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:   "missing starting balance",
			mutate: func(c *Config) { c.Account.StartingBalance = nil },
			errMsg: "account.starting_balance is required",
		},
		{
			name:   "negative starting balance",
			mutate: func(c *Config) { c.Account.StartingBalance = fp(-1) },
			errMsg: "account.starting_balance must not be negative",
		},
		{
			name:   "missing currency",
			mutate: func(c *Config) { c.Account.Currency = "" },
			errMsg: "account.currency is required",
		},
		{
			name:   "missing db path",
			mutate: func(c *Config) { c.Storage.DBPath = "" },
			errMsg: "storage.db_path is required",
		},
		{
			name:   "bad timezone",
			mutate: func(c *Config) { c.Market.Timezone = "Mars/Olympus" },
			errMsg: "market:",
		},
		{
			name:   "bad close time",
			mutate: func(c *Config) { c.Market.CloseTime = "4pm" },
			errMsg: "market:",
		},
		{
			name:   "bad holiday",
			mutate: func(c *Config) { c.Market.Holidays = []string{"July 4"} },
			errMsg: "market:",
		},
		{
			name:   "bad schedule",
			mutate: func(c *Config) { c.Market.EODSchedule = "every day" },
			errMsg: "market.eod_schedule",
		},
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Prices.Provider = "yahoo" },
			errMsg: "prices.provider must be 'alpaca' or 'static'",
		},
		{
			name:   "bad delay",
			mutate: func(c *Config) { c.Prices.RequestDelay = "soon" },
			errMsg: "prices.request_delay",
		},
		{
			name:   "zero static price",
			mutate: func(c *Config) { c.Prices.Static = map[string]float64{"AAPL": 0} },
			errMsg: "prices.static[AAPL] must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMissingStartingBalanceIsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Account.StartingBalance = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoStartingBalance)
}

func TestSaveAndLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Account.StartingBalance = fp(25000)
	cfg.Prices.Static = map[string]float64{"AAPL": 171.5}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveAndLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := Default()
	cfg.Market.Holidays = []string{"2024-07-04"}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFileMissingBalance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  currency: USD\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.ErrorIs(t, err, ErrNoStartingBalance)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not: [valid"), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRADEBOOK_DB", "/tmp/override.db")
	t.Setenv("TRADEBOOK_LOG_LEVEL", "debug")
	t.Setenv("TRADEBOOK_STARTING_BALANCE", "5000.5")
	t.Setenv("TRADEBOOK_HTTP_ADDR", ":9999")
	t.Setenv("APCA_API_KEY_ID", "key")
	t.Setenv("APCA_API_SECRET_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5000.5, *cfg.Account.StartingBalance)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "key", cfg.Prices.APIKeyID)
	assert.Equal(t, "secret", cfg.Prices.APISecretKey)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// godotenv never overrides a variable that is already set.
	t.Setenv("TRADEBOOK_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("TRADEBOOK_HTTP_ADDR"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRADEBOOK_HTTP_ADDR=:7070\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoadBadEnvBalance(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRADEBOOK_STARTING_BALANCE", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestRequestDelayAndCalendar(t *testing.T) {
	cfg := Default()
	d, err := cfg.RequestDelay()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	cfg.Prices.RequestDelay = ""
	d, err = cfg.RequestDelay()
	require.NoError(t, err)
	assert.Zero(t, d)

	cal, err := cfg.Calendar()
	require.NoError(t, err)
	assert.Equal(t, 16, cal.CloseHour)
}
