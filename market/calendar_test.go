package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Multiplier(Stock))
	assert.Equal(t, 100.0, Multiplier(Options))
	assert.Equal(t, 1.0, Multiplier(AssetType("bogus")))
}

func TestParseAssetType(t *testing.T) {
	t.Parallel()

	a, ok := ParseAssetType("Option")
	assert.True(t, ok)
	assert.Equal(t, Options, a)

	_, ok = ParseAssetType("futures")
	assert.False(t, ok)
}

func TestMostRecentTradingDay(t *testing.T) {
	t.Parallel()

	cal := Calendar{Location: time.UTC, CloseHour: 16}

	// Saturday 2024-03-16 -> Friday 2024-03-15
	sat := time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15", cal.MostRecentTradingDay(sat))
	assert.NotEqual(t, cal.Today(sat), cal.MostRecentTradingDay(sat))

	wed := time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, cal.Today(wed), cal.MostRecentTradingDay(wed))
}

func TestHolidaysAreNotTradingDays(t *testing.T) {
	t.Parallel()

	cal, err := NewCalendar("UTC", "16:00", []string{"2024-07-04"})
	require.NoError(t, err)

	assert.False(t, cal.IsTradingDay("2024-07-04"))
	assert.True(t, cal.IsTradingDay("2024-07-05"))
	assert.Equal(t, "2024-07-03", cal.PrevTradingDay("2024-07-05"))
}

func TestAfterClose(t *testing.T) {
	t.Parallel()

	cal, err := NewCalendar("UTC", "16:00", nil)
	require.NoError(t, err)

	assert.False(t, cal.AfterClose(time.Date(2024, 3, 13, 15, 59, 0, 0, time.UTC)))
	assert.True(t, cal.AfterClose(time.Date(2024, 3, 13, 16, 0, 0, 0, time.UTC)))
}

func TestPrevBusinessDayAndDays(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2024-03-15", PrevBusinessDay("2024-03-18"))
	assert.Equal(t, "2024-03-12", PrevBusinessDay("2024-03-13"))

	assert.Equal(t, []string{"2024-02-28", "2024-02-29", "2024-03-01"}, Days("2024-02-28", "2024-03-01"))
	assert.Nil(t, Days("2024-03-02", "2024-03-01"))
	assert.Nil(t, Days("garbage", "2024-03-01"))
}

func TestPricesOnDateSkipsMissing(t *testing.T) {
	t.Parallel()

	src := mapSource{"AAPL|2024-03-13": 170}
	got, missing := PricesOnDate(t.Context(), src, []string{"AAPL", "MSFT"}, "2024-03-13")
	assert.Equal(t, PriceMap{"AAPL": 170}, got)
	assert.Equal(t, []string{"MSFT"}, missing)
}

type mapSource map[string]float64

func (m mapSource) PriceOnDate(_ context.Context, key, date string) (float64, error) {
	p, ok := m[key+"|"+date]
	if !ok {
		return 0, ErrPriceUnavailable
	}
	return p, nil
}
