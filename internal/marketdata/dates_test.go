package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	start, end := DateRange(1, now)
	assert.Equal(t, "2023-03-16", start) // 365 days across a leap day
	assert.Equal(t, "2024-03-15", end)

	start, _ = DateRange(5, now)
	assert.Equal(t, now.AddDate(0, 0, -1825).Format("2006-01-02"), start)
	assert.NoError(t, ValidateRange(start, end))
}

func TestNormalizeTickers(t *testing.T) {
	got, err := NormalizeTickers([]string{" aapl", "MSFT", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)

	_, err = NormalizeTickers(nil)
	assert.Error(t, err)

	_, err = NormalizeTickers([]string{"AAPL", ""})
	assert.Error(t, err)
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	start, end, err := ResolveRange("2023-01-01", "2023-06-30", 0, now)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01", start)
	assert.Equal(t, "2023-06-30", end)

	start, end, err = ResolveRange("", "", 1, now)
	require.NoError(t, err)
	assert.Equal(t, "2023-03-16", start)
	assert.Equal(t, "2024-03-15", end)

	_, _, err = ResolveRange("2023-01-01", "", 1, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = ResolveRange("", "", 11, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = ResolveRange("2023-06-30", "2023-01-01", 0, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
