package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// DateRange returns the window of the last years×365 days ending at now.
func DateRange(years int, now time.Time) (start, end string) {
	endDate := now
	startDate := endDate.AddDate(0, 0, -years*365)
	return startDate.Format(domain.DateLayout), endDate.Format(domain.DateLayout)
}

// ResolveRange returns an explicit [start, end] when both are given, otherwise
// the trailing window of years ending at now.
func ResolveRange(start, end string, years int, now time.Time) (string, string, error) {
	if start != "" || end != "" {
		if start == "" || end == "" {
			return "", "", fmt.Errorf("%w: start and end must be given together", domain.ErrInvalidInput)
		}
		if err := ValidateRange(start, end); err != nil {
			return "", "", err
		}
		return start, end, nil
	}
	if years < 1 || years > 10 {
		return "", "", fmt.Errorf("%w: years of history must be between 1 and 10, got %d", domain.ErrInvalidInput, years)
	}
	s, e := DateRange(years, now)
	return s, e, nil
}

// ValidateRange checks that start and end are calendar dates with start < end.
func ValidateRange(start, end string) error {
	s, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		return fmt.Errorf("%w: start date %q: %v", domain.ErrInvalidInput, start, err)
	}
	e, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		return fmt.Errorf("%w: end date %q: %v", domain.ErrInvalidInput, end, err)
	}
	if !s.Before(e) {
		return fmt.Errorf("%w: start %s must be before end %s", domain.ErrInvalidInput, start, end)
	}
	return nil
}

// NormalizeTicker trims and upper-cases a symbol.
func NormalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", fmt.Errorf("%w: ticker must be a non-empty symbol", domain.ErrInvalidInput)
	}
	return t, nil
}

// NormalizeTickers normalizes a list, dropping duplicates and keeping order.
func NormalizeTickers(tickers []string) ([]string, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: ticker list is empty", domain.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, raw := range tickers {
		t, err := NormalizeTicker(raw)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
