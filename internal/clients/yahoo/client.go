// Package yahoo fetches daily price history and fundamentals from Yahoo Finance.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// DefaultBaseURL is the public Yahoo Finance query host
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// userAgent mimics a browser; Yahoo rejects unknown clients
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// defaultCookieURL issues the session cookie the crumb endpoint requires
const defaultCookieURL = "https://fc.yahoo.com"

// errUnauthorized marks a 401/403, usually a missing or stale crumb.
var errUnauthorized = errors.New("Yahoo Finance rejected the session")

// Client is a Yahoo Finance API client
type Client struct {
	baseURL   string
	cookieURL string
	client    *http.Client
	log       zerolog.Logger

	mu    sync.Mutex
	crumb string
}

// NewClient creates a new Yahoo Finance client
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	cookieURL := defaultCookieURL
	if baseURL != DefaultBaseURL {
		cookieURL = baseURL
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:   baseURL,
		cookieURL: cookieURL,
		client:    &http.Client{Timeout: timeout, Jar: jar},
		log:       log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse is the response structure from the v8 chart API.
// Yahoo emits null for missing rows, hence the pointers.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// rawValue is Yahoo's {"raw": 1.23, "fmt": "1.23"} wrapper
type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				TrailingEps rawValue `json:"trailingEps"`
				Beta        rawValue `json:"beta"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				Beta      rawValue `json:"beta"`
				MarketCap rawValue `json:"marketCap"`
			} `json:"summaryDetail"`
			Price struct {
				MarketCap rawValue `json:"marketCap"`
			} `json:"price"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteSummary"`
}

// History returns daily bars for ticker between start and end (YYYY-MM-DD,
// end exclusive). An unknown symbol yields an empty slice and no error.
func (c *Client) History(ctx context.Context, ticker, start, end string) ([]domain.PriceBar, error) {
	startTime, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endTime, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}

	params := url.Values{}
	params.Add("period1", strconv.FormatInt(startTime.Unix(), 10))
	params.Add("period2", strconv.FormatInt(endTime.Unix(), 10))
	params.Add("interval", "1d")
	params.Add("events", "history")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(ticker) + "?" + params.Encode()

	body, found, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.PriceBar{}, nil
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse chart response for %s: %w", ticker, err)
	}

	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return []domain.PriceBar{}, nil
		}
		return nil, fmt.Errorf("Yahoo Finance API error for %s: %s: %s",
			ticker, result.Chart.Error.Code, result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		c.log.Warn().Str("ticker", ticker).Msg("No historical data returned")
		return []domain.PriceBar{}, nil
	}

	chartData := result.Chart.Result[0]
	quote := chartData.Indicators.Quote[0]

	var adjCloseData []*float64
	if len(chartData.Indicators.AdjClose) > 0 {
		adjCloseData = chartData.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]domain.PriceBar, 0, len(chartData.Timestamp))
	for i, ts := range chartData.Timestamp {
		closeVal := at(quote.Close, i)
		// Yahoo sometimes returns null or all-zero rows
		if closeVal == nil || (*closeVal == 0 && value(at(quote.Open, i)) == 0 &&
			value(at(quote.High, i)) == 0 && value(at(quote.Low, i)) == 0) {
			continue
		}

		adjClose := *closeVal
		if adj := at(adjCloseData, i); adj != nil && *adj != 0 {
			adjClose = *adj
		}

		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		day := time.Unix(ts, 0).UTC()
		bars = append(bars, domain.PriceBar{
			Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:     value(at(quote.Open, i)),
			High:     value(at(quote.High, i)),
			Low:      value(at(quote.Low, i)),
			Close:    *closeVal,
			AdjClose: adjClose,
			Volume:   volume,
		})
	}

	bars = domain.SortBars(bars)

	c.log.Debug().
		Str("ticker", ticker).
		Str("start", start).
		Str("end", end).
		Int("count", len(bars)).
		Msg("Fetched historical prices")

	return bars, nil
}

// Fundamentals returns trailing EPS, beta and market capitalization.
// Fields Yahoo does not report stay nil. The quoteSummary endpoint needs a
// session crumb; a rejected crumb is refreshed once.
func (c *Client) Fundamentals(ctx context.Context, ticker string) (domain.Fundamentals, error) {
	body, found, err := c.quoteSummary(ctx, ticker)
	if errors.Is(err, errUnauthorized) {
		c.log.Debug().Str("ticker", ticker).Msg("Crumb rejected, refreshing session")
		c.resetCrumb()
		body, found, err = c.quoteSummary(ctx, ticker)
	}
	if err != nil {
		return domain.Fundamentals{}, err
	}
	if !found {
		return domain.Fundamentals{}, nil
	}

	var result quoteSummaryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.Fundamentals{}, fmt.Errorf("failed to parse quote summary for %s: %w", ticker, err)
	}
	if result.QuoteSummary.Error != nil {
		if result.QuoteSummary.Error.Code == "Not Found" {
			return domain.Fundamentals{}, nil
		}
		return domain.Fundamentals{}, fmt.Errorf("Yahoo Finance API error for %s: %s: %s",
			ticker, result.QuoteSummary.Error.Code, result.QuoteSummary.Error.Description)
	}
	if len(result.QuoteSummary.Result) == 0 {
		return domain.Fundamentals{}, nil
	}

	r := result.QuoteSummary.Result[0]
	return domain.Fundamentals{
		EPS:       r.DefaultKeyStatistics.TrailingEps.Raw,
		Beta:      firstNonNil(r.DefaultKeyStatistics.Beta.Raw, r.SummaryDetail.Beta.Raw),
		MarketCap: firstNonNil(r.Price.MarketCap.Raw, r.SummaryDetail.MarketCap.Raw),
	}, nil
}

func (c *Client) quoteSummary(ctx context.Context, ticker string) ([]byte, bool, error) {
	crumb, err := c.sessionCrumb(ctx)
	if err != nil {
		return nil, false, err
	}

	params := url.Values{}
	params.Add("modules", "defaultKeyStatistics,summaryDetail,price")
	params.Add("crumb", crumb)
	reqURL := c.baseURL + "/v10/finance/quoteSummary/" + url.PathEscape(ticker) + "?" + params.Encode()

	return c.get(ctx, reqURL)
}

// sessionCrumb returns the cached crumb, acquiring a session cookie and a
// new crumb when there is none.
func (c *Client) sessionCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb != "" {
		return c.crumb, nil
	}

	// Only the Set-Cookie header matters; the status is usually 404.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cookieURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create cookie request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: failed to obtain session cookie: %v", domain.ErrTransient, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	body, found, err := c.get(ctx, c.baseURL+"/v1/test/getcrumb")
	if err != nil {
		return "", fmt.Errorf("failed to obtain crumb: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if !found || crumb == "" {
		return "", fmt.Errorf("failed to obtain crumb: empty response")
	}

	c.crumb = crumb
	return crumb, nil
}

func (c *Client) resetCrumb() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}

// get performs a GET and classifies the outcome. found is false for 404.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to read response body: %v", domain.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, true, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w: status %d", errUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, false, fmt.Errorf("%w: Yahoo Finance API returned status %d", domain.ErrTransient, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
