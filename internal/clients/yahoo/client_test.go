package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

const chartFixture = `{
  "chart": {
    "result": [{
      "timestamp": [1704378600, 1704205800, 1704292200, 1704465000],
      "indicators": {
        "quote": [{
          "open":   [12.0, 10.0, 11.0, null],
          "high":   [12.5, 10.5, 11.5, null],
          "low":    [11.5, 9.5, 10.5, null],
          "close":  [12.2, 10.2, 11.2, null],
          "volume": [300, 100, 200, null]
        }],
        "adjclose": [{"adjclose": [12.1, 10.1, 11.1, null]}]
      }
    }],
    "error": null
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, zerolog.Nop())
}

func TestHistory_ParsesAndSorts(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartFixture))
	})

	bars, err := client.History(context.Background(), "AAPL", "2024-01-01", "2024-01-10")
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, "period1=1704067200")

	require.Len(t, bars, 3, "null row is skipped")
	assert.Equal(t, 10.2, bars[0].Close)
	assert.Equal(t, 11.2, bars[1].Close)
	assert.Equal(t, 12.2, bars[2].Close)
	assert.Equal(t, 10.1, bars[0].AdjClose)
	assert.Equal(t, int64(100), bars[0].Volume)
	assert.True(t, bars[0].Date.Before(bars[1].Date))
	assert.Equal(t, 0, bars[0].Date.Hour())
}

func TestHistory_NotFoundIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})

	bars, err := client.History(context.Background(), "NOPE", "2024-01-01", "2024-01-10")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestHistory_ChartErrorNotFoundIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`))
	})

	bars, err := client.History(context.Background(), "GONE", "2024-01-01", "2024-01-10")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestHistory_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.History(context.Background(), "AAPL", "2024-01-01", "2024-01-10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

func TestHistory_BadRequestIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad"))
	})

	_, err := client.History(context.Background(), "AAPL", "2024-01-01", "2024-01-10")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransient))
}

func TestHistory_InvalidDates(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", time.Second, zerolog.Nop())
	_, err := client.History(context.Background(), "AAPL", "01/01/2024", "2024-01-10")
	assert.Error(t, err)
}

func TestHistory_ConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second, zerolog.Nop())
	_, err := client.History(context.Background(), "AAPL", "2024-01-01", "2024-01-10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

// sessionServer emulates Yahoo's cookie and crumb handshake in front of a
// quoteSummary handler.
type sessionServer struct {
	mu         sync.Mutex
	crumb      string
	crumbCalls int
}

func (s *sessionServer) currentCrumb() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumb
}

func (s *sessionServer) rotate(crumb string) {
	s.mu.Lock()
	s.crumb = crumb
	s.mu.Unlock()
}

func (s *sessionServer) crumbRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumbCalls
}

func newSessionClient(t *testing.T, session *sessionServer, quote http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("A3"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		session.mu.Lock()
		session.crumbCalls++
		crumb := session.crumb
		session.mu.Unlock()
		w.Write([]byte(crumb))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("crumb") != session.currentCrumb() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"finance":{"result":null,"error":{"code":"Unauthorized","description":"Invalid Crumb"}}}`))
			return
		}
		quote(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, zerolog.Nop())
}

const msftSummary = `{"quoteSummary":{"result":[{
	"defaultKeyStatistics":{"trailingEps":{"raw":11.8,"fmt":"11.80"},"beta":{}},
	"summaryDetail":{"beta":{"raw":0.9},"marketCap":{"raw":3.1e12}},
	"price":{"marketCap":{"raw":3.0e12}}
}],"error":null}}`

func TestFundamentals(t *testing.T) {
	session := &sessionServer{crumb: "abc123"}
	client := newSessionClient(t, session, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/MSFT"))
		w.Write([]byte(msftSummary))
	})

	f, err := client.Fundamentals(context.Background(), "MSFT")
	require.NoError(t, err)
	require.NotNil(t, f.EPS)
	require.NotNil(t, f.Beta)
	require.NotNil(t, f.MarketCap)
	assert.Equal(t, 11.8, *f.EPS)
	assert.Equal(t, 0.9, *f.Beta)
	assert.Equal(t, 3.0e12, *f.MarketCap)
}

func TestFundamentals_MissingFieldsStayNil(t *testing.T) {
	session := &sessionServer{crumb: "abc123"}
	client := newSessionClient(t, session, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quoteSummary":{"result":[{"defaultKeyStatistics":{},"summaryDetail":{},"price":{}}],"error":null}}`))
	})

	f, err := client.Fundamentals(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Nil(t, f.EPS)
	assert.Nil(t, f.Beta)
	assert.Nil(t, f.MarketCap)
}

func TestFundamentals_ReusesCrumb(t *testing.T) {
	session := &sessionServer{crumb: "abc123"}
	client := newSessionClient(t, session, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(msftSummary))
	})

	_, err := client.Fundamentals(context.Background(), "MSFT")
	require.NoError(t, err)
	_, err = client.Fundamentals(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.Equal(t, 1, session.crumbRequests())
}

func TestFundamentals_RefreshesRejectedCrumb(t *testing.T) {
	session := &sessionServer{crumb: "abc123"}
	client := newSessionClient(t, session, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(msftSummary))
	})

	_, err := client.Fundamentals(context.Background(), "MSFT")
	require.NoError(t, err)

	session.rotate("def456")
	f, err := client.Fundamentals(context.Background(), "MSFT")
	require.NoError(t, err)
	require.NotNil(t, f.EPS)
	assert.Equal(t, 11.8, *f.EPS)
	assert.Equal(t, 2, session.crumbRequests())
}

func TestFundamentals_UnauthorizedAfterRefresh(t *testing.T) {
	session := &sessionServer{crumb: "abc123"}
	client := newSessionClient(t, session, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Fundamentals(context.Background(), "MSFT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnauthorized))
	assert.False(t, errors.Is(err, domain.ErrTransient))
	assert.Equal(t, 2, session.crumbRequests())
}

func TestFundamentals_CrumbUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Fundamentals(context.Background(), "MSFT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crumb")
}
