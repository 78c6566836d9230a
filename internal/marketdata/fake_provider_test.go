package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// fakeProvider serves canned bars and scripted failures.
type fakeProvider struct {
	mu           sync.Mutex
	bars         map[string][]domain.PriceBar
	fundamentals map[string]domain.Fundamentals
	// script holds per-ticker errors returned before data, consumed in order.
	script      map[string][]error
	emptyFirst  map[string]bool
	historyHits map[string]int
	fundHits    map[string]int
	delay       time.Duration
	// gate, when set, blocks History until closed or ctx is done.
	gate        chan struct{}
	started     chan struct{}
	inFlight    int
	maxInFlight int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bars:         make(map[string][]domain.PriceBar),
		fundamentals: make(map[string]domain.Fundamentals),
		script:       make(map[string][]error),
		emptyFirst:   make(map[string]bool),
		historyHits:  make(map[string]int),
		fundHits:     make(map[string]int),
	}
}

func (p *fakeProvider) withSeries(ticker string, closes ...float64) *fakeProvider {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{Date: start.AddDate(0, 0, i), Close: c, AdjClose: c}
	}
	p.bars[ticker] = bars
	return p
}

func (p *fakeProvider) History(ctx context.Context, ticker, start, end string) ([]domain.PriceBar, error) {
	p.mu.Lock()
	p.historyHits[ticker]++
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	var scripted error
	if errs := p.script[ticker]; len(errs) > 0 {
		scripted = errs[0]
		p.script[ticker] = errs[1:]
	}
	empty := p.emptyFirst[ticker]
	p.emptyFirst[ticker] = false
	bars := p.bars[ticker]
	delay := p.delay
	gate, started := p.gate, p.started
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			p.mu.Lock()
			p.inFlight--
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()

	if scripted != nil {
		return nil, scripted
	}
	if empty {
		return nil, nil
	}
	out := make([]domain.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

func (p *fakeProvider) Fundamentals(ctx context.Context, ticker string) (domain.Fundamentals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundHits[ticker]++
	if errs := p.script[ticker]; len(errs) > 0 {
		err := errs[0]
		p.script[ticker] = errs[1:]
		return domain.Fundamentals{}, err
	}
	return p.fundamentals[ticker], nil
}

func (p *fakeProvider) hits(ticker string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.historyHits[ticker]
}

func transient(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrTransient, msg)
}
