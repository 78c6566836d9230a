package optimization

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/returns"
	"github.com/aristath/portfolio-analytics/internal/utils"
)

// ServiceConfig configures the optimization service
type ServiceConfig struct {
	BlackLitterman BlackLittermanConfig
	// Views are used when a Black-Litterman call passes nil views.
	Views Views
}

// Service runs market data retrieval, return cleaning and one of the
// optimization models per call. It holds no per-call state.
type Service struct {
	data     domain.MarketData
	pipeline *returns.Pipeline
	mv       *MeanVarianceOptimizer
	rp       *RiskParityOptimizer
	bl       *BlackLittermanOptimizer
	views    Views
	capErr   error
	log      zerolog.Logger
}

// NewService creates the optimization service and probes solver capabilities.
// A failed probe does not prevent construction; every call reports it instead.
func NewService(data domain.MarketData, pipeline *returns.Pipeline, cfg ServiceConfig, log zerolog.Logger) *Service {
	views := cfg.Views
	if views == nil {
		views = DefaultViews()
	}

	s := &Service{
		data:     data,
		pipeline: pipeline,
		mv:       NewMeanVarianceOptimizer(log),
		rp:       NewRiskParityOptimizer(log),
		bl:       NewBlackLittermanOptimizer(cfg.BlackLitterman, log),
		views:    views,
		capErr:   CheckCapabilities(),
		log:      log.With().Str("service", "optimization").Logger(),
	}
	if s.capErr != nil {
		s.log.Error().Err(s.capErr).Msg("Optimization capabilities unavailable")
	}
	return s
}

// Available returns the startup capability error, if any.
func (s *Service) Available() error {
	return s.capErr
}

// OptimizeMeanVariance runs the max-Sharpe optimizer.
func (s *Service) OptimizeMeanVariance(ctx context.Context, tickers []string, start, end string, riskFreeRate float64) (domain.OptimizationResult, error) {
	tickers, returnMatrix, err := s.prepare(ctx, ModelMeanVariance, tickers, start, end, riskFreeRate)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	return s.mv.Optimize(returnMatrix, tickers, riskFreeRate)
}

// OptimizeRiskParity runs the equal risk contribution optimizer.
func (s *Service) OptimizeRiskParity(ctx context.Context, tickers []string, start, end string, riskFreeRate float64) (domain.OptimizationResult, error) {
	tickers, returnMatrix, err := s.prepare(ctx, ModelRiskParity, tickers, start, end, riskFreeRate)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	return s.rp.Optimize(returnMatrix, tickers, riskFreeRate)
}

// OptimizeBlackLitterman runs the Black-Litterman optimizer. nil views means
// the configured defaults; an empty non-nil slice means no views.
func (s *Service) OptimizeBlackLitterman(ctx context.Context, tickers []string, start, end string, riskFreeRate float64, views Views) (domain.OptimizationResult, error) {
	if views == nil {
		views = s.views
	} else if err := views.Validate(); err != nil {
		return domain.OptimizationResult{}, err
	}

	tickers, returnMatrix, err := s.prepare(ctx, ModelBlackLitterman, tickers, start, end, riskFreeRate)
	if err != nil {
		return domain.OptimizationResult{}, err
	}

	caps := s.marketCaps(ctx, tickers)
	return s.bl.Optimize(returnMatrix, tickers, riskFreeRate, views, caps)
}

// prepare validates inputs and returns the cleaned return matrix.
func (s *Service) prepare(ctx context.Context, model string, tickers []string, start, end string, riskFreeRate float64) ([]string, domain.ReturnMatrix, error) {
	if s.capErr != nil {
		return nil, domain.ReturnMatrix{}, s.capErr
	}

	tickers, err := marketdata.NormalizeTickers(tickers)
	if err != nil {
		return nil, domain.ReturnMatrix{}, err
	}
	if err := marketdata.ValidateRange(start, end); err != nil {
		return nil, domain.ReturnMatrix{}, err
	}
	if err := config.ValidateRiskFreeRate(riskFreeRate); err != nil {
		return nil, domain.ReturnMatrix{}, err
	}

	timer := utils.NewTimer(model+"_data", s.log)
	prices, err := s.data.GetPriceHistoryBatch(ctx, tickers, start, end)
	timer.Stop()
	if err != nil {
		return nil, domain.ReturnMatrix{}, fmt.Errorf("failed to fetch prices: %w", err)
	}

	returnMatrix, err := s.pipeline.Clean(prices, tickers)
	if err != nil {
		return nil, domain.ReturnMatrix{}, err
	}
	return tickers, returnMatrix, nil
}

// marketCaps looks up market caps; failed lookups are left nil so the
// Black-Litterman prior falls back to historical returns.
func (s *Service) marketCaps(ctx context.Context, tickers []string) map[string]*float64 {
	caps := make(map[string]*float64, len(tickers))
	for _, t := range tickers {
		if t == s.bl.cfg.ProxyTicker {
			continue
		}
		value, err := s.data.GetFundamental(ctx, t, domain.FieldMarketCap)
		if err != nil {
			s.log.Debug().Err(err).Str("ticker", t).Msg("Market cap unavailable")
			continue
		}
		caps[t] = value
	}
	return caps
}
