// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/optimization"
	"github.com/aristath/portfolio-analytics/internal/utils"
)

// Route names for the {model} URL parameter
const (
	RouteMeanVariance   = "mean-variance"
	RouteRiskParity     = "risk-parity"
	RouteBlackLitterman = "black-litterman"
)

// OptimizationService is the subset of the optimization service used by the handlers
type OptimizationService interface {
	OptimizeMeanVariance(ctx context.Context, tickers []string, start, end string, riskFreeRate float64) (domain.OptimizationResult, error)
	OptimizeRiskParity(ctx context.Context, tickers []string, start, end string, riskFreeRate float64) (domain.OptimizationResult, error)
	OptimizeBlackLitterman(ctx context.Context, tickers []string, start, end string, riskFreeRate float64, views optimization.Views) (domain.OptimizationResult, error)
}

// Defaults are applied to request fields that are omitted
type Defaults struct {
	HistoryYears   int
	RiskFreeRate   float64
	BLRiskFreeRate float64
}

// Handler handles optimization HTTP requests
type Handler struct {
	service  OptimizationService
	defaults Defaults
	now      func() time.Time
	log      zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service OptimizationService, defaults Defaults, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		defaults: defaults,
		now:      time.Now,
		log:      log.With().Str("handler", "optimization").Logger(),
	}
}

// OptimizeRequest is the request body for POST /api/optimize/{model}
type OptimizeRequest struct {
	Tickers      []string           `json:"tickers"`
	Start        string             `json:"start,omitempty"`
	End          string             `json:"end,omitempty"`
	Years        *int               `json:"years,omitempty"`
	RiskFreeRate *float64           `json:"risk_free_rate,omitempty"`
	Views        optimization.Views `json:"views,omitempty"`
}

// HandleOptimize handles POST /api/optimize/{model}
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	switch model {
	case RouteMeanVariance, RouteRiskParity, RouteBlackLitterman:
	default:
		utils.WriteJSON(w, h.log, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("unknown optimization model %q", model),
		})
		return
	}

	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, h.log, fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err))
		return
	}
	if len(req.Tickers) == 0 {
		utils.WriteError(w, h.log, fmt.Errorf("%w: tickers are required", domain.ErrInvalidInput))
		return
	}

	years := h.defaults.HistoryYears
	if req.Years != nil {
		years = *req.Years
	}
	start, end, err := marketdata.ResolveRange(req.Start, req.End, years, h.now())
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}

	rf := h.defaults.RiskFreeRate
	if model == RouteBlackLitterman {
		rf = h.defaults.BLRiskFreeRate
	}
	if req.RiskFreeRate != nil {
		rf = *req.RiskFreeRate
	}

	var result domain.OptimizationResult
	switch model {
	case RouteMeanVariance:
		result, err = h.service.OptimizeMeanVariance(r.Context(), req.Tickers, start, end, rf)
	case RouteRiskParity:
		result, err = h.service.OptimizeRiskParity(r.Context(), req.Tickers, start, end, rf)
	case RouteBlackLitterman:
		result, err = h.service.OptimizeBlackLitterman(r.Context(), req.Tickers, start, end, rf, req.Views)
	}
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, utils.Envelope(map[string]interface{}{
		"model":          model,
		"start":          start,
		"end":            end,
		"risk_free_rate": rf,
		"result":         result,
	}))
}
