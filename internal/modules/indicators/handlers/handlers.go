// Package handlers provides HTTP handlers for indicator KPIs.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/utils"
)

// KPIService is the subset of the indicator engine used by the handlers
type KPIService interface {
	ComputeKPIs(ctx context.Context, tickers []string, start, end string) (map[string]domain.KPISet, error)
}

// Handler handles indicator HTTP requests
type Handler struct {
	service      KPIService
	defaultYears int
	now          func() time.Time
	log          zerolog.Logger
}

// NewHandler creates a new indicators handler
func NewHandler(service KPIService, defaultYears int, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		defaultYears: defaultYears,
		now:          time.Now,
		log:          log.With().Str("handler", "indicators").Logger(),
	}
}

// HandleGetKPIs handles GET /api/kpis
func (h *Handler) HandleGetKPIs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	tickers := utils.ParseCSV(query.Get("tickers"))
	if len(tickers) == 0 {
		utils.WriteError(w, h.log, fmt.Errorf("%w: tickers parameter is required", domain.ErrInvalidInput))
		return
	}

	years := h.defaultYears
	if yearsStr := query.Get("years"); yearsStr != "" {
		parsed, err := strconv.Atoi(yearsStr)
		if err != nil {
			utils.WriteError(w, h.log, fmt.Errorf("%w: years must be an integer", domain.ErrInvalidInput))
			return
		}
		years = parsed
	}

	start, end, err := marketdata.ResolveRange(query.Get("start"), query.Get("end"), years, h.now())
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}

	kpis, err := h.service.ComputeKPIs(r.Context(), tickers, start, end)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, utils.Envelope(map[string]interface{}{
		"start":   start,
		"end":     end,
		"kpis":    kpis,
		"skipped": skipped(tickers, kpis),
	}))
}

// skipped lists requested tickers that produced no KPI set.
func skipped(requested []string, kpis map[string]domain.KPISet) []string {
	out := []string{}
	for _, t := range requested {
		if n, err := marketdata.NormalizeTicker(t); err == nil {
			if _, ok := kpis[n]; !ok {
				out = append(out, n)
			}
		}
	}
	return out
}
