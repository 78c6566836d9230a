package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/portfolio-analytics/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "portfolio-analytics",
	}
	if err := s.container.Optimization.Available(); err != nil {
		response["status"] = "degraded"
		response["optimization"] = err.Error()
	}
	if db := s.container.CacheDB; db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := db.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Cache database health check failed")
			response["status"] = "degraded"
			response["cache_database"] = err.Error()
		} else {
			response["cache_database"] = "ok"
		}
	}

	utils.WriteJSON(w, s.log, http.StatusOK, response)
}
