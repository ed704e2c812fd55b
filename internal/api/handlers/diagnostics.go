package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/openfinance/internal/api/middleware"
	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
)

// Version is reported by the root banner.
const Version = "1.0.0"

// DiagnosticsHandler serves the banner, liveness and backend checks.
type DiagnosticsHandler struct {
	checker HealthChecker
	backend string
	errorResponder
}

// NewDiagnosticsHandler creates a diagnostics handler. backend names the
// primary store in responses.
func NewDiagnosticsHandler(checker HealthChecker, backend string, detail bool) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		checker:        checker,
		backend:        backend,
		errorResponder: errorResponder{detail: detail},
	}
}

// Root handles GET /
func (h *DiagnosticsHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message":   "OpenFinance API",
		"version":   Version,
		"status":    "online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health handles GET /health
func (h *DiagnosticsHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// TestStore handles GET /api/test-store
func (h *DiagnosticsHandler) TestStore(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.CheckStore(r.Context()); err != nil {
		h.fail(w, r, "Primary store is unreachable", err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Primary store connection established", map[string]interface{}{
		"connected": true,
		"backend":   h.backend,
	})
}

// TestNotion handles GET /api/test-notion
func (h *DiagnosticsHandler) TestNotion(w http.ResponseWriter, r *http.Request) {
	ok, err := h.checker.CheckMirror(r.Context())

	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		middleware.WriteFailure(w, http.StatusServiceUnavailable, "Notion mirror is not configured", err, h.detail)
	case err != nil:
		h.fail(w, r, "Notion mirror is unreachable", err)
	case !ok:
		log := logger.FromContext(r.Context())
		log.Warn().Msg("Notion database is not reachable")
		middleware.WriteFailure(w, http.StatusBadGateway, "Notion mirror is unreachable", nil, h.detail)
	default:
		middleware.WriteSuccess(w, http.StatusOK, "Notion connection established", map[string]interface{}{
			"connected": true,
		})
	}
}
