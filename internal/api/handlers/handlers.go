// Package handlers implements the HTTP API over the sync orchestrator.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/openfinance/internal/api/middleware"
	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
)

// TransactionService is the part of *orchestrator.Orchestrator the
// transaction endpoints use.
type TransactionService interface {
	Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error)
	Get(ctx context.Context, id string) (domain.Transaction, error)
	List(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error)
	Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error)
	Delete(ctx context.Context, id string) error
}

// HealthChecker is the part of *orchestrator.Orchestrator the diagnostics
// endpoints use.
type HealthChecker interface {
	CheckStore(ctx context.Context) error
	CheckMirror(ctx context.Context) (bool, error)
}

// errorResponder writes failures, with error text only in development.
type errorResponder struct {
	detail bool
}

// fail maps err to a status code and writes it. message is used for
// failures the client cannot act on.
func (e errorResponder) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		maxBytesErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validationErr):
		// Validation messages are meant for the client.
		middleware.WriteFailure(w, http.StatusBadRequest, validationErr.Error(), err, e.detail)
	case errors.As(err, &notFoundErr):
		middleware.WriteFailure(w, http.StatusNotFound, "Transaction not found", err, e.detail)
	case errors.As(err, &maxBytesErr):
		middleware.WriteFailure(w, http.StatusRequestEntityTooLarge, "Request body too large", err, e.detail)
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg(message)
		middleware.WriteFailure(w, http.StatusInternalServerError, message, err, e.detail)
	}
}
