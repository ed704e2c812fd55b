package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/openfinance/internal/api/middleware"
	"github.com/dvloznov/openfinance/internal/archive"
	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/dvloznov/openfinance/internal/normalize"
	"github.com/dvloznov/openfinance/internal/report"
)

// Archive operations recorded on payload jobs.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	svc      TransactionService
	archiver *archive.Archiver
	errorResponder
}

// NewTransactionsHandler creates a new transactions handler. archiver may be
// nil when raw payloads are not archived.
func NewTransactionsHandler(svc TransactionService, archiver *archive.Archiver, detail bool) *TransactionsHandler {
	return &TransactionsHandler{
		svc:            svc,
		archiver:       archiver,
		errorResponder: errorResponder{detail: detail},
	}
}

// CreateTransaction handles POST /api/transactions and POST /api/transaction
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, "Failed to read request body", err)
		return
	}

	// Bodies are archived before normalization so garbled ones are kept too.
	h.archiver.Enqueue(ctx, OperationCreate, "", body)

	raw, err := normalize.DecodePayload(body)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	draft, err := normalize.Normalize(ctx, raw)
	if err != nil {
		h.fail(w, r, "Invalid transaction", err)
		return
	}

	tx, err := h.svc.Create(ctx, draft)
	if err != nil {
		h.fail(w, r, "Failed to save transaction", err)
		return
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", tx.ID).
		Str("description", tx.Description).
		Bool("mirrored", tx.HasMirror()).
		Msg("Transaction received")

	middleware.WriteSuccess(w, http.StatusCreated, "Transaction saved", tx)
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}

	txs, err := h.svc.List(r.Context(), filters)
	if err != nil {
		h.fail(w, r, "Failed to list transactions", err)
		return
	}

	// Return an empty array rather than null
	if txs == nil {
		txs = []domain.Transaction{}
	}
	middleware.WriteList(w, "Transactions", txs, len(txs))
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get transaction", err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Transaction", tx)
}

// UpdateTransaction handles PATCH and PUT /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, "Failed to read request body", err)
		return
	}

	h.archiver.Enqueue(ctx, OperationUpdate, id, body)

	raw, err := normalize.DecodePayload(body)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	patch, err := normalize.NormalizePatch(ctx, raw)
	if err != nil {
		h.fail(w, r, "Invalid transaction", err)
		return
	}
	if patch.IsEmpty() {
		h.fail(w, r, "Invalid transaction", &domain.ValidationError{Field: "body", Reason: "has no updatable fields"})
		return
	}

	tx, err := h.svc.Update(ctx, id, patch)
	if err != nil {
		h.fail(w, r, "Failed to update transaction", err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Transaction updated", tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete transaction", err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Transaction deleted", map[string]string{"id": id})
}

// Summary handles GET /api/summary
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	monthYear := strings.TrimSpace(r.URL.Query().Get("month_year"))

	txs, err := h.svc.List(r.Context(), domain.Filters{MonthYear: monthYear})
	if err != nil {
		h.fail(w, r, "Failed to build summary", err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Financial summary", report.Summarize(txs))
}

// parseFilters reads list filters from the query string. is_credit_card is
// true only for the literal "true".
func parseFilters(r *http.Request) (domain.Filters, error) {
	query := r.URL.Query()

	filters := domain.Filters{
		MonthYear: strings.TrimSpace(query.Get("month_year")),
		Category:  strings.TrimSpace(query.Get("category")),
	}

	if query.Has("is_credit_card") {
		isCreditCard := strings.EqualFold(strings.TrimSpace(query.Get("is_credit_card")), "true")
		filters.IsCreditCard = &isCreditCard
	}

	var err error
	if filters.Limit, err = parseCount(query.Get("limit"), "limit"); err != nil {
		return domain.Filters{}, err
	}
	if filters.Offset, err = parseCount(query.Get("offset"), "offset"); err != nil {
		return domain.Filters{}, err
	}

	return filters, nil
}

func parseCount(s, field string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: field, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
