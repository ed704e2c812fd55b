package handlers

import (
	"net/http"

	"github.com/dvloznov/openfinance/internal/api/middleware"
)

// Router holds the handlers mounted by NewRouter. Jobs may be nil when
// payload archiving is disabled.
type Router struct {
	Transactions *TransactionsHandler
	Diagnostics  *DiagnosticsHandler
	Jobs         *JobsHandler
}

// NewRouter registers every API route on a new ServeMux.
func NewRouter(rt Router) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rt.Diagnostics.Root)
	mux.HandleFunc("GET /health", rt.Diagnostics.Health)
	mux.HandleFunc("GET /api/test-store", rt.Diagnostics.TestStore)
	mux.HandleFunc("GET /api/test-notion", rt.Diagnostics.TestNotion)

	// Transactions endpoints
	mux.HandleFunc("POST /api/transactions", rt.Transactions.CreateTransaction)
	mux.HandleFunc("POST /api/transaction", rt.Transactions.CreateTransaction)
	mux.HandleFunc("GET /api/transactions", rt.Transactions.ListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		rt.Transactions.GetTransaction(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("PATCH /api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		rt.Transactions.UpdateTransaction(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("PUT /api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		rt.Transactions.UpdateTransaction(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		rt.Transactions.DeleteTransaction(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/summary", rt.Transactions.Summary)

	// Jobs endpoints
	if rt.Jobs != nil {
		mux.HandleFunc("GET /api/jobs", rt.Jobs.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			rt.Jobs.GetJob(w, r, r.PathValue("id"))
		})
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Route "+r.URL.Path+" does not exist")
	})

	return mux
}
