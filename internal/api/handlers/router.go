package handlers

import (
	"net/http"

	"github.com/dvloznov/budget-insights/internal/api/middleware"
	"github.com/dvloznov/budget-insights/internal/jobs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the services behind the HTTP API. Statements may be nil when no
// bucket is configured; the upload route is then not mounted.
type Deps struct {
	Ledger     Ledger
	Analysis   AnalysisResolver
	Exports    ExportBuilder
	Statements StatementUploader
	Jobs       jobs.JobStore

	JWTSecret   string
	RateLimiter *middleware.RateLimiter
	Log         zerolog.Logger
}

// NewRouter builds the API routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS)
	r.Use(chimw.StripSlashes)

	r.Get("/health", Health)
	r.Handle("/metrics", promhttp.Handler())

	transactions := NewTransactionsHandler(d.Ledger, d.Log)
	analysisHandler := NewAnalysisHandler(d.Analysis, d.Log)
	exports := NewExportsHandler(d.Exports, d.Log)
	jobsHandler := NewJobsHandler(d.Jobs, d.Log)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(d.JWTSecret))
		r.Use(d.RateLimiter.Handler)

		// Transactions
		r.Get("/transactions", transactions.ListTransactions)
		r.Delete("/transactions", transactions.DeleteAll)
		r.Post("/transactions/bulk-delete", transactions.BulkDelete)
		r.Post("/expenses", transactions.AddExpense)
		r.Delete("/expenses/{id}", transactions.DeleteExpense)
		r.Post("/income", transactions.AddIncome)
		r.Delete("/income/{id}", transactions.DeleteIncome)

		// Analysis and exports
		r.Get("/analysis", analysisHandler.GetAnalysis)
		r.Post("/exports", exports.CreateExport)

		// Statements and jobs
		if d.Statements != nil {
			statements := NewStatementsHandler(d.Statements, d.Log)
			r.Post("/statements", statements.UploadStatement)
		}
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
