package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/budget-insights/internal/analysis"
	"github.com/dvloznov/budget-insights/internal/api/middleware"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/export"
	"github.com/dvloznov/budget-insights/internal/ledger"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Ledger is the mutation surface the transaction endpoints need.
type Ledger interface {
	AddExpense(ctx context.Context, userID string, in ledger.Input) (*ledger.MutationResult, error)
	AddIncome(ctx context.Context, userID string, in ledger.Input) (*ledger.MutationResult, error)
	DeleteExpense(ctx context.Context, userID, id string) (*ledger.MutationResult, error)
	DeleteIncome(ctx context.Context, userID, id string) (*ledger.MutationResult, error)
	BulkDelete(ctx context.Context, userID string, expenseIDs, incomeIDs []string) (*ledger.MutationResult, error)
	DeleteAll(ctx context.Context, userID string) (*ledger.MutationResult, error)
	List(ctx context.Context, userID string) ([]*domain.Transaction, error)
}

// AnalysisResolver serves cached or recomputed analyses.
type AnalysisResolver interface {
	Resolve(ctx context.Context, userID string, forceRefresh bool) (*analysis.Outcome, error)
}

// ExportBuilder rebuilds the consolidated CSV export.
type ExportBuilder interface {
	Build(ctx context.Context, userID string) (*export.BuildResult, error)
}

var (
	_ Ledger           = (*ledger.Service)(nil)
	_ AnalysisResolver = (*analysis.Service)(nil)
	_ ExportBuilder    = (*export.Builder)(nil)
)

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(l Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		ledger: l,
		log:    log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	txs, err := h.ledger.List(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		middleware.WriteServiceError(w, err, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// AddExpense handles POST /api/expenses
func (h *TransactionsHandler) AddExpense(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.ledger.AddExpense, "Failed to add expense")
}

// AddIncome handles POST /api/income
func (h *TransactionsHandler) AddIncome(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.ledger.AddIncome, "Failed to add income")
}

type addFunc func(ctx context.Context, userID string, in ledger.Input) (*ledger.MutationResult, error)

func (h *TransactionsHandler) add(w http.ResponseWriter, r *http.Request, add addFunc, failure string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var in ledger.Input
	if err := decodeInput(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := add(ctx, userID, in)
	if err != nil {
		h.logFailure(err, userID, failure)
		middleware.WriteServiceError(w, err, failure)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, result)
}

// decodeInput accepts amount as either a JSON number or a string.
func decodeInput(r *http.Request, in *ledger.Input) error {
	var raw struct {
		Amount      json.RawMessage `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        string          `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return err
	}

	amount := strings.TrimSpace(string(raw.Amount))
	if strings.HasPrefix(amount, `"`) {
		if err := json.Unmarshal(raw.Amount, &amount); err != nil {
			return err
		}
	}
	if amount == "null" {
		amount = ""
	}

	*in = ledger.Input{
		Amount:      amount,
		Category:    raw.Category,
		Description: raw.Description,
		Date:        raw.Date,
	}
	return nil
}

// DeleteExpense handles DELETE /api/expenses/{id}
func (h *TransactionsHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	h.deleteOne(w, r, h.ledger.DeleteExpense)
}

// DeleteIncome handles DELETE /api/income/{id}
func (h *TransactionsHandler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	h.deleteOne(w, r, h.ledger.DeleteIncome)
}

func (h *TransactionsHandler) deleteOne(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, userID, id string) (*ledger.MutationResult, error)) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)
	id := chi.URLParam(r, "id")

	result, err := del(ctx, userID, id)
	if err != nil {
		h.logFailure(err, userID, "Failed to delete transaction")
		middleware.WriteServiceError(w, err, "Failed to delete transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// BulkDelete handles POST /api/transactions/bulk-delete
func (h *TransactionsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		ExpenseIDs []string `json:"expenseIds"`
		IncomeIDs  []string `json:"incomeIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.ledger.BulkDelete(ctx, userID, req.ExpenseIDs, req.IncomeIDs)
	if err != nil {
		h.logFailure(err, userID, "Failed to delete transactions")
		middleware.WriteServiceError(w, err, "Failed to delete transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// DeleteAll handles DELETE /api/transactions
func (h *TransactionsHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	result, err := h.ledger.DeleteAll(ctx, userID)
	if err != nil {
		h.logFailure(err, userID, "Failed to delete transactions")
		middleware.WriteServiceError(w, err, "Failed to delete transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *TransactionsHandler) logFailure(err error, userID, msg string) {
	ev := h.log.Error()
	if middleware.StatusFor(err) < http.StatusInternalServerError {
		ev = h.log.Debug()
	}
	ev.Err(err).Str("user_id", userID).Msg(msg)
}

// AnalysisHandler serves the cached analysis.
type AnalysisHandler struct {
	resolver AnalysisResolver
	log      zerolog.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(resolver AnalysisResolver, log zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		resolver: resolver,
		log:      log,
	}
}

// GetAnalysis handles GET /api/analysis?refresh=true
// Upstream failures are absorbed by the resolver, so only a missing user
// can fail the request.
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)
	refresh := r.URL.Query().Get("refresh") == "true"

	out, err := h.resolver.Resolve(ctx, userID, refresh)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	log := logger.FromContext(ctx)
	for _, warn := range out.Warnings {
		log.Warn().Err(warn).Str("user_id", userID).Msg("analysis degraded")
	}

	w.Header().Set("X-Analysis-State", string(out.State))
	w.Header().Set("X-Analysis-Source", string(out.Source))
	middleware.WriteJSON(w, http.StatusOK, out.Snapshot)
}

// ExportsHandler rebuilds exports on demand.
type ExportsHandler struct {
	builder ExportBuilder
	log     zerolog.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(builder ExportBuilder, log zerolog.Logger) *ExportsHandler {
	return &ExportsHandler{
		builder: builder,
		log:     log,
	}
}

// CreateExport handles POST /api/exports
func (h *ExportsHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	result, err := h.builder.Build(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to build export")
		if middleware.StatusFor(err) == http.StatusBadRequest {
			middleware.WriteServiceError(w, err, "Failed to build export")
			return
		}
		middleware.WriteError(w, http.StatusBadGateway, "Failed to build export")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"url":      result.URL,
		"object":   result.Object,
		"rows":     result.Rows,
		"degraded": result.Degraded,
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
