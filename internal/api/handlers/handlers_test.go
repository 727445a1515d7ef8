package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/budget-insights/internal/analysis"
	"github.com/dvloznov/budget-insights/internal/api/handlers"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/export"
	"github.com/dvloznov/budget-insights/internal/gcs"
	"github.com/dvloznov/budget-insights/internal/infra/inmemory"
	"github.com/dvloznov/budget-insights/internal/jobs"
	jobsmem "github.com/dvloznov/budget-insights/internal/jobs/inmemory"
	"github.com/dvloznov/budget-insights/internal/ledger"
	"github.com/dvloznov/budget-insights/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

// MockAnalyzer is a mock implementation of analysis.Analyzer for testing.
type MockAnalyzer struct {
	AnalyzeFunc func(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error)
}

func (m *MockAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return &analysis.ServiceResult{Insights: []string{"ok"}, Recommendations: []string{"ok"}}, nil
}

// MockProcessor is a mock implementation of pipeline.Processor for testing.
type MockProcessor struct {
	ProcessFunc func(ctx context.Context, file pipeline.StatementFile) ([]pipeline.ExtractedTransaction, error)
}

func (m *MockProcessor) Process(ctx context.Context, file pipeline.StatementFile) ([]pipeline.ExtractedTransaction, error) {
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, file)
	}
	return nil, nil
}

type server struct {
	store     *inmemory.Store
	storage   *gcs.MemoryStorage
	jobs      *jobsmem.Store
	analyzer  *MockAnalyzer
	processor *MockProcessor
	handler   http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	clock := func() time.Time { return testNow }

	s := &server{
		store:     inmemory.NewStore(),
		storage:   gcs.NewMemoryStorage(),
		jobs:      jobsmem.NewStore(),
		analyzer:  &MockAnalyzer{},
		processor: &MockProcessor{},
	}
	ledgerSvc := ledger.NewService(s.store, s.store, nil).WithClock(clock)
	builder := export.NewBuilder(s.store, s.store, s.storage, "bucket").WithClock(clock)
	analysisSvc := analysis.NewService(s.store, s.store, s.store, builder, s.analyzer, analysis.DefaultTTL).WithClock(clock)
	statements := pipeline.NewService(s.storage, "bucket", s.processor, ledgerSvc, nil).WithClock(clock)

	s.handler = handlers.NewRouter(handlers.Deps{
		Ledger:     ledgerSvc,
		Analysis:   analysisSvc,
		Exports:    builder,
		Statements: statements,
		Jobs:       s.jobs,
		Log:        zerolog.Nop(),
	})
	return s
}

func (s *server) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAPIRequiresUser(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/api/transactions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAddExpense(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "numeric amount",
			body:       `{"amount": 12.5, "category": "Food", "description": "lunch", "date": "2024-06-14"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "string amount",
			body:       `{"amount": "40", "category": "Transport", "date": "2024-06-14"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing amount",
			body:       `{"category": "Food", "date": "2024-06-14"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "amount is required",
		},
		{
			name:       "bad date",
			body:       `{"amount": 3, "category": "Food", "date": "14/06/2024"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "date must be in YYYY-MM-DD format",
		},
		{
			name:       "malformed json",
			body:       `{"amount":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			rec := s.do(t, http.MethodPost, "/api/expenses", "u1", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantError != "" {
				var body map[string]string
				decode(t, rec, &body)
				if body["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", body["error"], tt.wantError)
				}
				return
			}

			var result ledger.MutationResult
			decode(t, rec, &result)
			if result.Message != "Expense added successfully" || result.Transaction == nil {
				t.Errorf("result = %+v", result)
			}
		})
	}
}

func TestListAndDelete(t *testing.T) {
	s := newServer(t)

	s.do(t, http.MethodPost, "/api/expenses", "u1", `{"amount": 10, "category": "Food", "date": "2024-06-10"}`)
	rec := s.do(t, http.MethodPost, "/api/income", "u1", `{"amount": 1000, "category": "Salary", "date": "2024-06-12"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add income status = %d", rec.Code)
	}
	var added ledger.MutationResult
	decode(t, rec, &added)

	rec = s.do(t, http.MethodGet, "/api/transactions", "u1", nil)
	var list struct {
		Transactions []domain.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 2 || list.Transactions[0].Kind != domain.KindIncome {
		t.Fatalf("list = %+v", list)
	}

	if rec := s.do(t, http.MethodGet, "/api/transactions", "u2", nil); !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("other user sees %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodDelete, "/api/income/"+added.Transaction.ID, "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodDelete, "/api/income/"+added.Transaction.ID, "u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestBulkDeleteAndDeleteAll(t *testing.T) {
	s := newServer(t)
	var ids []string
	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, "/api/expenses", "u1", `{"amount": 1, "category": "Food", "date": "2024-06-01"}`)
		var r ledger.MutationResult
		decode(t, rec, &r)
		ids = append(ids, r.Transaction.ID)
	}
	s.do(t, http.MethodPost, "/api/income", "u1", `{"amount": 5, "category": "Gift", "date": "2024-06-02"}`)

	rec := s.do(t, http.MethodPost, "/api/transactions/bulk-delete", "u1", map[string][]string{"expenseIds": ids[:2]})
	var result ledger.MutationResult
	decode(t, rec, &result)
	if rec.Code != http.StatusOK || result.Message != "Successfully deleted 2 transactions" {
		t.Fatalf("bulk delete = %d %+v", rec.Code, result)
	}

	rec = s.do(t, http.MethodPost, "/api/transactions/bulk-delete", "u1", map[string][]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty bulk delete status = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/transactions", "u1", nil)
	decode(t, rec, &result)
	if result.Message != "Successfully deleted 2 transactions" {
		t.Errorf("delete all = %+v", result)
	}
}

func TestGetAnalysisNeverFails(t *testing.T) {
	s := newServer(t)
	s.analyzer.AnalyzeFunc = func(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error) {
		return nil, errors.New("analysis service unavailable")
	}

	rec := s.do(t, http.MethodGet, "/api/analysis", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Analysis-Source"); got != string(analysis.SourceFallback) {
		t.Errorf("source = %q, want fallback", got)
	}
	var snap domain.AnalysisSnapshot
	decode(t, rec, &snap)
	if len(snap.Insights) == 0 || len(snap.Recommendations) == 0 {
		t.Errorf("fallback snapshot missing texts: %+v", snap)
	}
}

func TestGetAnalysisServesCache(t *testing.T) {
	s := newServer(t)
	calls := 0
	s.analyzer.AnalyzeFunc = func(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error) {
		calls++
		return &analysis.ServiceResult{Insights: []string{"spend less"}, Recommendations: []string{"save more"}}, nil
	}

	first := s.do(t, http.MethodGet, "/api/analysis", "u1", nil)
	second := s.do(t, http.MethodGet, "/api/analysis", "u1", nil)
	if calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1", calls)
	}
	if first.Header().Get("X-Analysis-Source") != string(analysis.SourceService) ||
		second.Header().Get("X-Analysis-Source") != string(analysis.SourceCache) {
		t.Errorf("sources = %q, %q", first.Header().Get("X-Analysis-Source"), second.Header().Get("X-Analysis-Source"))
	}

	s.do(t, http.MethodGet, "/api/analysis?refresh=true", "u1", nil)
	if calls != 2 {
		t.Errorf("forced refresh calls = %d, want 2", calls)
	}
}

func TestCreateExport(t *testing.T) {
	s := newServer(t)
	s.do(t, http.MethodPost, "/api/expenses", "u1", `{"amount": 9.99, "category": "Food", "date": "2024-06-01"}`)

	rec := s.do(t, http.MethodPost, "/api/exports", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Object string `json:"object"`
		Rows   int    `json:"rows"`
	}
	decode(t, rec, &body)
	if body.Object != export.ObjectPath("u1") || body.Rows != 1 {
		t.Errorf("export = %+v", body)
	}
	if _, ok := s.storage.Object("bucket", export.ObjectPath("u1")); !ok {
		t.Error("export object not written")
	}
}

func TestUploadStatementInline(t *testing.T) {
	s := newServer(t)
	s.processor.ProcessFunc = func(ctx context.Context, file pipeline.StatementFile) ([]pipeline.ExtractedTransaction, error) {
		return []pipeline.ExtractedTransaction{
			{Type: "expense", Amount: decimal.NewFromInt(20), Category: "Food", Date: "2024-06-01"},
			{Type: "income", Amount: decimal.NewFromInt(500), Category: "Salary", Date: "2024-06-02"},
		}, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "june.csv")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write([]byte("date,amount\n2024-06-01,-20\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	var job jobs.Job
	decode(t, rec, &job)
	if job.Imported != 2 || job.Status != jobs.JobStatusCompleted {
		t.Errorf("job = %+v", job)
	}

	expenses, _ := s.store.ListTransactions(context.Background(), "u1", domain.KindExpense)
	if len(expenses) != 1 {
		t.Errorf("expenses = %d, want 1", len(expenses))
	}
}

func TestUploadStatementRequiresFile(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/statements", "u1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestJobsAreScopedToUser(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	for _, j := range []*jobs.Job{
		{JobID: "j1", Type: jobs.JobTypeRebuildExport, UserID: "u1", Status: jobs.JobStatusCompleted, CreatedAt: testNow},
		{JobID: "j2", Type: jobs.JobTypeProcessStatement, UserID: "u1", Status: jobs.JobStatusFailed, CreatedAt: testNow.Add(time.Minute)},
		{JobID: "j3", Type: jobs.JobTypeRebuildExport, UserID: "u2", Status: jobs.JobStatusCompleted, CreatedAt: testNow},
	} {
		if err := s.jobs.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob() error = %v", err)
		}
	}

	rec := s.do(t, http.MethodGet, "/api/jobs", "u1", nil)
	var list struct {
		Jobs  []jobs.Job `json:"jobs"`
		Count int        `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 2 || list.Jobs[0].JobID != "j2" {
		t.Errorf("list = %+v", list)
	}

	rec = s.do(t, http.MethodGet, "/api/jobs?status=completed", "u1", nil)
	decode(t, rec, &list)
	if list.Count != 1 || list.Jobs[0].JobID != "j1" {
		t.Errorf("filtered list = %+v", list)
	}

	tests := []struct {
		id   string
		want int
	}{
		{"j1", http.StatusOK},
		{"j3", http.StatusNotFound},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := s.do(t, http.MethodGet, "/api/jobs/"+tt.id, "u1", nil); rec.Code != tt.want {
			t.Errorf("GET /api/jobs/%s status = %d, want %d", tt.id, rec.Code, tt.want)
		}
	}
}
