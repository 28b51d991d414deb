package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/novacriatura/rota/internal/audit"
	"github.com/novacriatura/rota/internal/calendar"
)

type stubRunner struct {
	report audit.Report
	err    error
}

func (s stubRunner) Run(context.Context) (audit.Report, error) {
	return s.report, s.err
}

func newRouter(runner Runner) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, runner).MountRoutes(r)
	return r
}

func TestReportServedAsJSON(t *testing.T) {
	report := audit.Report{
		Counts: map[string]int{audit.KindUnknownCard: 1},
		Findings: []audit.Finding{{
			Kind: audit.KindUnknownCard, Severity: audit.SeverityError,
			Date: calendar.MustParse("2026-03-07"), Member: "Bruno", RoleID: "x", Detail: "card \"x\" is not in the catalog",
		}},
	}
	rr := httptest.NewRecorder()
	newRouter(stubRunner{report: report}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got audit.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Findings) != 1 || got.Findings[0].Date.String() != "2026-03-07" {
		t.Fatalf("unexpected findings: %+v", got.Findings)
	}
}

func TestExportServedAsCSV(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(stubRunner{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rr.Body.String(), "Date,Severity,Kind") {
		t.Fatalf("missing header row: %q", rr.Body.String())
	}
}

func TestExportIsRateLimited(t *testing.T) {
	router := newRouter(stubRunner{})
	var last int
	for i := 0; i <= rateLimit; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d requests, got %d", rateLimit, last)
	}
}

func TestRunFailureIsServerError(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(stubRunner{err: errors.New("down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
