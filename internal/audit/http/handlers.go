package audithttp

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/novacriatura/rota/internal/audit"
	"github.com/novacriatura/rota/internal/platform/httpx"
)

// Runner produces an integrity report.
type Runner interface {
	Run(ctx context.Context) (audit.Report, error)
}

// Handler serves integrity reports.
type Handler struct {
	logger  *slog.Logger
	service Runner
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service Runner) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, report); err != nil {
		h.logger.Error("audit export failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"rota-audit.csv\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) (audit.Report, bool) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return audit.Report{}, false
	}
	report, err := h.service.Run(r.Context())
	if err != nil {
		h.logger.Error("audit run failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Persistence Failure", "")
		return audit.Report{}, false
	}
	return report, true
}
