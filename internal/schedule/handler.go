package schedule

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/platform/httpx"
)

// Handler serves programme views.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers GET /schedule.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/schedule", h.handleSchedule)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "query parameter 'date' is required")
		return
	}
	date, err := calendar.Parse(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "invalid date format, use YYYY-MM-DD")
		return
	}
	view, err := h.service.ForDate(r.Context(), date)
	if err != nil {
		h.logger.Error("schedule build failed", slog.String("date", date.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Persistence Failure", "")
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
