package assignments

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
	"github.com/novacriatura/rota/internal/platform/httpx"
)

const (
	writeRateLimit  = 20
	writeRateWindow = time.Minute
)

// ErrResetDisabled is returned when no admin password hash is configured.
var ErrResetDisabled = fmt.Errorf("%w: reset is disabled", httpx.ErrForbidden)

var errWrongPassword = fmt.Errorf("%w: wrong password", httpx.ErrUnauthorized)

var allocationMappings = []httpx.ErrorMapping{
	{Target: ErrInvalidInput, Status: http.StatusBadRequest, Title: "Invalid Input"},
	{Target: ErrNoEligibleRole, Status: http.StatusBadRequest, Title: "No Eligible Card"},
	{Target: ErrAlreadyAssigned, Status: http.StatusConflict, Title: "Already Assigned"},
	{Target: ErrNoCapacityAvailable, Status: http.StatusConflict, Title: "No Card Available"},
}

// Handler exposes the allocator over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validate  *validator.Validate
	adminHash []byte
	limit     int
}

// NewHandler builds the HTTP handler. An empty adminPasswordHash disables reset.
func NewHandler(logger *slog.Logger, service *Service, adminPasswordHash string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validate:  validator.New(),
		adminHash: []byte(strings.TrimSpace(adminPasswordHash)),
		limit:     writeRateLimit,
	}
}

// WithRateLimit overrides the per-client write limit per minute.
func (h *Handler) WithRateLimit(n int) *Handler {
	if n > 0 {
		h.limit = n
	}
	return h
}

// MountRoutes registers the allocator endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.limit, writeRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/assign", h.handleAssign)
		gr.Post("/reset", h.handleReset)
	})
	r.Get("/cards", h.handleCards)
	r.Get("/random", h.handleRandom)
	r.Get("/members", h.handleMembers)
	r.Get("/members/{member}/last", h.handleLast)
	r.Get("/history", h.handleHistory)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "fields 'member' and 'date' are required")
		return
	}
	result, err := h.service.Allocate(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type resetRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if len(h.adminHash) == 0 {
		h.respondError(w, ErrResetDisabled)
		return
	}
	var req resetRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, errWrongPassword)
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.adminHash, []byte(req.Password)); err != nil {
		h.logger.Warn("reset refused", slog.String("remote", r.RemoteAddr))
		httpx.RespondError(w, errWrongPassword)
		return
	}
	removed, err := h.service.Reset(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true, "removed": removed})
}

func (h *Handler) handleCards(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"cards": h.service.Catalog().Roles()})
}

func (h *Handler) handleRandom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	httpx.JSON(w, http.StatusOK, map[string]any{"card": h.service.RandomRole()})
}

type memberView struct {
	Name    string   `json:"name"`
	Allowed []string `json:"allowedCards,omitempty"`
}

func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	cat := h.service.Catalog()
	members := cat.Members()
	out := make([]memberView, 0, len(members))
	for _, name := range members {
		out = append(out, memberView{Name: name, Allowed: cat.AllowedRoleIDs(name)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) handleLast(w http.ResponseWriter, r *http.Request) {
	member := chi.URLParam(r, "member")
	last, ok, err := h.service.LastAssignment(r.Context(), member)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: no card drawn yet for %s", httpx.ErrNotFound, catalog.NormalizeName(member)))
		return
	}
	httpx.JSON(w, http.StatusOK, last)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	var (
		rows []Assignment
		err  error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := calendar.Parse(raw)
		if perr != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "invalid date format, use YYYY-MM-DD")
			return
		}
		rows, err = h.service.ForDate(r.Context(), date)
	} else {
		rows, err = h.service.All(r.Context())
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	if member := catalog.NormalizeName(r.URL.Query().Get("member")); member != "" {
		filtered := make([]Assignment, 0, len(rows))
		for _, a := range rows {
			if a.Member == member {
				filtered = append(filtered, a)
			}
		}
		rows = filtered
	}
	if rows == nil {
		rows = []Assignment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": rows})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrPersistence) {
		h.logger.Error("assignment store failure", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Persistence Failure", "")
		return
	}
	var allocErr *AllocationError
	if errors.As(err, &allocErr) {
		for _, m := range allocationMappings {
			if errors.Is(err, m.Target) {
				httpx.Problem(w, m.Status, m.Title, allocErr.Message)
				return
			}
		}
	}
	httpx.RespondError(w, err, allocationMappings...)
}
