package assignments

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
)

// Repository is the history query surface the allocator reads and writes.
type Repository interface {
	HasAssignment(ctx context.Context, member string, date calendar.Date) (bool, error)
	AssignmentsForDate(ctx context.Context, date calendar.Date) ([]Assignment, error)
	LastAssignmentForMember(ctx context.Context, member string) (Assignment, bool, error)
	AssignmentForMemberAndDate(ctx context.Context, member string, date calendar.Date) (Assignment, bool, error)
	InsertAssignment(ctx context.Context, in InsertParams) (Assignment, error)
	DeleteAllAssignments(ctx context.Context) (int64, error)
	ListAssignments(ctx context.Context) ([]Assignment, error)
}

// Chooser returns an index in [0, n). It is called only with n > 0.
type Chooser func(n int) int

// ChangeNotifier is told about every write so read models can refresh.
type ChangeNotifier interface {
	AssignmentsChanged(ctx context.Context, date calendar.Date)
	AssignmentsReset(ctx context.Context)
}

// Recorder receives allocation outcomes for metrics.
type Recorder interface {
	RecordAllocation(outcome string)
}

// ServiceConfig carries optional collaborators; zero values fall back to defaults.
type ServiceConfig struct {
	Chooser  Chooser
	Now      func() time.Time
	NewID    func() uuid.UUID
	Notifier ChangeNotifier
	Recorder Recorder
	Logger   *slog.Logger
}

// Service is the allocator.
type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	choose   Chooser
	now      func() time.Time
	newID    func() uuid.UUID
	notifier ChangeNotifier
	recorder Recorder
	logger   *slog.Logger
}

// NewService builds the allocator over a store and an immutable catalog.
func NewService(repo Repository, cat *catalog.Catalog, cfg ServiceConfig) *Service {
	s := &Service{
		repo:     repo,
		catalog:  cat,
		choose:   cfg.Chooser,
		now:      cfg.Now,
		newID:    cfg.NewID,
		notifier: cfg.Notifier,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
	if s.choose == nil {
		s.choose = rand.IntN
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Catalog exposes the catalog the service was built with.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Allocate draws a card for req.Member on req.Date and persists it.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (Result, error) {
	result, err := s.allocate(ctx, req)
	outcome := Outcome(err)
	if err == nil && result.IsRepeated {
		outcome = OutcomeRepeated
	}
	if s.recorder != nil {
		s.recorder.RecordAllocation(outcome)
	}
	if err != nil {
		level := slog.LevelInfo
		if errors.Is(err, ErrPersistence) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "allocation rejected",
			slog.String("member", req.Member),
			slog.String("date", req.Date),
			slog.String("outcome", outcome),
			slog.Any("error", err))
		return Result{}, err
	}
	s.logger.Info("card assigned",
		slog.String("member", result.Assignment.Member),
		slog.String("date", result.Assignment.Date.String()),
		slog.String("card", result.Role.ID),
		slog.Bool("repeated", result.IsRepeated))
	if s.notifier != nil {
		s.notifier.AssignmentsChanged(ctx, result.Assignment.Date)
	}
	return result, nil
}

func (s *Service) allocate(ctx context.Context, req AllocateRequest) (Result, error) {
	member := catalog.NormalizeName(req.Member)
	rawDate := strings.TrimSpace(req.Date)
	if member == "" || rawDate == "" {
		return Result{}, newAllocationError(ErrInvalidInput, "fields 'member' and 'date' are required", nil)
	}
	date, err := calendar.Parse(rawDate)
	if err != nil {
		return Result{}, newAllocationError(ErrInvalidInput, "invalid date format, use YYYY-MM-DD", err)
	}

	taken, err := s.repo.HasAssignment(ctx, member, date)
	if err != nil {
		return Result{}, newAllocationError(ErrPersistence, "check existing assignment", err)
	}
	if taken {
		return Result{}, newAllocationError(ErrAlreadyAssigned, "this member already has a card for "+date.String(), nil)
	}

	eligible := s.eligibleRoles(member)
	if len(eligible) == 0 {
		return Result{}, newAllocationError(ErrNoEligibleRole, "no card is configured for "+member, nil)
	}

	existing, err := s.repo.AssignmentsForDate(ctx, date)
	if err != nil {
		return Result{}, newAllocationError(ErrPersistence, "load assignments for date", err)
	}
	available := availableOnDate(eligible, existing)
	if len(available) == 0 {
		return Result{}, newAllocationError(ErrNoCapacityAvailable, "no card left for "+date.String(), nil)
	}

	reference := date.PreviousSameWeekday()
	prior, found, err := s.repo.AssignmentForMemberAndDate(ctx, member, reference)
	if err != nil {
		return Result{}, newAllocationError(ErrPersistence, "load previous assignment", err)
	}
	preferred := available
	if found {
		preferred = withoutRole(available, prior.RoleID)
	}

	pool, repeated := preferred, false
	if len(preferred) == 0 {
		pool, repeated = available, true
	}
	role := pool[s.pick(len(pool))]

	created, err := s.repo.InsertAssignment(ctx, InsertParams{
		ID:        s.newID(),
		Date:      date,
		Member:    member,
		RoleID:    role.ID,
		Capacity:  role.Capacity(),
		CreatedAt: s.now().UTC(),
	})
	switch {
	case errors.Is(err, ErrDuplicateAssignment):
		return Result{}, newAllocationError(ErrAlreadyAssigned, "this member already has a card for "+date.String(), err)
	case errors.Is(err, ErrCapacityExceeded):
		return Result{}, newAllocationError(ErrNoCapacityAvailable, "card "+role.ID+" was taken for "+date.String(), err)
	case err != nil:
		return Result{}, newAllocationError(ErrPersistence, "save assignment", err)
	}
	return Result{Assignment: created, Role: role, IsRepeated: repeated}, nil
}

// eligibleRoles applies the member's allow-list to the catalog, keeping catalog order.
func (s *Service) eligibleRoles(member string) []catalog.Role {
	roles := s.catalog.Roles()
	allowed := s.catalog.AllowedRoleIDs(member)
	if len(allowed) == 0 {
		return roles
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	out := roles[:0]
	for _, role := range roles {
		if _, ok := set[role.ID]; ok {
			out = append(out, role)
		}
	}
	return out
}

// availableOnDate keeps the roles whose per-date capacity is not used up.
func availableOnDate(roles []catalog.Role, existing []Assignment) []catalog.Role {
	used := make(map[string]int, len(existing))
	for _, a := range existing {
		used[a.RoleID]++
	}
	out := make([]catalog.Role, 0, len(roles))
	for _, role := range roles {
		if used[role.ID] < role.Capacity() {
			out = append(out, role)
		}
	}
	return out
}

func withoutRole(roles []catalog.Role, id string) []catalog.Role {
	out := make([]catalog.Role, 0, len(roles))
	for _, role := range roles {
		if role.ID != id {
			out = append(out, role)
		}
	}
	return out
}

func (s *Service) pick(n int) int {
	idx := s.choose(n)
	if idx < 0 || idx >= n {
		return 0
	}
	return idx
}

// Reset deletes the whole history.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteAllAssignments(ctx)
	if err != nil {
		return 0, newAllocationError(ErrPersistence, "reset assignments", err)
	}
	s.logger.Warn("assignments reset", slog.Int64("removed", removed))
	if s.notifier != nil {
		s.notifier.AssignmentsReset(ctx)
	}
	return removed, nil
}

// ForDate returns the assignments of a date in insertion order.
func (s *Service) ForDate(ctx context.Context, date calendar.Date) ([]Assignment, error) {
	rows, err := s.repo.AssignmentsForDate(ctx, date)
	if err != nil {
		return nil, newAllocationError(ErrPersistence, "load assignments for date", err)
	}
	return rows, nil
}

// LastAssignment returns the member's most recent card, if any.
func (s *Service) LastAssignment(ctx context.Context, member string) (Assignment, bool, error) {
	name := catalog.NormalizeName(member)
	if name == "" {
		return Assignment{}, false, newAllocationError(ErrInvalidInput, "field 'member' is required", nil)
	}
	a, ok, err := s.repo.LastAssignmentForMember(ctx, name)
	if err != nil {
		return Assignment{}, false, newAllocationError(ErrPersistence, "load last assignment", err)
	}
	return a, ok, nil
}

// All returns the complete history ordered by date.
func (s *Service) All(ctx context.Context) ([]Assignment, error) {
	rows, err := s.repo.ListAssignments(ctx)
	if err != nil {
		return nil, newAllocationError(ErrPersistence, "list assignments", err)
	}
	return rows, nil
}

// RandomRole draws any card without recording it.
func (s *Service) RandomRole() catalog.Role {
	roles := s.catalog.Roles()
	return roles[s.pick(len(roles))]
}
