package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/novacriatura/rota/internal/assignments"
	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
)

// Source provides the assignments of a date.
type Source interface {
	ForDate(ctx context.Context, date calendar.Date) ([]assignments.Assignment, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, date calendar.Date) ([]assignments.Assignment, error)

// ForDate calls f.
func (f SourceFunc) ForDate(ctx context.Context, date calendar.Date) ([]assignments.Assignment, error) {
	return f(ctx, date)
}

// CacheRecorder receives cache hit/miss observations.
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// Config holds the fixed parts of the programme.
type Config struct {
	Facilitator string
	Time        string
	// CommunalCap caps the communal slot; zero uses the catalog capacity.
	CommunalCap int
}

// Service builds and caches programme views.
type Service struct {
	source   Source
	cache    *Cache
	cfg      Config
	group    singleflight.Group
	recorder CacheRecorder
	logger   *slog.Logger
}

// NewService constructs the projection over source. cache may be nil.
func NewService(source Source, cache *Cache, cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.Time) == "" {
		cfg.Time = DefaultTime
	}
	if cfg.CommunalCap <= 0 {
		cfg.CommunalCap = catalog.MultiCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, cfg: cfg, logger: logger}
}

// WithRecorder attaches a cache metrics recorder.
func (s *Service) WithRecorder(r CacheRecorder) *Service {
	s.recorder = r
	return s
}

// Build projects the assignments of date without touching the cache.
func (s *Service) Build(ctx context.Context, date calendar.Date) (View, error) {
	rows, err := s.source.ForDate(ctx, date)
	if err != nil {
		return View{}, fmt.Errorf("schedule: load %s: %w", date, err)
	}
	return Project(date, rows, s.cfg), nil
}

// Project fills a view from the assignments of date, in insertion order.
func Project(date calendar.Date, rows []assignments.Assignment, cfg Config) View {
	if cfg.CommunalCap <= 0 {
		cfg.CommunalCap = catalog.MultiCapacity
	}
	if strings.TrimSpace(cfg.Time) == "" {
		cfg.Time = DefaultTime
	}
	roles := Roles{Facilitacao: cfg.Facilitator, Comunhao: []string{}}
	for _, a := range rows {
		if a.Date != date {
			continue
		}
		slot, ok := SlotFor(a.RoleID)
		if !ok {
			continue
		}
		switch slot {
		case SlotOracao:
			roles.Oracao = a.Member
		case SlotLouvor:
			roles.Louvor = a.Member
		case SlotDinamica:
			roles.Dinamica = a.Member
		case SlotVisao:
			roles.Visao = a.Member
		case SlotOferta:
			roles.Oferta = a.Member
		case SlotComunhao:
			if len(roles.Comunhao) < cfg.CommunalCap {
				roles.Comunhao = append(roles.Comunhao, a.Member)
			}
		}
	}
	return View{
		Date:    date,
		Weekday: calendar.ShortWeekday(date.Weekday()),
		Time:    cfg.Time,
		Roles:   roles,
	}
}

// ForDate serves the programme of date from the cache, building it on a miss.
// Concurrent misses for the same date share one build.
func (s *Service) ForDate(ctx context.Context, date calendar.Date) (View, error) {
	key, err := s.cache.BuildKey(ctx, keyView(date.String()))
	if err != nil {
		s.logger.Warn("schedule cache unavailable", slog.Any("error", err))
		return s.Build(ctx, date)
	}
	var cached View
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("schedule cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	s.record(hit)
	if hit {
		return cached, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		view, err := s.Build(ctx, date)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(ctx, key, view); err != nil {
			s.logger.Warn("schedule cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return view, nil
	})
	if err != nil {
		return View{}, err
	}
	return v.(View), nil
}

// Refresh rebuilds the view of date and stores it under the version read
// before the build, so a write landing mid-build leaves it under a stale key.
func (s *Service) Refresh(ctx context.Context, date calendar.Date) (View, error) {
	key, err := s.cache.BuildKey(ctx, keyView(date.String()))
	if err != nil {
		return View{}, fmt.Errorf("schedule: cache key: %w", err)
	}
	view, err := s.Build(ctx, date)
	if err != nil {
		return View{}, err
	}
	if err := s.cache.Put(ctx, key, view); err != nil {
		return View{}, fmt.Errorf("schedule: cache write: %w", err)
	}
	return view, nil
}

// Rewarm refreshes the dates returned by upcoming after every published
// version bump until ctx is done. It returns once subscribed; without a
// cache it does nothing.
func (s *Service) Rewarm(ctx context.Context, upcoming func() []calendar.Date) error {
	return s.cache.ListenForInvalidation(ctx, func(version int64) {
		for _, date := range upcoming() {
			if _, err := s.Refresh(ctx, date); err != nil {
				s.logger.Warn("schedule rewarm failed",
					slog.String("date", date.String()),
					slog.Int64("version", version),
					slog.Any("error", err))
			}
		}
	})
}

// Invalidate drops every cached view.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) record(hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCacheLookup(hit)
	}
}
