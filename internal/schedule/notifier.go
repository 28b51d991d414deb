package schedule

import (
	"context"
	"log/slog"

	"github.com/novacriatura/rota/internal/calendar"
)

// Enqueuer schedules an asynchronous rebuild of a date's view.
type Enqueuer interface {
	EnqueueScheduleRefresh(ctx context.Context, date calendar.Date) error
}

// Notifier invalidates cached views when assignments change and asks the
// worker to rebuild the affected date.
type Notifier struct {
	service  *Service
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewNotifier wires the invalidation hooks. enqueuer may be nil.
func NewNotifier(service *Service, enqueuer Enqueuer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{service: service, enqueuer: enqueuer, logger: logger}
}

// AssignmentsChanged bumps the cache version and enqueues a refresh of date.
func (n *Notifier) AssignmentsChanged(ctx context.Context, date calendar.Date) {
	if err := n.service.Invalidate(ctx); err != nil {
		n.logger.Warn("schedule invalidate failed", slog.String("date", date.String()), slog.Any("error", err))
	}
	if n.enqueuer == nil {
		return
	}
	if err := n.enqueuer.EnqueueScheduleRefresh(ctx, date); err != nil {
		n.logger.Warn("schedule refresh enqueue failed", slog.String("date", date.String()), slog.Any("error", err))
	}
}

// AssignmentsReset bumps the cache version.
func (n *Notifier) AssignmentsReset(ctx context.Context) {
	if err := n.service.Invalidate(ctx); err != nil {
		n.logger.Warn("schedule invalidate failed", slog.Any("error", err))
	}
}
