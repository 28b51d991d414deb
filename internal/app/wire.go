package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/novacriatura/rota/internal/assignments"
	"github.com/novacriatura/rota/internal/audit"
	"github.com/novacriatura/rota/internal/catalog"
	"github.com/novacriatura/rota/internal/observability"
	platformcache "github.com/novacriatura/rota/internal/platform/cache"
	"github.com/novacriatura/rota/internal/schedule"
	"github.com/novacriatura/rota/jobs"
)

// Services is the object graph shared by the server, the worker and the CLI.
type Services struct {
	Catalog     *catalog.Catalog
	Store       *Store
	Redis       *redis.Client
	Jobs        *jobs.Client
	Schedules   *schedule.Service
	Assignments *assignments.Service
	Audit       *audit.Service
}

// BuildOptions tunes which collaborators Build attaches.
type BuildOptions struct {
	Metrics *observability.Metrics
	// Enqueue enables refresh jobs after each write when Redis answers.
	Enqueue bool
}

// Build opens the store, connects Redis when reachable and wires the services.
// Redis is optional: without it views are built on every read and no refresh
// jobs are enqueued.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, opts BuildOptions) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc := &Services{Catalog: cat, Store: store}

	var cache *schedule.Cache
	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, schedule cache disabled", slog.Any("error", err))
	} else {
		svc.Redis = redisClient
		cache = schedule.NewCache(redisClient, cfg.ScheduleCacheTTL)
	}

	svc.Schedules = schedule.NewService(
		schedule.SourceFunc(store.Repo.AssignmentsForDate),
		cache,
		schedule.Config{Facilitator: cfg.ScheduleFacilitator, Time: cfg.ScheduleTime},
		logger,
	)
	if opts.Metrics != nil {
		svc.Schedules.WithRecorder(opts.Metrics)
	}

	var enqueuer schedule.Enqueuer
	if opts.Enqueue && svc.Redis != nil {
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn("job client unavailable", slog.Any("error", err))
		} else {
			svc.Jobs = client
			enqueuer = client
		}
	}

	serviceCfg := assignments.ServiceConfig{
		Notifier: schedule.NewNotifier(svc.Schedules, enqueuer, logger),
		Logger:   logger,
	}
	if opts.Metrics != nil {
		serviceCfg.Recorder = opts.Metrics
	}
	svc.Assignments = assignments.NewService(store.Repo, cat, serviceCfg)
	svc.Audit = audit.NewService(svc.Assignments, cat)
	return svc, nil
}

// Close releases every connection Build opened.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Jobs != nil {
		errs = append(errs, s.Jobs.Close())
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}
