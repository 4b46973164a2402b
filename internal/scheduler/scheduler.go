// Package scheduler periodically brings every active subscription's pools
// in line with its product graph.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlepool/internal/clock"
	obsmetrics "github.com/smallbiznis/entitlepool/internal/observability/metrics"
	"github.com/smallbiznis/entitlepool/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobRefreshSubscriptions = "refresh_subscriptions"
	refreshLockKey          = "entitlepool:scheduler:refresh_subscriptions"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Subscriptions subscriptiondomain.Service
	Repo          subscriptiondomain.Repository
	Config        Config              `optional:"true"`
	Locker        *ratelimit.Locker   `optional:"true"`
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	subscriptions subscriptiondomain.Service
	repo          subscriptiondomain.Repository
	locker        *ratelimit.Locker
	metrics       *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Subscriptions == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler"),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		subscriptions: p.Subscriptions,
		repo:          p.Repo,
		locker:        p.Locker,
		metrics:       p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, s.cfg.BatchSize)
	s.logJobStart(ctx, run)

	err := fn(ctx, run)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	elapsed := s.clock.Now().Sub(start)
	switch {
	case err == nil:
		s.metrics.RecordJobRun(ctx, name, "ok", elapsed)
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// Deadline is a soft timeout; the next tick resumes from the start.
		s.metrics.RecordJobRun(ctx, name, "timeout", elapsed)
		s.logger(ctx).Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	default:
		s.metrics.RecordJobRun(ctx, name, "error", elapsed)
		return fmt.Errorf("%s: %w", name, err)
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobRefreshSubscriptions, s.RefreshSubscriptionsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RefreshSubscriptionsJob refreshes every subscription still in effect.
// A failing subscription is logged and skipped. With a locker configured
// only one replica runs the job at a time.
func (s *Scheduler) RefreshSubscriptionsJob(ctx context.Context, run *jobRun) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, refreshLockKey, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			s.logger(ctx).Debug("refresh already running elsewhere")
			return nil
		}
		defer func() {
			_ = s.locker.Release(context.WithoutCancel(ctx), refreshLockKey, token)
		}()
	}

	now := s.clock.Now()
	var after snowflake.ID
	for {
		batch, err := s.repo.ListActiveAfter(ctx, s.db, after, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, sub := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.subscriptions.Refresh(ctx, sub.ID); err != nil {
				run.IncError()
				s.logger(ctx).Error("subscription refresh failed",
					zap.String("subscription_id", sub.ID.String()),
					zap.Error(err),
				)
				continue
			}
			run.AddProcessed(1)
		}

		after = batch[len(batch)-1].ID
		if len(batch) < s.cfg.BatchSize {
			return nil
		}
	}
}
