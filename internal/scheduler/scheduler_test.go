package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitlepool/internal/clock"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"github.com/smallbiznis/entitlepool/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingRefresher struct {
	refreshed []snowflake.ID
	failOn    map[snowflake.ID]bool
}

func (r *recordingRefresher) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.CreateResponse, error) {
	return nil, errors.New("not used")
}

func (r *recordingRefresher) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return nil, errors.New("not used")
}

func (r *recordingRefresher) Refresh(ctx context.Context, id snowflake.ID) ([]pooldomain.Pool, error) {
	if r.failOn[id] {
		return nil, subscriptiondomain.ErrNotFound
	}
	r.refreshed = append(r.refreshed, id)
	return nil, nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))
	return db
}

func seedSubscription(t *testing.T, db *gorm.DB, id int64, end time.Time) {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:        snowflake.ID(id),
		OwnerID:   1,
		ProductID: "RH001",
		Quantity:  1,
		StartDate: end.AddDate(-1, 0, 0),
		EndDate:   end,
	}
	require.NoError(t, repository.Provide().Insert(context.Background(), db, sub))
}

func newScheduler(t *testing.T, db *gorm.DB, refresher *recordingRefresher, now time.Time, batch int) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s, err := New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.NewFakeClock(now),
		Subscriptions: refresher,
		Repo:          repository.Provide(),
		Config:        Config{BatchSize: batch},
	})
	require.NoError(t, err)
	return s
}

func TestRefreshSubscriptionsJobPagesActiveSubscriptions(t *testing.T) {
	db := setupDB(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	for id := int64(1); id <= 5; id++ {
		seedSubscription(t, db, id, now.AddDate(0, 1, 0))
	}
	seedSubscription(t, db, 6, now.AddDate(0, -1, 0))

	refresher := &recordingRefresher{}
	s := newScheduler(t, db, refresher, now, 2)

	ctx, run := s.newJobRun(context.Background(), jobRefreshSubscriptions, 2)
	require.NoError(t, s.RefreshSubscriptionsJob(ctx, run))

	assert.Equal(t, []snowflake.ID{1, 2, 3, 4, 5}, refresher.refreshed)
	assert.Equal(t, 5, run.processedCount)
	assert.Zero(t, run.errorCount)
}

func TestRefreshSubscriptionsJobSkipsFailures(t *testing.T) {
	db := setupDB(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for id := int64(1); id <= 3; id++ {
		seedSubscription(t, db, id, now.AddDate(0, 1, 0))
	}

	refresher := &recordingRefresher{failOn: map[snowflake.ID]bool{2: true}}
	s := newScheduler(t, db, refresher, now, 10)

	ctx, run := s.newJobRun(context.Background(), jobRefreshSubscriptions, 10)
	require.NoError(t, s.RefreshSubscriptionsJob(ctx, run))

	assert.Equal(t, []snowflake.ID{1, 3}, refresher.refreshed)
	assert.Equal(t, 2, run.processedCount)
	assert.Equal(t, 1, run.errorCount)
}

func TestRunOnceSwallowsTimeouts(t *testing.T) {
	db := setupDB(t)
	s := newScheduler(t, db, &recordingRefresher{}, time.Now(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.runJob(ctx, "cancelled", func(ctx context.Context, run *jobRun) error {
		return ctx.Err()
	}))

	err := s.runJob(context.Background(), "broken", func(ctx context.Context, run *jobRun) error {
		return errors.New("boom")
	})
	assert.ErrorContains(t, err, "broken: boom")
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig().BatchSize, cfg.BatchSize)
	assert.Zero(t, cfg.RunInterval)
}
