package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlepool/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyEntitleConsumer = "entitlepool:entitle:consumer:%s"
	keyEntitlePoolLock = "entitlepool:entitle:pool:%s"
)

// ErrPoolBusy is returned when another request holds the pool's entitlement lock.
var ErrPoolBusy = errors.New("pool_busy")

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// EntitleLimiter throttles entitlement requests per consumer and serializes
// them per pool across replicas. A disabled limiter allows everything.
type EntitleLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewEntitleLimiter(p Params) (*EntitleLimiter, error) {
	cfg := p.Cfg.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		return nil, errors.New("rate limiting requires REDIS_ADDR")
	}
	if cfg.EntitleRate <= 0 || cfg.EntitleBurst <= 0 {
		return nil, errors.New("entitle rate limit must be positive")
	}

	p.Log.Named("ratelimit").Info("entitlement rate limit enabled",
		zap.Float64("rate", cfg.EntitleRate),
		zap.Int("burst", cfg.EntitleBurst),
	)
	return &EntitleLimiter{
		bucket:  NewTokenBucket(p.Redis),
		locker:  NewLocker(p.Redis),
		rate:    cfg.EntitleRate,
		burst:   cfg.EntitleBurst,
		lockTTL: cfg.PoolLockTTL,
	}, nil
}

func (l *EntitleLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *EntitleLimiter) AllowConsumer(ctx context.Context, consumerUUID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyEntitleConsumer, strings.TrimSpace(consumerUUID)), l.rate, l.burst)
}

// LockPool holds the pool's entitlement lock until the returned release func
// is called.
func (l *EntitleLimiter) LockPool(ctx context.Context, poolID string) (func(), error) {
	if !l.Enabled() {
		return func() {}, nil
	}

	key := fmt.Sprintf(keyEntitlePoolLock, poolID)
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolBusy
	}
	return func() {
		_ = l.locker.Release(context.WithoutCancel(ctx), key, token)
	}, nil
}
