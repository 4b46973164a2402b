package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/observability"
	obsmiddleware "github.com/smallbiznis/entitlepool/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/entitlepool/internal/observability/metrics"
	obstracing "github.com/smallbiznis/entitlepool/internal/observability/tracing"
	"github.com/smallbiznis/entitlepool/internal/owner"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	"github.com/smallbiznis/entitlepool/internal/pool"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	"github.com/smallbiznis/entitlepool/internal/product"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/internal/ratelimit"
	"github.com/smallbiznis/entitlepool/internal/resolver"
	"github.com/smallbiznis/entitlepool/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	owner.Module,
	product.Module,
	resolver.Module,
	pool.Module,
	subscription.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	resolver        *resolver.Resolver
	ownerSvc        ownerdomain.Service
	productSvc      productdomain.Service
	poolSvc         pooldomain.Service
	subscriptionSvc subscriptiondomain.Service
	limiter         *ratelimit.EntitleLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	Resolver        *resolver.Resolver
	OwnerSvc        ownerdomain.Service
	ProductSvc      productdomain.Service
	PoolSvc         pooldomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Limiter         *ratelimit.EntitleLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		resolver:        p.Resolver,
		ownerSvc:        p.OwnerSvc,
		productSvc:      p.ProductSvc,
		poolSvc:         p.PoolSvc,
		subscriptionSvc: p.SubscriptionSvc,
		limiter:         p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/owners", s.ListOwners)
	api.POST("/owners", s.CreateOwner)
	api.GET("/owners/:key", s.GetOwner)

	api.GET("/owners/:key/products", s.ListProducts)
	api.POST("/owners/:key/products", s.CreateProduct)
	api.GET("/owners/:key/products/:product_id", s.GetProduct)
	api.GET("/products/:uuid", s.GetProductByUUID)

	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions/:id", s.GetSubscription)
	api.POST("/subscriptions/:id/refresh", s.RefreshSubscription)
	api.GET("/subscriptions/:id/pools", s.ListSubscriptionPools)

	api.POST("/pools", s.CreatePool)
	api.GET("/pools/:id", s.GetPool)
	api.POST("/pools/:id/entitlements", s.Entitle)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
