package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campus-takeout/internal/config"
	httpapi "campus-takeout/internal/controllers/http"
	"campus-takeout/internal/infra/auth"
	"campus-takeout/internal/infra/cache"
	"campus-takeout/internal/infra/database"
	"campus-takeout/internal/infra/logger"
	"campus-takeout/internal/infra/rabbitmq"
	"campus-takeout/internal/infra/wechatpay"
	"campus-takeout/internal/repository/gormrepo"
	"campus-takeout/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	decimal.MarshalJSONWithoutQuotes = true

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	store := gormrepo.NewStore(db)

	var (
		orderCache cache.OrderCache
		locker     cache.Locker
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		defer rdb.Close()
		orderCache = cache.NewRedisOrderCache(rdb, cfg.Redis.DetailTTL)
		locker = cache.NewRedisLocker(rdb)
	} else {
		zl.Warn("REDIS_ADDR not set, order cache and sweep lock disabled")
	}

	var publisher rabbitmq.PublisherInterface = rabbitmq.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, zl)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	} else {
		zl.Warn("RABBITMQ_URL not set, order events are dropped")
	}

	wechat := wechatpay.NewClient(wechatpay.Config{
		AppID:     cfg.Wechat.AppID,
		MchID:     cfg.Wechat.MchID,
		APIKey:    cfg.Wechat.APIKey,
		NotifyURL: cfg.Wechat.NotifyURL,
		BaseURL:   cfg.Wechat.BaseURL,
		Timeout:   cfg.Wechat.Timeout,
	})

	orders := services.NewOrderService(store, publisher, orderCache, wechat, zl, cfg.Order.PaymentWindow)
	apps := services.NewApplicationService(store, zl)
	scheduler := services.NewExpiryScheduler(orders, locker, services.SchedulerConfig{
		Interval:    cfg.Order.SweepInterval,
		BatchSize:   cfg.Order.SweepBatchSize,
		Concurrency: cfg.Order.SweepConcurrency,
	}, zl)

	if err := httpapi.RegisterValidators(); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(httpapi.RequestLogger(zl), httpapi.Recovery(zl), httpapi.CORS(cfg.CORSOrigins))
	httpapi.NewHandler(orders, apps, auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL), wechat, zl).
		WithHealthCheck(sqlDB.PingContext).
		RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting order service", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		zl.Info("shutting down")

		scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
