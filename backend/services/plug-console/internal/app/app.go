package app

import (
	"context"
	"database/sql"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "smartplug/backend/libs/redis"
	"smartplug/backend/services/plug-console/internal/chart"
	"smartplug/backend/services/plug-console/internal/config"
	"smartplug/backend/services/plug-console/internal/console"
	"smartplug/backend/services/plug-console/internal/db"
	httpserver "smartplug/backend/services/plug-console/internal/http"
	"smartplug/backend/services/plug-console/internal/http/handlers"
	"smartplug/backend/services/plug-console/internal/http/middleware"
	"smartplug/backend/services/plug-console/internal/password"
	"smartplug/backend/services/plug-console/internal/redisstore"
	"smartplug/backend/services/plug-console/internal/repository"
	"smartplug/backend/services/plug-console/internal/service"
	"smartplug/backend/services/plug-console/internal/session"
)

// App wires plug console dependencies.
type App struct {
	server   *httpserver.Server
	consoles *console.Manager
	db       *sql.DB
	redis    *goredis.Client
	logger   *zap.Logger
}

// New constructs application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.NewPostgres(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(ctx, libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	userRepo := repository.NewUserRepository(sqlDB)
	deviceRepo := repository.NewDeviceRepository(sqlDB)
	tariffRepo := repository.NewTariffRepository(sqlDB)
	selections := redisstore.NewActiveDeviceStore(redisClient, cfg.Redis.SelectionTTL)

	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiration())
	authSvc := service.NewAuthService(userRepo, password.NewBcryptHasher(0), tokenSvc, logger)
	deviceSvc := service.NewDeviceService(deviceRepo, selections, logger)
	tariffSvc := service.NewTariffService(tariffRepo, cfg.Tariff.DefaultRate, logger)

	consoles := console.NewManager(console.Config{
		Dialer: session.NewWSDialer(cfg.Device.DialTimeout),
		Session: session.Options{
			WriteTimeout: cfg.Device.WriteTimeout,
			PingInterval: cfg.Device.PingInterval,
			UpdateBuffer: cfg.Device.UpdateBuffer,
		},
		Devices:     deviceSvc,
		Rates:       tariffSvc,
		Aggregator:  chart.NewAggregator(loc),
		Logger:      logger,
		IdleTimeout: cfg.Console.IdleTimeout,
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandlers:    handlers.NewAuthHandlers(authSvc, logger),
		DeviceHandlers:  handlers.NewDeviceHandlers(deviceSvc, consoles, logger),
		ConsoleHandlers: handlers.NewConsoleHandlers(consoles, deviceSvc, logger),
		StreamHandler:   handlers.NewStreamHandler(consoles, cfg.Device.WriteTimeout, logger),
		HealthHandler:   handlers.NewHealthHandler(),
	}, middleware.AuthMiddleware(tokenSvc))

	server := httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	return &App{
		server:   server,
		consoles: consoles,
		db:       sqlDB,
		redis:    redisClient,
		logger:   logger,
	}, nil
}

// Run serves HTTP traffic until ctx is cancelled, then closes every live device session.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.consoles.Start(ctx)
	}()

	err := a.server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Close releases acquired resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
