package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/cache"
	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/middleware"
	"github.com/paywalls-net/filter/services/accesslog"
	"github.com/paywalls-net/filter/services/authorize"
	"github.com/paywalls-net/filter/services/classifier"
	"github.com/paywalls-net/filter/services/detect"
	"github.com/paywalls-net/filter/services/gate"
	"github.com/paywalls-net/filter/services/rules"
	"github.com/paywalls-net/filter/services/vai"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Store  cache.Store

	// Services
	Rules      *rules.Service
	Classifier *classifier.Service
	Detect     *detect.Service
	Authorize  *authorize.Service
	VAI        *vai.Service
	AccessLog  *accesslog.Service
	Gate       *gate.Service

	// Middleware
	FilterMiddleware *middleware.FilterMiddleware

	redisClient *redis.Client
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(_ context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initCache(); err != nil {
		return nil, fmt.Errorf("failed to initialize classification cache: %w", err)
	}

	deps.initServices()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initCache initializes the classification cache backend
func (d *Dependencies) initCache() error {
	switch d.Config.Classifier.CacheBackend {
	case "redis":
		client, err := cache.NewRedisClient(d.Config.Classifier.RedisURL)
		if err != nil {
			return err
		}
		d.redisClient = client
		d.Store = cache.NewRedis(client, d.Config.Classifier.RedisKeyPrefix, d.Config.Service.RulesetTTL)
		d.Logger.Info("classification cache initialized",
			zap.String("backend", "redis"),
			zap.String("prefix", d.Config.Classifier.RedisKeyPrefix))
	default:
		d.Store = cache.NewMemory(d.Config.Classifier.CacheSize, 0)
		d.Logger.Info("classification cache initialized",
			zap.String("backend", "memory"),
			zap.Int("max_size", d.Config.Classifier.CacheSize))
	}
	return nil
}

// initServices wires the pipeline services together
func (d *Dependencies) initServices() {
	d.Rules = rules.New(d.Config, d.Logger)
	d.Classifier = classifier.New(d.Rules, d.Store, d.Logger)
	d.Detect = detect.New(d.Classifier, d.Logger)
	d.Authorize = authorize.New(d.Config, d.Classifier, d.Logger)
	d.VAI = vai.New(d.Config, d.Logger)
	d.AccessLog = accesslog.New(d.Config, accesslog.DefaultConfig(), d.Logger)
	d.Gate = gate.New(d.Config, d.Detect, d.Authorize, d.VAI, d.AccessLog, d.Logger)
	d.FilterMiddleware = middleware.NewFilterMiddleware(d.Gate, d.Config.Signals, d.Logger)

	d.Logger.Info("pipeline services initialized")
}

// Start launches the background pieces: the access log workers and the
// initial ruleset warm-up. The warm-up runs off the request path, so a slow
// or unreachable remote service delays nothing; the first bot check simply
// triggers the fetch itself.
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.AccessLog.Start(); err != nil {
		return fmt.Errorf("failed to start access logger: %w", err)
	}

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), d.Config.Service.HTTPTimeout)
		defer cancel()
		if _, err := d.Rules.RuleSet(warmCtx); err != nil {
			d.Logger.Warn("initial ruleset warm-up failed", zap.Error(err))
		}
	}()

	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.AccessLog != nil && d.AccessLog.GetStats().Started {
		if err := d.AccessLog.Stop(d.Config.Server.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop access logger: %w", err))
		}
	}

	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		} else {
			d.Logger.Info("redis client closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
