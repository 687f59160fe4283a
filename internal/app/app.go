package app

import (
	"context"
	"fmt"
	"time"

	"growzzy/internal/config"
	"growzzy/internal/handlers"
	"growzzy/internal/metrics"
	"growzzy/internal/middleware"
	"growzzy/internal/models"
	"growzzy/internal/services"
	"growzzy/pkg/adplatform"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/oauth2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

// App 组装好的服务依赖
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	DB         *gorm.DB
	Metrics    *metrics.Recorder
	Store      *services.Store
	Connectors *services.ConnectorRegistry
	Notifier   *services.NotifierRouter
	Provider   *services.MetricProvider
	Optimizer  *services.OptimizationEngine
	Dispatcher *services.Dispatcher
	ExecLogger *services.ExecutionLogger
	Scheduler  *services.Scheduler
	Service    *services.AutomationService
	Feed       *services.ExecutionFeed

	nc *nats.Conn
}

// OpenDatabase connects with the configured driver and applies pool settings.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "growzzy.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		dialector = postgres.Open(cfg.Database.PostgresDSN())
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	return db, nil
}

// Migrate creates or updates every table the engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// New opens the database, migrates it and wires the services.
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return NewWithDB(cfg, db, log)
}

// NewWithDB wires the services on an already migrated database.
func NewWithDB(cfg *config.Config, db *gorm.DB, log *logrus.Logger) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{Config: cfg, Logger: log, DB: db, Metrics: metrics.New()}

	a.Store = services.NewStore(db)
	a.Connectors = buildConnectors(cfg.Platforms, a.Metrics, log)
	n, err := buildNotifier(cfg.Notifications, log)
	if err != nil {
		return nil, err
	}
	a.Notifier = n

	a.Provider = services.NewMetricProvider(a.Store, nil)
	a.Optimizer = services.NewOptimizationEngine(a.Store, a.Provider, nil, log)
	a.Dispatcher = services.NewDispatcher(a.Store, a.Connectors, a.Notifier, nil, a.Metrics, log)
	a.ExecLogger = services.NewExecutionLogger(a.Store, nil, log)

	a.Feed = services.NewExecutionFeed(cfg.Security.CORS.AllowedOrigins, nil, log)
	a.ExecLogger.AddObserver(a.Feed)

	if cfg.Events.NATS.Enabled {
		nc, err := services.ConnectNATS(cfg.Events.NATS.URL, cfg.Monitoring.Tracing.ServiceName)
		if err != nil {
			// 事件总线不可用不影响调度
			log.WithError(err).Warn("nats unavailable, execution events disabled")
		} else {
			a.nc = nc
			a.ExecLogger.AddObserver(services.NewEventPublisher(nc, cfg.Events.NATS.SubjectPrefix, log))
		}
	}

	a.Scheduler = services.NewScheduler(a.Store, a.Provider, a.Optimizer, a.Dispatcher, a.ExecLogger, nil,
		services.SchedulerConfig{
			BatchSize:    cfg.Scheduler.BatchSize,
			BatchTimeout: cfg.Scheduler.BatchTimeout,
			Concurrency:  cfg.Scheduler.Concurrency,
		}, a.Metrics, log)
	a.Service = services.NewAutomationService(a.Store, a.Scheduler, a.Dispatcher, nil, log)
	return a, nil
}

func buildConnectors(cfg config.PlatformsConfig, rec *metrics.Recorder, log *logrus.Logger) *services.ConnectorRegistry {
	reg := services.NewConnectorRegistry(cfg.Timeout, services.BreakerConfig{
		MaxFailures:     cfg.CircuitBreaker.MaxFailures,
		ResetTimeout:    cfg.CircuitBreaker.ResetTimeout,
		HalfOpenMaxReqs: cfg.CircuitBreaker.HalfOpenMaxReqs,
	}, rec, log)

	for _, acc := range cfg.Accounts {
		if acc.Mock {
			reg.Register(adplatform.NewMockConnector(acc.Platform))
			continue
		}
		pc := adplatform.DefaultConfig()
		pc.Platform = acc.Platform
		pc.BaseURL = acc.BaseURL
		pc.AccessToken = acc.AccessToken
		if cfg.Timeout > 0 {
			pc.Timeout = cfg.Timeout
		}
		var ts oauth2.TokenSource
		if acc.AccessToken != "" {
			ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: acc.AccessToken, TokenType: "Bearer"})
		}
		reg.Register(adplatform.NewClient(pc, ts, log))
	}
	return reg
}

func buildNotifier(cfg config.NotificationsConfig, log *logrus.Logger) (*services.NotifierRouter, error) {
	r := services.NewNotifierRouter(cfg.DefaultChannel)
	r.Register(services.ChannelLog, services.NewLogNotifier(log))
	if cfg.SendGrid.APIKey != "" {
		r.Register(services.ChannelEmail, services.NewSendGridNotifier(services.EmailConfig{
			APIKey:           cfg.SendGrid.APIKey,
			FromName:         cfg.SendGrid.FromName,
			FromEmail:        cfg.SendGrid.FromEmail,
			DefaultRecipient: cfg.SendGrid.DefaultRecipient,
		}))
	}
	if cfg.Slack.WebhookURL != "" {
		r.Register(services.ChannelSlack, services.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Timeout))
	}
	if cfg.DefaultChannel != "" && cfg.DefaultChannel != services.ChannelLog && !r.Has(cfg.DefaultChannel) {
		return nil, fmt.Errorf("notifications: default channel %q is not configured", cfg.DefaultChannel)
	}
	return r, nil
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Security.CORS))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(a.DB, a.Connectors, a.Feed))
	if cfg.Monitoring.Enabled {
		r.GET(cfg.Monitoring.MetricsPath, gin.WrapH(a.Metrics.Handler()))
	}

	// 外部 cron 触发，只校验共享密钥
	cron := r.Group("/api")
	cron.Use(middleware.CronAuth(cfg.Scheduler.CronSecret))
	handlers.RegisterCronRoutes(cron, handlers.NewCronHandler(a.Service, a.Logger))

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(a.Service, a.Feed, a.Logger))
	handlers.RegisterAssistantRoutes(api, handlers.NewAssistantHandler(a.Service, a.Logger))
	handlers.RegisterInsightRoutes(api, handlers.NewInsightHandler(a.Optimizer, a.Logger))

	return r
}

// Start runs the background loops until ctx ends: the feed hub and, when an
// interval is configured, the in-process scheduler ticker.
func (a *App) Start(ctx context.Context) {
	go a.Feed.Run(ctx)
	if a.Config.Scheduler.Interval > 0 {
		go a.runTicker(ctx, a.Config.Scheduler.Interval)
	}
}

func (a *App) runTicker(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	a.Logger.Infof("in-process scheduler every %s", every)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			summary, err := a.Service.Tick(ctx)
			if err != nil {
				a.Logger.WithError(err).Error("scheduler tick failed")
				continue
			}
			if summary.ProcessedCount > 0 {
				a.Logger.WithFields(logrus.Fields{
					"processed": summary.ProcessedCount,
					"fired":     summary.FiredCount,
					"due":       summary.DueCount,
				}).Info("scheduler tick")
			}
		}
	}
}

// Close releases the bus connection and the database pool.
func (a *App) Close() error {
	if a.nc != nil {
		_ = a.nc.Drain()
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
