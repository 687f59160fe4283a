package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"growzzy/internal/models"
	"growzzy/pkg/adplatform"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// 内存库每个连接独立，固定单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeClock settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t.UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// engine bundles a fully wired pipeline on an in-memory database.
type engine struct {
	db         *gorm.DB
	store      *Store
	clock      *fakeClock
	mock       *adplatform.MockConnector
	connectors *ConnectorRegistry
	notifier   *recordingNotifier
	provider   *MetricProvider
	optimizer  *OptimizationEngine
	dispatcher *Dispatcher
	execLogger *ExecutionLogger
	scheduler  *Scheduler
	service    *AutomationService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	e := &engine{db: newTestDB(t), clock: newFakeClock(testNow), notifier: &recordingNotifier{}}
	log := quietLogger()
	e.store = NewStore(e.db)
	e.mock = adplatform.NewMockConnector("meta")
	e.connectors = NewConnectorRegistry(200*time.Millisecond, BreakerConfig{MaxFailures: 100}, nil, log)
	e.connectors.Register(e.mock)
	e.provider = NewMetricProvider(e.store, e.clock)
	e.optimizer = NewOptimizationEngine(e.store, e.provider, e.clock, log)
	e.dispatcher = NewDispatcher(e.store, e.connectors, e.notifier, e.clock, nil, log)
	e.execLogger = NewExecutionLogger(e.store, e.clock, log)
	e.scheduler = NewScheduler(e.store, e.provider, e.optimizer, e.dispatcher, e.execLogger, e.clock,
		SchedulerConfig{BatchSize: 50, BatchTimeout: 5 * time.Second, Concurrency: 2}, nil, log)
	e.service = NewAutomationService(e.store, e.scheduler, e.dispatcher, e.clock, log)
	return e
}

func (e *engine) seedCampaign(t *testing.T, c models.Campaign) *models.Campaign {
	t.Helper()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.UserID == "" {
		c.UserID = "user-1"
	}
	if c.Status == "" {
		c.Status = models.CampaignActive
	}
	if c.Name == "" {
		c.Name = "Spring Sale"
	}
	if err := e.db.Create(&c).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return &c
}

func (e *engine) seedAutomation(t *testing.T, a models.Automation) *models.Automation {
	t.Helper()
	if a.UserID == "" {
		a.UserID = "user-1"
	}
	if a.Name == "" {
		a.Name = "rule"
	}
	if a.NextRunAt == nil {
		due := e.clock.Now().Add(-time.Minute)
		a.NextRunAt = &due
	}
	if err := e.store.CreateAutomation(context.Background(), &a); err != nil {
		t.Fatalf("seed automation: %v", err)
	}
	return &a
}

func (e *engine) seedSnapshots(t *testing.T, entityID, metric string, newestFirst []float64) {
	t.Helper()
	day := e.clock.Now().Truncate(24 * time.Hour)
	for i, v := range newestFirst {
		s := models.MetricSnapshot{EntityID: entityID, Metric: metric, Value: v, PeriodDate: day.AddDate(0, 0, -i)}
		if err := e.db.Create(&s).Error; err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}
}

func (e *engine) reloadCampaign(t *testing.T, id string) models.Campaign {
	t.Helper()
	var c models.Campaign
	if err := e.db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	return c
}

func (e *engine) reloadAutomation(t *testing.T, id string) models.Automation {
	t.Helper()
	var a models.Automation
	if err := e.db.First(&a, "id = ?", id).Error; err != nil {
		t.Fatalf("reload automation: %v", err)
	}
	return a
}

func (e *engine) executions(t *testing.T, automationID string) []models.AutomationExecution {
	t.Helper()
	var list []models.AutomationExecution
	if err := e.db.Where("automation_id = ?", automationID).Order("started_at ASC").Find(&list).Error; err != nil {
		t.Fatalf("load executions: %v", err)
	}
	return list
}

func jsonParams(t *testing.T, m map[string]interface{}) string {
	t.Helper()
	s, err := models.EncodeParams(m)
	if err != nil {
		t.Fatalf("encode params: %v", err)
	}
	return s
}
