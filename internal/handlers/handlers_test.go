package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"growzzy/internal/middleware"
	"growzzy/internal/models"
	"growzzy/internal/services"
	"growzzy/pkg/adplatform"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const cronSecret = "tick-secret"

type testServer struct {
	db     *gorm.DB
	mock   *adplatform.MockConnector
	router *gin.Engine
}

// 测试用：X-Owner 头直接作为登录用户
func fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if owner := c.GetHeader("X-Owner"); owner != "" {
			c.Set(middleware.ContextOwnerKey, owner)
		}
		c.Next()
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := services.NewStore(db)
	mock := adplatform.NewMockConnector("meta")
	connectors := services.NewConnectorRegistry(time.Second, services.BreakerConfig{MaxFailures: 100}, nil, log)
	connectors.Register(mock)
	notifier := services.NewNotifierRouter(services.ChannelLog)
	notifier.Register(services.ChannelLog, services.NewLogNotifier(log))
	provider := services.NewMetricProvider(store, nil)
	optimizer := services.NewOptimizationEngine(store, provider, nil, log)
	dispatcher := services.NewDispatcher(store, connectors, notifier, nil, nil, log)
	execLogger := services.NewExecutionLogger(store, nil, log)
	scheduler := services.NewScheduler(store, provider, optimizer, dispatcher, execLogger, nil,
		services.SchedulerConfig{BatchSize: 10, BatchTimeout: 5 * time.Second, Concurrency: 2}, nil, log)
	service := services.NewAutomationService(store, scheduler, dispatcher, nil, log)
	feed := services.NewExecutionFeed(nil, nil, log)

	r := gin.New()
	RegisterHealthRoutes(r, NewHealthHandler(db, connectors, feed))
	cron := r.Group("/api")
	cron.Use(middleware.CronAuth(cronSecret))
	RegisterCronRoutes(cron, NewCronHandler(service, log))
	api := r.Group("/api")
	api.Use(fakeAuth())
	RegisterAutomationRoutes(api, NewAutomationHandler(service, feed, log))
	RegisterAssistantRoutes(api, NewAssistantHandler(service, log))
	RegisterInsightRoutes(api, NewInsightHandler(optimizer, log))

	return &testServer{db: db, mock: mock, router: r}
}

func (s *testServer) do(t *testing.T, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedCampaign(t *testing.T, c models.Campaign) models.Campaign {
	t.Helper()
	c.ID = uuid.NewString()
	if c.UserID == "" {
		c.UserID = "user-1"
	}
	if c.Status == "" {
		c.Status = models.CampaignActive
	}
	require.NoError(t, s.db.Create(&c).Error)
	return c
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func pauseRule(campaignID string) map[string]interface{} {
	return map[string]interface{}{
		"name":    "Pause when ROAS < 1.5",
		"trigger": map[string]interface{}{"kind": "roas_drop", "config": map[string]interface{}{"threshold": 1.5, "campaignId": campaignID}},
		"action":  map[string]interface{}{"kind": "pause_campaign"},
	}
}

func TestAutomationRoutes_CRUD(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Spring", Platform: "meta", ExternalID: "ext-1", Spend: 100, Revenue: 300})

	w := s.do(t, http.MethodPost, "/api/automations", "user-1", pauseRule(c.ID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a models.Automation
	decode(t, w, &a)
	assert.Equal(t, "user-1", a.UserID)
	assert.True(t, a.Active)

	w = s.do(t, http.MethodGet, "/api/automations", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Automations []models.Automation `json:"automations"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Automations, 1)

	// 不同用户互相不可见
	w = s.do(t, http.MethodGet, "/api/automations", "user-2", nil)
	decode(t, w, &list)
	assert.Empty(t, list.Automations)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/automations/"+a.ID, "user-2", nil).Code)

	w = s.do(t, http.MethodPatch, "/api/automations/"+a.ID, "user-1", map[string]interface{}{"active": false})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &a)
	assert.False(t, a.Active)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, "/api/automations/"+a.ID, "user-1", map[string]interface{}{}).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/automations/"+a.ID, "user-1", nil).Code)
	w = s.do(t, http.MethodDelete, "/api/automations/"+a.ID, "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var er ErrorResponse
	decode(t, w, &er)
	assert.Equal(t, services.CodeNotFound, er.Code)
}

func TestAutomationRoutes_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"trigger": map[string]interface{}{"kind": "time_based"}, "action": map[string]interface{}{"kind": "score_leads"}}},
		{"unknown action", map[string]interface{}{"name": "x", "trigger": map[string]interface{}{"kind": "time_based"}, "action": map[string]interface{}{"kind": "launch_rocket"}}},
		{"bad condition", map[string]interface{}{"name": "x", "condition": "roas is low",
			"trigger": map[string]interface{}{"kind": "time_based"}, "action": map[string]interface{}{"kind": "score_leads"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/automations", "user-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestAutomationRoutes_RequireOwner(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/automations", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/assistant/actions", "", nil).Code)
}

func TestAutomationRoutes_ManualRun(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Losing", Platform: "meta", ExternalID: "ext-2", Spend: 1000, Revenue: 500})

	w := s.do(t, http.MethodPost, "/api/automations", "user-1", pauseRule(c.ID))
	require.Equal(t, http.StatusCreated, w.Code)
	var a models.Automation
	decode(t, w, &a)

	w = s.do(t, http.MethodPost, "/api/automations/run", "user-1", map[string]interface{}{"automationId": a.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out services.RunOutcome
	decode(t, w, &out)
	require.NotNil(t, out.Execution)
	assert.Equal(t, models.SourceManual, out.Execution.Source)
	assert.True(t, out.Execution.Success)
	require.Len(t, s.mock.Calls(), 1)

	var got models.Campaign
	require.NoError(t, s.db.First(&got, "id = ?", c.ID).Error)
	assert.Equal(t, models.CampaignPaused, got.Status)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/automations/run", "user-1", map[string]interface{}{}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/automations/"+a.ID+"/run", "user-2", nil).Code)

	w = s.do(t, http.MethodGet, "/api/automations/"+a.ID+"/executions?limit=5", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var execs struct {
		Executions []models.AutomationExecution `json:"executions"`
	}
	decode(t, w, &execs)
	assert.Len(t, execs.Executions, 1)
}

func TestAutomationRoutes_FailedActionStillRecorded(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Flaky", Platform: "meta", ExternalID: "ext-3", Spend: 1000, Revenue: 100})
	s.mock.FailWith(assert.AnError)

	w := s.do(t, http.MethodPost, "/api/automations", "user-1", pauseRule(c.ID))
	var a models.Automation
	decode(t, w, &a)

	w = s.do(t, http.MethodPost, "/api/automations/"+a.ID+"/run", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out services.RunOutcome
	decode(t, w, &out)
	assert.Equal(t, models.ExecutionFailed, out.Execution.Status)
	assert.NotEmpty(t, out.Execution.Error)
}

func TestSchedulerStatusRoute(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Spring", Platform: "meta", ExternalID: "ext-1"})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/automations", "user-1", pauseRule(c.ID)).Code)

	w := s.do(t, http.MethodGet, "/api/automations/scheduler/status", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st services.SchedulerStatus
	decode(t, w, &st)
	assert.EqualValues(t, 1, st.TotalActive)
	assert.EqualValues(t, 1, st.Pending)
}

func TestCronTick(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Losing", Platform: "meta", ExternalID: "ext-4", Spend: 1000, Revenue: 1200})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/automations", "user-1", pauseRule(c.ID)).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cron/automations", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/cron/automations", nil)
	req.Header.Set("Authorization", "Bearer "+cronSecret)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary services.TickSummary
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 1, summary.FiredCount)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
}

func TestAssistantActions(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Spring", Platform: "meta", ExternalID: "ext-5", Budget: 100})

	w := s.do(t, http.MethodPost, "/api/assistant/actions", "user-1", map[string]interface{}{
		"actionKind": "adjust_budget",
		"params":     map[string]interface{}{"campaignId": c.ID, "newBudget": 150},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ConfirmedActionResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.ActionResult)
	assert.True(t, resp.Success)

	var got models.Campaign
	require.NoError(t, s.db.First(&got, "id = ?", c.ID).Error)
	assert.Equal(t, 150.0, got.Budget)

	w = s.do(t, http.MethodPost, "/api/assistant/actions", "user-1", map[string]interface{}{
		"actionKind": "adjust_budget",
		"params":     map[string]interface{}{"campaignId": c.ID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, services.CodeValidation, resp.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/assistant/actions", "user-1", map[string]interface{}{}).Code)

	s.mock.FailWith(assert.AnError)
	w = s.do(t, http.MethodPost, "/api/assistant/actions", "user-1", map[string]interface{}{
		"actionKind": "pause_campaign",
		"params":     map[string]interface{}{"campaignId": c.ID},
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, services.CodeExternalService, resp.Code)
}

func TestInsightRoutes(t *testing.T) {
	s := newTestServer(t)
	c := s.seedCampaign(t, models.Campaign{Name: "Fading", Platform: "meta", ExternalID: "ext-6", Spend: 100, Revenue: 100})
	day := time.Now().UTC().Truncate(24 * time.Hour)
	// 最近 7 天 ROAS 1，之前 7 天 3
	for i := 0; i < 14; i++ {
		v := 1.0
		if i >= 7 {
			v = 3.0
		}
		require.NoError(t, s.db.Create(&models.MetricSnapshot{EntityID: c.ID, Metric: "roas", Value: v, PeriodDate: day.AddDate(0, 0, -i)}).Error)
	}

	w := s.do(t, http.MethodPost, "/api/insights/generate", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var gen struct {
		Analyses []services.Analysis `json:"analyses"`
	}
	decode(t, w, &gen)
	require.Len(t, gen.Analyses, 1)

	w = s.do(t, http.MethodGet, "/api/insights", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Insights []models.Insight `json:"insights"`
	}
	decode(t, w, &list)
	require.NotEmpty(t, list.Insights)
	open := len(list.Insights)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/insights/"+list.Insights[0].ID+"/dismiss", "user-2", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/insights/"+list.Insights[0].ID+"/dismiss", "user-1", nil).Code)

	decode(t, s.do(t, http.MethodGet, "/api/insights", "user-1", nil), &list)
	assert.Len(t, list.Insights, open-1)
	decode(t, s.do(t, http.MethodGet, "/api/insights?dismissed=true", "user-1", nil), &list)
	assert.Len(t, list.Insights, open)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var h HealthResponse
	decode(t, w, &h)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "healthy", h.Services["database"].Status)
	assert.Contains(t, h.Services, "platforms")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", nil).Code)

	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/ready", "", nil).Code)
}

func TestHttpStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpStatus(services.CodeValidation))
	assert.Equal(t, http.StatusNotFound, httpStatus(services.CodeNotFound))
	assert.Equal(t, http.StatusBadGateway, httpStatus(services.CodeExternalService))
	assert.Equal(t, http.StatusConflict, httpStatus(services.CodeClaimConflict))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(services.CodeInternal))
}
