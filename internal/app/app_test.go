package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"growzzy/internal/config"
	"growzzy/internal/models"
	"growzzy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret  = "jwt-secret"
	testCronSecret = "cron-secret"
)

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	cfg.JWT.Secret = testJWTSecret
	cfg.Scheduler.CronSecret = testCronSecret
	cfg.Platforms.Accounts = []config.PlatformAccountConf{
		{Platform: "meta", Mock: true},
		{Platform: "google", Mock: true},
	}
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	a, err := New(testConfig(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func bearer(t *testing.T, owner string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func do(r http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNew_RegistersConfiguredPlatforms(t *testing.T) {
	cfg := testConfig()
	cfg.Platforms.Accounts = append(cfg.Platforms.Accounts, config.PlatformAccountConf{
		Platform: "tiktok", BaseURL: "https://ads.example.com", AccessToken: "tok",
	})
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	a, err := New(cfg, log)
	require.NoError(t, err)
	defer a.Close()

	assert.ElementsMatch(t, []string{"meta", "google", "tiktok"}, a.Connectors.Platforms())
	assert.True(t, a.Notifier.Has(services.ChannelLog))
	assert.False(t, a.Notifier.Has(services.ChannelEmail))
}

func TestBuildNotifier(t *testing.T) {
	log := logrus.New()

	_, err := buildNotifier(config.NotificationsConfig{DefaultChannel: "email"}, log)
	assert.Error(t, err, "email default without a SendGrid key")

	r, err := buildNotifier(config.NotificationsConfig{
		DefaultChannel: "slack",
		Slack:          config.SlackConfig{WebhookURL: "https://hooks.example.com/x", Timeout: time.Second},
	}, log)
	require.NoError(t, err)
	assert.True(t, r.Has("slack"))
	assert.True(t, r.Has("log"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()

	w := do(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "", nil).Code)
}

func TestRouter_AuthBoundaries(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/automations", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/cron/automations", "", nil).Code)
	// 用户 token 不能触发 cron
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/cron/automations", bearer(t, "user-1"), nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/cron/automations", "Bearer "+testCronSecret, nil).Code)
}

func TestEndToEnd_SeedCreateTick(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	ctx := context.Background()

	seeded, err := SeedDemo(ctx, a.DB, "user-1", time.Now())
	require.NoError(t, err)
	require.Len(t, seeded.CampaignIDs, 2)
	assert.Len(t, seeded.LeadIDs, 3)
	assert.Equal(t, 56, seeded.Snapshots)
	losing := seeded.CampaignIDs[1]

	auth := bearer(t, "user-1")
	w := do(r, http.MethodPost, "/api/automations", auth, map[string]interface{}{
		"name":    "Pause losers",
		"trigger": map[string]interface{}{"kind": "roas_drop", "config": map[string]interface{}{"threshold": 1.0, "campaignId": losing}},
		"action":  map[string]interface{}{"kind": "pause_campaign", "config": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Automation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(r, http.MethodPost, "/api/cron/automations", "Bearer "+testCronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary services.TickSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.FiredCount)

	var c models.Campaign
	require.NoError(t, a.DB.First(&c, "id = ?", losing).Error)
	assert.Equal(t, models.CampaignPaused, c.Status)

	w = do(r, http.MethodGet, "/api/automations/"+created.ID+"/executions", auth, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var execs struct {
		Executions []models.AutomationExecution `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &execs))
	require.Len(t, execs.Executions, 1)
	assert.Equal(t, models.SourceScheduled, execs.Executions[0].Source)

	// another owner sees nothing
	w = do(r, http.MethodGet, "/api/automations/"+created.ID, bearer(t, "user-2"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/insights/generate", auth, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStart_TickerStopsWithContext(t *testing.T) {
	a := newTestApp(t)
	a.Config.Scheduler.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
}
