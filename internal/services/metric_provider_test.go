package services

import (
	"context"
	"testing"

	"growzzy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricProvider_AggregateEmpty(t *testing.T) {
	e := newEngine(t)
	agg, err := e.provider.Aggregate(context.Background(), "nothing", "roas", 7)
	require.NoError(t, err)
	assert.Equal(t, MetricAggregate{}, agg)
}

func TestMetricProvider_AggregateWindow(t *testing.T) {
	e := newEngine(t)
	e.seedSnapshots(t, "c-1", "spend", []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})

	agg, err := e.provider.Aggregate(context.Background(), "c-1", "spend", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count)
	assert.InDelta(t, 60, agg.Sum, 1e-9)
	assert.InDelta(t, 20, agg.Average, 1e-9)

	hist, err := e.provider.History(context.Background(), "c-1", "spend", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30, 40}, hist)
}

func TestMetricProvider_BuildContextCampaign(t *testing.T) {
	e := newEngine(t)
	c := e.seedCampaign(t, models.Campaign{Spend: 500, Revenue: 1000, Budget: 600, Leads: 10, Clicks: 250, Impressions: 10000})
	e.seedSnapshots(t, c.ID, "CTR", []float64{2.1, 2.4})
	a := &models.Automation{UserID: "user-1", TriggerConfig: jsonParams(t, map[string]interface{}{"campaignId": c.ID})}

	facts, err := e.provider.BuildContext(context.Background(), a, e.optimizer)
	require.NoError(t, err)

	camp := facts["campaign"].(map[string]interface{})
	assert.InDelta(t, 2.0, camp["roas"], 1e-9)
	assert.InDelta(t, 50.0, camp["cpa"], 1e-9)
	assert.InDelta(t, 2.5, camp["ctr"], 1e-9)
	assert.InDelta(t, 2.0, camp["cpc"], 1e-9)
	assert.InDelta(t, 2.1, facts["metrics"].(map[string]interface{})["ctr"], 1e-9)
	assert.Equal(t, 70, facts["health"].(map[string]interface{})["score"])

	assert.True(t, Evaluate("campaign.roas >= 2", facts))
	assert.True(t, Evaluate("insights.open == 0", facts))
}

func TestMetricProvider_BuildContextOwnerScope(t *testing.T) {
	e := newEngine(t)
	e.seedCampaign(t, models.Campaign{Spend: 100, Revenue: 150})
	e.seedCampaign(t, models.Campaign{Spend: 300, Revenue: 250})
	e.seedCampaign(t, models.Campaign{Spend: 999, Status: models.CampaignPaused})
	e.seedCampaign(t, models.Campaign{UserID: "user-2", Spend: 999})

	facts, err := e.provider.BuildContext(context.Background(), &models.Automation{UserID: "user-1"}, e.optimizer)
	require.NoError(t, err)
	camp := facts["campaign"].(map[string]interface{})
	assert.InDelta(t, 400.0, camp["spend"], 1e-9)
	assert.InDelta(t, 1.0, camp["roas"], 1e-9)
	assert.Equal(t, 2, facts["campaigns"].(map[string]interface{})["count"])
	assert.NotContains(t, facts, "health")
}

func TestMetricProvider_BuildContextMissingCampaign(t *testing.T) {
	e := newEngine(t)
	a := &models.Automation{UserID: "user-1", ActionConfig: jsonParams(t, map[string]interface{}{"campaignId": "gone"})}
	_, err := e.provider.BuildContext(context.Background(), a, nil)
	assert.Equal(t, CodeNotFound, ErrorCode(err))
}

func TestCampaignFacts_ZeroDenominators(t *testing.T) {
	facts := campaignFacts(nil)
	assert.Equal(t, 0.0, facts["cpa"])
	assert.NotContains(t, facts, "roas")
	assert.NotContains(t, facts, "ctr")
	assert.NotContains(t, facts, "cpc")
}
