package services

import (
	"context"
	"strings"
	"time"

	"growzzy/internal/models"
)

// Clock supplies "now" to time-dependent components.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock wall clock in UTC.
var SystemClock Clock = systemClock{}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// MetricAggregate rolling aggregate of one metric. Zero-valued when the window is empty.
type MetricAggregate struct {
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// MetricProvider reads snapshot history and builds the evaluation context of an automation.
type MetricProvider struct {
	store *Store
	clock Clock
}

func NewMetricProvider(store *Store, clock Clock) *MetricProvider {
	if clock == nil {
		clock = SystemClock
	}
	return &MetricProvider{store: store, clock: clock}
}

// Aggregate sums metric for entity over the last windowDays days.
func (p *MetricProvider) Aggregate(ctx context.Context, entityID, metric string, windowDays int) (MetricAggregate, error) {
	if windowDays <= 0 {
		return MetricAggregate{}, nil
	}
	since := p.clock.Now().AddDate(0, 0, -windowDays)
	row, err := p.store.AggregateMetric(ctx, entityID, metric, since)
	if err != nil {
		return MetricAggregate{}, err
	}
	agg := MetricAggregate{Sum: row.Sum, Count: row.Count}
	if row.Count > 0 {
		agg.Average = row.Sum / float64(row.Count)
	}
	return agg, nil
}

// History returns up to limit values of metric for entity, newest first.
func (p *MetricProvider) History(ctx context.Context, entityID, metric string, limit int) ([]float64, error) {
	return p.store.MetricHistory(ctx, entityID, metric, limit)
}

// TargetCampaignID returns the campaign an automation is scoped to, looking at
// the trigger config first and the action config second.
func TargetCampaignID(a *models.Automation) string {
	for _, params := range []map[string]interface{}{a.TriggerParams(), a.ActionParams()} {
		if id := stringParam(params, "campaignId"); id != "" {
			return id
		}
	}
	return ""
}

// BuildContext assembles the map the condition evaluator reads:
//
//	campaign.{spend,budget,revenue,leads,conversions,clicks,impressions,cpa,roas,ctr,cpc}
//	metrics.<name>   latest snapshot value per metric (last 30 days)
//	health.score     optimization health score (campaign scope only)
//	insights.{open,high}
//
// Without a target campaign, campaign.* is aggregated over the owner's active campaigns.
func (p *MetricProvider) BuildContext(ctx context.Context, a *models.Automation, health HealthScorer) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	campaignID := TargetCampaignID(a)

	var campaigns []models.Campaign
	if campaignID != "" {
		c, err := p.store.GetCampaign(ctx, a.UserID, campaignID)
		if err != nil {
			return nil, err
		}
		campaigns = []models.Campaign{*c}
	} else {
		list, err := p.store.ListActiveCampaigns(ctx, a.UserID)
		if err != nil {
			return nil, err
		}
		campaigns = list
	}
	out["campaign"] = campaignFacts(campaigns)
	out["campaigns"] = map[string]interface{}{"count": len(campaigns)}

	metrics := map[string]interface{}{}
	if campaignID != "" {
		latest, err := p.store.LatestMetrics(ctx, campaignID, p.clock.Now().AddDate(0, 0, -historyDays))
		if err != nil {
			return nil, err
		}
		for k, v := range latest {
			metrics[strings.ToLower(k)] = v
		}
		if health != nil {
			score, err := health.HealthScore(ctx, campaignID)
			if err != nil {
				return nil, err
			}
			out["health"] = map[string]interface{}{"score": score}
		}
		counts, err := p.store.CountOpenInsights(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		var open int64
		for _, n := range counts {
			open += n
		}
		out["insights"] = map[string]interface{}{"open": open, "high": counts[models.SeverityHigh]}
	}
	out["metrics"] = metrics
	return out, nil
}

// HealthScorer is satisfied by the optimization engine.
type HealthScorer interface {
	HealthScore(ctx context.Context, entityID string) (int, error)
}

// campaignFacts sums the campaign counters and derives ratios. Ratios with a
// zero denominator are omitted so conditions on them fail closed, except cpa
// which is 0 without leads.
func campaignFacts(list []models.Campaign) map[string]interface{} {
	var spend, budget, revenue float64
	var leads, conversions, clicks, impressions int
	for _, c := range list {
		spend += c.Spend
		budget += c.Budget
		revenue += c.Revenue
		leads += c.Leads
		conversions += c.Conversions
		clicks += c.Clicks
		impressions += c.Impressions
	}
	facts := map[string]interface{}{
		"spend":       spend,
		"budget":      budget,
		"revenue":     revenue,
		"leads":       leads,
		"conversions": conversions,
		"clicks":      clicks,
		"impressions": impressions,
		"cpa":         0.0,
	}
	if leads > 0 {
		facts["cpa"] = spend / float64(leads)
	}
	if spend > 0 {
		facts["roas"] = revenue / spend
	}
	if impressions > 0 {
		facts["ctr"] = float64(clicks) / float64(impressions) * 100
	}
	if clicks > 0 {
		facts["cpc"] = spend / float64(clicks)
	}
	return facts
}
