package services

import (
	"context"
	"fmt"
	"math"

	"growzzy/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	historyDays  = 30
	recentWindow = 7
	baseHealth   = 70
)

// Trend directions
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// OptimizationMetric 近 7 天对比 30 天的变化
type OptimizationMetric struct {
	Current      float64 `json:"current"`
	Previous     float64 `json:"previous"`
	DeltaPercent float64 `json:"deltaPercent"`
	Trend        string  `json:"trend"`
}

// Delta computes the percentage change from previous to current. A zero (or
// non-finite) previous value yields a flat zero delta.
func Delta(current, previous float64) OptimizationMetric {
	if previous == 0 || math.IsNaN(previous) || math.IsInf(previous, 0) ||
		math.IsNaN(current) || math.IsInf(current, 0) {
		return OptimizationMetric{Current: finiteOrZero(current), Previous: 0, DeltaPercent: 0, Trend: TrendFlat}
	}
	d := (current - previous) / previous * 100
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return OptimizationMetric{Current: current, Previous: previous, DeltaPercent: 0, Trend: TrendFlat}
	}
	m := OptimizationMetric{Current: current, Previous: previous, DeltaPercent: d, Trend: TrendFlat}
	switch {
	case d > 0:
		m.Trend = TrendUp
	case d < 0:
		m.Trend = TrendDown
	}
	return m
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// MetricWindows rolling averages fed to the insight rules.
type MetricWindows struct {
	ROAS7, ROAS30 float64
	CTR7, CTR30   float64
	CPC7, CPC30   float64
}

// InsightDraft a rule hit before persistence.
type InsightDraft struct {
	Rule              string `json:"rule"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Metric            string `json:"metric"`
	Severity          string `json:"severity"`
	Confidence        int    `json:"confidence"`
	RecommendedAction string `json:"recommendedAction,omitempty"`
	Recommendation    string `json:"recommendation"`
}

// Analysis result of one pass over one entity.
type Analysis struct {
	EntityID    string                        `json:"entityId"`
	EntityName  string                        `json:"entityName,omitempty"`
	Metrics     map[string]OptimizationMetric `json:"metrics"`
	Insights    []InsightDraft                `json:"insights"`
	HealthScore int                           `json:"healthScore"`
}

// Insight rule identifiers (fingerprint prefix).
const (
	RuleROASDrop         = "roas_velocity_drop"
	RuleScaleOpportunity = "scale_opportunity"
	RuleCreativeFatigue  = "creative_fatigue"
	RuleCPCInflation     = "cpc_inflation"
)

// AllInsightRules in evaluation order.
var AllInsightRules = []string{RuleROASDrop, RuleScaleOpportunity, RuleCreativeFatigue, RuleCPCInflation}

// AnalyzeWindows applies the fixed rule set to w. Pure.
func AnalyzeWindows(w MetricWindows) Analysis {
	roas := Delta(w.ROAS7, w.ROAS30)
	ctr := Delta(w.CTR7, w.CTR30)
	cpc := Delta(w.CPC7, w.CPC30)

	a := Analysis{
		Metrics: map[string]OptimizationMetric{
			"roas": roas,
			"ctr":  ctr,
			"cpc":  cpc,
		},
		Insights: []InsightDraft{},
	}
	score := baseHealth

	if roas.DeltaPercent < -15 {
		a.Insights = append(a.Insights, InsightDraft{
			Rule:              RuleROASDrop,
			Title:             "ROAS Velocity Drop",
			Description:       fmt.Sprintf("ROAS has dropped by %.1f%% over the last 7 days compared to the 30-day average.", math.Abs(roas.DeltaPercent)),
			Metric:            "roas",
			Severity:          models.SeverityHigh,
			Confidence:        90,
			RecommendedAction: string(ActionPauseCampaign),
			Recommendation:    "Review search terms and creative fatigue immediately.",
		})
		score -= 20
	}
	if finiteOrZero(w.ROAS7) > 3.0 && roas.Trend == TrendUp {
		a.Insights = append(a.Insights, InsightDraft{
			Rule:              RuleScaleOpportunity,
			Title:             "Scale Opportunity",
			Description:       fmt.Sprintf("Campaign is performing at %.2fx ROAS with upward velocity.", w.ROAS7),
			Metric:            "roas",
			Severity:          models.SeverityHigh,
			Confidence:        85,
			RecommendedAction: string(ActionAdjustBudget),
			Recommendation:    "Increase daily budget by 20% to capture available impression share.",
		})
		score += 15
	}
	if ctr.DeltaPercent < -20 {
		a.Insights = append(a.Insights, InsightDraft{
			Rule:           RuleCreativeFatigue,
			Title:          "Creative Fatigue",
			Description:    fmt.Sprintf("CTR has decreased by %.1f%%, indicating ad blindness.", math.Abs(ctr.DeltaPercent)),
			Metric:         "ctr",
			Severity:       models.SeverityMedium,
			Confidence:     80,
			Recommendation: "Refresh ad creatives with new visual angles.",
		})
		score -= 10
	}
	if cpc.DeltaPercent > 25 {
		a.Insights = append(a.Insights, InsightDraft{
			Rule:              RuleCPCInflation,
			Title:             "CPC Inflation",
			Description:       fmt.Sprintf("Cost per click has risen by %.1f%%. Competition may be increasing.", cpc.DeltaPercent),
			Metric:            "cpc",
			Severity:          models.SeverityMedium,
			Confidence:        75,
			RecommendedAction: string(ActionAdjustBudget),
			Recommendation:    "Refine audience targeting or exclude expensive placements.",
		})
		score -= 10
	}

	a.HealthScore = clampScore(score)
	return a
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// WindowsFromHistory averages newest-first series: the first seven values form
// the recent window and the whole series the 30-day window.
func WindowsFromHistory(roas, ctr, cpc []float64) MetricWindows {
	return MetricWindows{
		ROAS7: average(head(roas, recentWindow)), ROAS30: average(roas),
		CTR7: average(head(ctr, recentWindow)), CTR30: average(ctr),
		CPC7: average(head(cpc, recentWindow)), CPC30: average(cpc),
	}
}

func head(v []float64, n int) []float64 {
	if len(v) > n {
		return v[:n]
	}
	return v
}

func average(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// OptimizationEngine 计算趋势、健康分并持久化建议
type OptimizationEngine struct {
	store    *Store
	provider *MetricProvider
	clock    Clock
	logger   *logrus.Logger
}

func NewOptimizationEngine(store *Store, provider *MetricProvider, clock Clock, logger *logrus.Logger) *OptimizationEngine {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &OptimizationEngine{store: store, provider: provider, clock: clock, logger: logger}
}

// Analyze runs the rule set on one entity without persisting anything.
func (e *OptimizationEngine) Analyze(ctx context.Context, entityID string) (*Analysis, error) {
	series := make(map[string][]float64, 3)
	for _, m := range []string{"roas", "ctr", "cpc"} {
		values, err := e.provider.History(ctx, entityID, m, historyDays)
		if err != nil {
			return nil, fmt.Errorf("load %s history: %w", m, err)
		}
		series[m] = values
	}
	a := AnalyzeWindows(WindowsFromHistory(series["roas"], series["ctr"], series["cpc"]))
	a.EntityID = entityID
	return &a, nil
}

// HealthScore implements HealthScorer.
func (e *OptimizationEngine) HealthScore(ctx context.Context, entityID string) (int, error) {
	a, err := e.Analyze(ctx, entityID)
	if err != nil {
		return 0, err
	}
	return a.HealthScore, nil
}

// Run analyzes every active campaign of the owner and reconciles persisted insights.
func (e *OptimizationEngine) Run(ctx context.Context, ownerID string) ([]Analysis, error) {
	campaigns, err := e.store.ListActiveCampaigns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	reports := make([]Analysis, 0, len(campaigns))
	for _, c := range campaigns {
		a, err := e.Analyze(ctx, c.ID)
		if err != nil {
			e.logger.WithError(err).WithField("campaign_id", c.ID).Warn("optimization: analyze failed")
			continue
		}
		a.EntityName = c.Name
		if err := e.persist(ctx, ownerID, a); err != nil {
			return nil, err
		}
		reports = append(reports, *a)
	}
	e.logger.WithFields(logrus.Fields{"user_id": ownerID, "campaigns": len(reports)}).Info("optimization pass finished")
	return reports, nil
}

func insightFingerprint(rule, entityID string) string {
	return rule + ":" + entityID
}

// persist creates, refreshes or resolves one insight per rule.
// 已忽略的建议在条件持续满足期间不会重建。
func (e *OptimizationEngine) persist(ctx context.Context, ownerID string, a *Analysis) error {
	now := e.clock.Now()
	hits := make(map[string]InsightDraft, len(a.Insights))
	for _, d := range a.Insights {
		hits[d.Rule] = d
	}
	for _, rule := range AllInsightRules {
		fp := insightFingerprint(rule, a.EntityID)
		d, hit := hits[rule]
		if !hit {
			if err := e.store.ResolveInsights(ctx, fp, now); err != nil {
				return err
			}
			continue
		}
		existing, err := e.store.FindUnresolvedInsight(ctx, fp)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			in := &models.Insight{
				UserID:            ownerID,
				EntityID:          a.EntityID,
				Fingerprint:       fp,
				Title:             d.Title,
				Description:       d.Description,
				Metric:            d.Metric,
				Severity:          d.Severity,
				Confidence:        d.Confidence,
				RecommendedAction: d.RecommendedAction,
				Recommendation:    d.Recommendation,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := e.store.CreateInsight(ctx, in); err != nil {
				return err
			}
		case existing.Dismissed:
			// skip
		default:
			existing.Description = d.Description
			existing.Confidence = d.Confidence
			existing.UpdatedAt = now
			if err := e.store.RefreshInsight(ctx, existing); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListInsights 返回用户当前的建议
func (e *OptimizationEngine) ListInsights(ctx context.Context, ownerID string, includeDismissed bool) ([]models.Insight, error) {
	return e.store.ListInsights(ctx, ownerID, includeDismissed)
}

func (e *OptimizationEngine) DismissInsight(ctx context.Context, ownerID, id string) error {
	return e.store.DismissInsight(ctx, ownerID, id)
}
