package services

import (
	"strconv"
	"strings"
	"time"

	"growzzy/internal/models"
)

// TriggerKind closed set of trigger kinds.
type TriggerKind string

const (
	TriggerMetricThreshold TriggerKind = "metric_threshold"
	TriggerROASDrop        TriggerKind = "roas_drop"
	TriggerCPASpike        TriggerKind = "cpa_spike"
	TriggerBudgetExhaust   TriggerKind = "budget_exhaust"
	TriggerTimeBased       TriggerKind = "time_based"
)

// TriggerKinds lists the supported kinds.
var TriggerKinds = []TriggerKind{
	TriggerMetricThreshold, TriggerROASDrop, TriggerCPASpike, TriggerBudgetExhaust, TriggerTimeBased,
}

func (k TriggerKind) Valid() bool {
	for _, v := range TriggerKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Cadence values of trigger config "frequency".
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// TriggerExpression renders a structured trigger as a condition expression.
// ok is false when the config is incomplete or the kind is not expression based.
func TriggerExpression(kind TriggerKind, params map[string]interface{}, facts map[string]interface{}) (string, bool) {
	switch kind {
	case TriggerMetricThreshold:
		metric := stringParam(params, "metric")
		op := stringParam(params, "operator")
		value, ok := floatParam(params, "value")
		if metric == "" || !IsOperator(op) || !ok {
			return "", false
		}
		if !strings.Contains(metric, ".") {
			metric = "metrics." + strings.ToLower(metric)
		}
		return metric + " " + op + " " + formatNumber(value), true
	case TriggerROASDrop:
		th, ok := floatParam(params, "threshold")
		if !ok {
			return "", false
		}
		return "campaign.roas < " + formatNumber(th), true
	case TriggerCPASpike:
		th, ok := floatParam(params, "threshold")
		if !ok {
			return "", false
		}
		return "campaign.cpa > " + formatNumber(th), true
	case TriggerBudgetExhaust:
		th, ok := floatParam(params, "threshold")
		if !ok {
			return "", false
		}
		raw, found := lookupPath(facts, "campaign.budget")
		if !found {
			return "", false
		}
		budget, ok := toNumber(raw)
		if !ok {
			return "", false
		}
		return "campaign.spend > " + formatNumber(budget*th), true
	default:
		return "", false
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ShouldFire decides whether a is due to act at now given the evaluation
// context. Unknown kinds, incomplete configs and missing data all yield false.
// A non-empty free-form condition must hold as well.
func ShouldFire(a *models.Automation, now time.Time, facts map[string]interface{}) bool {
	if a == nil || !a.Active {
		return false
	}
	kind := TriggerKind(a.TriggerKind)
	params := a.TriggerParams()

	var fired bool
	if kind == TriggerTimeBased {
		fired = intervalElapsed(a.LastRunAt, now, params)
	} else {
		expr, ok := TriggerExpression(kind, params, facts)
		fired = ok && Evaluate(expr, facts)
	}
	if !fired {
		return false
	}
	if cond := strings.TrimSpace(a.Condition); cond != "" {
		return Evaluate(cond, facts)
	}
	return true
}

func intervalElapsed(lastRun *time.Time, now time.Time, params map[string]interface{}) bool {
	if lastRun == nil {
		return true
	}
	interval, ok := floatParam(params, "intervalMinutes")
	if !ok || interval <= 0 {
		interval = cadence(params).Minutes()
	}
	return now.Sub(*lastRun).Minutes() >= interval
}

// cadence returns the scheduling step for a trigger config.
func cadence(params map[string]interface{}) time.Duration {
	switch strings.ToLower(stringParam(params, "frequency")) {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		// approximate; NextRun uses calendar months
		return 30 * 24 * time.Hour
	case FrequencyHourly:
		return time.Hour
	}
	if m, ok := floatParam(params, "intervalMinutes"); ok && m > 0 {
		return time.Duration(m * float64(time.Minute))
	}
	return time.Hour
}

// NextRun computes the next due time of a from now.
func NextRun(a *models.Automation, now time.Time) time.Time {
	params := a.TriggerParams()
	now = now.UTC()
	if strings.ToLower(stringParam(params, "frequency")) == FrequencyMonthly {
		return normalizeTime(now.AddDate(0, 1, 0))
	}
	return normalizeTime(now.Add(cadence(params)))
}

// ValidateTrigger checks a trigger descriptor at definition time.
func ValidateTrigger(kind string, params map[string]interface{}) error {
	k := TriggerKind(kind)
	if !k.Valid() {
		return newValidationError("trigger.kind", "unsupported trigger kind %q", kind)
	}
	if f := stringParam(params, "frequency"); f != "" {
		switch strings.ToLower(f) {
		case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		default:
			return newValidationError("trigger.frequency", "unsupported frequency %q", f)
		}
	}
	switch k {
	case TriggerMetricThreshold:
		if stringParam(params, "metric") == "" {
			return newValidationError("trigger.metric", "required")
		}
		if !IsOperator(stringParam(params, "operator")) {
			return newValidationError("trigger.operator", "must be one of %s", strings.Join(Operators, " "))
		}
		if _, ok := floatParam(params, "value"); !ok {
			return newValidationError("trigger.value", "must be a number")
		}
	case TriggerROASDrop, TriggerCPASpike, TriggerBudgetExhaust:
		if _, ok := floatParam(params, "threshold"); !ok {
			return newValidationError("trigger.threshold", "must be a number")
		}
	case TriggerTimeBased:
		if v, ok := floatParam(params, "intervalMinutes"); ok && v <= 0 {
			return newValidationError("trigger.intervalMinutes", "must be positive")
		}
	}
	return nil
}
