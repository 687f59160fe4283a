package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"growzzy/internal/models"
)

func (d *Dispatcher) sendNotification(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	msg := stringParam(params, "message")
	if msg == "" {
		return nil, newValidationError("message", "required")
	}
	n := Notification{
		OwnerID:   actx.OwnerID,
		Channel:   stringParam(params, "channel"),
		Recipient: stringParam(params, "recipient"),
		Subject:   stringParam(params, "subject"),
		Message:   msg,
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		return nil, err
	}
	channel := n.Channel
	if channel == "" {
		channel = "default"
	}
	return &ActionResult{
		Success:  true,
		Message:  fmt.Sprintf("Notification sent via %s.", channel),
		Affected: []AffectedEntity{},
		Data:     map[string]interface{}{"channel": channel, "sentAt": actx.Now},
	}, nil
}

// generateReport queues a pending report; rendering happens elsewhere.
func (d *Dispatcher) generateReport(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	days := intParam(params, "days", 7)
	if days <= 0 || days > 365 {
		return nil, newValidationError("days", "must be between 1 and 365")
	}
	kind := strings.ToLower(stringParam(params, "type"))
	if kind == "" {
		kind = "performance"
	}
	name := stringParam(params, "name")
	if name == "" {
		name = fmt.Sprintf("Automated %s report", kind)
	}
	end := actx.Now.UTC()
	r := &models.Report{
		UserID:    actx.OwnerID,
		Name:      name,
		Type:      kind,
		StartDate: end.AddDate(0, 0, -days),
		EndDate:   end,
		Status:    "pending",
		CreatedAt: end,
	}
	if err := d.store.CreateReport(ctx, r); err != nil {
		return nil, &InternalError{Err: fmt.Errorf("create report: %w", err)}
	}
	return &ActionResult{
		Success:  true,
		Message:  fmt.Sprintf("Report %q created and queued for generation.", r.Name),
		Affected: []AffectedEntity{{ID: r.ID, Name: r.Name, Type: "report"}},
		Data:     map[string]interface{}{"reportId": r.ID, "days": days},
	}, nil
}

func (d *Dispatcher) scoreLeads(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	limit := intParam(params, "limit", 100)
	if limit <= 0 || limit > 1000 {
		return nil, newValidationError("limit", "must be between 1 and 1000")
	}
	leads, err := d.store.ListLeads(ctx, actx.OwnerID, limit)
	if err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list leads: %w", err)}
	}
	affected := make([]AffectedEntity, 0, len(leads))
	total := 0
	for i := range leads {
		score := ScoreLead(&leads[i], actx.Now)
		if err := d.store.UpdateLeadScore(ctx, leads[i].ID, score); err != nil {
			return nil, &InternalError{Err: fmt.Errorf("update lead %s: %w", leads[i].ID, err)}
		}
		total += score
		affected = append(affected, AffectedEntity{ID: leads[i].ID, Name: leads[i].Name, Type: "lead"})
	}
	data := map[string]interface{}{"scored": len(leads)}
	if len(leads) > 0 {
		data["averageScore"] = total / len(leads)
	}
	return &ActionResult{
		Success:  true,
		Message:  fmt.Sprintf("Re-scored %d leads.", len(leads)),
		Affected: affected,
		Data:     data,
	}, nil
}

// runAutomation re-runs another automation through the manual path. A target
// that is the caller itself or whose own action is run_automation is rejected.
func (d *Dispatcher) runAutomation(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	id := stringParam(params, "automationId")
	if id == "" {
		return nil, newValidationError("automationId", "required")
	}
	if id == actx.AutomationID {
		return nil, newValidationError("automationId", "an automation cannot run itself")
	}
	target, err := d.store.GetAutomation(ctx, actx.OwnerID, id)
	if err != nil {
		return nil, err
	}
	if ActionKind(target.ActionKind) == ActionRunAutomation {
		return nil, newValidationError("automationId", "target automation %q also runs an automation", target.Name)
	}
	if d.runner == nil {
		return nil, &InternalError{Err: fmt.Errorf("manual runner not configured")}
	}
	out, err := d.runner.RunManual(ctx, actx.OwnerID, id, actx.Source)
	if err != nil {
		return nil, err
	}
	res := &ActionResult{
		Success:  out.Execution.Success,
		Message:  fmt.Sprintf("Automation %q executed: %s.", target.Name, out.Execution.Status),
		Affected: []AffectedEntity{{ID: target.ID, Name: target.Name, Type: "automation"}},
		Data:     map[string]interface{}{"executionId": out.Execution.ID, "status": out.Execution.Status},
	}
	if !res.Success {
		return res, &InternalError{Err: fmt.Errorf("automation %s failed: %s", target.ID, out.Execution.Error)}
	}
	return res, nil
}

// ScoreLead deterministic 0-100 score from contact completeness, source and recency.
func ScoreLead(l *models.Lead, now time.Time) int {
	score := 20
	if strings.Contains(l.Email, "@") {
		score += 20
	}
	if strings.TrimSpace(l.Phone) != "" {
		score += 15
	}
	if strings.TrimSpace(l.Company) != "" {
		score += 15
	}
	switch strings.ToLower(l.Source) {
	case "referral":
		score += 20
	case "organic", "website":
		score += 15
	case "paid", "ads", "meta", "google":
		score += 10
	case "":
	default:
		score += 5
	}
	if !l.CreatedAt.IsZero() {
		age := now.Sub(l.CreatedAt)
		switch {
		case age <= 7*24*time.Hour:
			score += 10
		case age <= 30*24*time.Hour:
			score += 5
		}
	}
	return clampScore(score)
}
