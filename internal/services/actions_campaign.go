package services

import (
	"context"
	"fmt"
	"math"

	"growzzy/internal/models"
)

// Campaign actions call the platform first and commit locally only on success.

func (d *Dispatcher) pauseCampaign(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	return d.setCampaignStatus(ctx, params, actx, models.CampaignPaused)
}

func (d *Dispatcher) resumeCampaign(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	return d.setCampaignStatus(ctx, params, actx, models.CampaignActive)
}

func (d *Dispatcher) setCampaignStatus(ctx context.Context, params map[string]interface{}, actx ActionContext, status string) (*ActionResult, error) {
	c, err := d.campaignFromParams(ctx, params, actx)
	if err != nil {
		return nil, err
	}
	verb := "paused"
	if status == models.CampaignActive {
		verb = "resumed"
	}
	affected := []AffectedEntity{{ID: c.ID, Name: c.Name, Type: "campaign"}}
	if c.Status == status {
		return &ActionResult{
			Success:  true,
			Message:  fmt.Sprintf("Campaign %q is already %s.", c.Name, status),
			Affected: affected,
			Data:     map[string]interface{}{"status": status, "changed": false},
		}, nil
	}

	if c.HasExternalIdentity() {
		if d.connectors == nil {
			return nil, &ExternalServiceError{Service: "platform:" + c.Platform, Operation: "connect", Err: fmt.Errorf("no connectors configured")}
		}
		var callErr error
		if status == models.CampaignPaused {
			callErr = d.connectors.Pause(ctx, c.Platform, c.ExternalID)
		} else {
			callErr = d.connectors.Resume(ctx, c.Platform, c.ExternalID)
		}
		if callErr != nil {
			return nil, callErr
		}
	}
	if err := d.store.UpdateCampaignStatus(ctx, c.ID, status); err != nil {
		return nil, &InternalError{Err: fmt.Errorf("update campaign status: %w", err)}
	}
	return &ActionResult{
		Success:  true,
		Message:  fmt.Sprintf("Campaign %q has been %s.", c.Name, verb),
		Affected: affected,
		Data:     map[string]interface{}{"status": status, "changed": true, "previousStatus": c.Status},
	}, nil
}

// adjustBudget accepts newBudget (absolute) or percentage (relative to the
// current budget). The result must be a positive amount.
func (d *Dispatcher) adjustBudget(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	newBudget, hasAbs := floatParam(params, "newBudget")
	pct, hasPct := floatParam(params, "percentage")
	if _, present := params["newBudget"]; present && !hasAbs {
		return nil, newValidationError("newBudget", "must be a number")
	}
	if !hasAbs && !hasPct {
		return nil, newValidationError("newBudget", "required")
	}
	if hasAbs && !validBudget(newBudget) {
		return nil, newValidationError("newBudget", "must be a positive finite number")
	}

	c, err := d.campaignFromParams(ctx, params, actx)
	if err != nil {
		return nil, err
	}
	if !hasAbs {
		newBudget = math.Round(c.Budget*(1+pct/100)*100) / 100
		if !validBudget(newBudget) {
			return nil, newValidationError("percentage", "resulting budget %.2f is not a positive finite amount", newBudget)
		}
	}

	if c.HasExternalIdentity() {
		if d.connectors == nil {
			return nil, &ExternalServiceError{Service: "platform:" + c.Platform, Operation: "connect", Err: fmt.Errorf("no connectors configured")}
		}
		if err := d.connectors.UpdateBudget(ctx, c.Platform, c.ExternalID, newBudget); err != nil {
			return nil, err
		}
	}
	if err := d.store.UpdateCampaignBudget(ctx, c.ID, newBudget); err != nil {
		return nil, &InternalError{Err: fmt.Errorf("update campaign budget: %w", err)}
	}
	return &ActionResult{
		Success:  true,
		Message:  fmt.Sprintf("Budget for %q adjusted to $%.2f.", c.Name, newBudget),
		Affected: []AffectedEntity{{ID: c.ID, Name: c.Name, Type: "campaign"}},
		Data:     map[string]interface{}{"previousBudget": c.Budget, "newBudget": newBudget},
	}, nil
}

func validBudget(b float64) bool {
	return b > 0 && !math.IsInf(b, 0) && !math.IsNaN(b)
}
