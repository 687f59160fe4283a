package services

import (
	"context"
	"fmt"
	"time"

	"growzzy/internal/metrics"
	"growzzy/internal/models"

	"github.com/sirupsen/logrus"
)

// ActionKind closed set of action kinds.
type ActionKind string

const (
	ActionPauseCampaign    ActionKind = "pause_campaign"
	ActionResumeCampaign   ActionKind = "resume_campaign"
	ActionAdjustBudget     ActionKind = "adjust_budget"
	ActionSendNotification ActionKind = "send_notification"
	ActionGenerateReport   ActionKind = "generate_report"
	ActionScoreLeads       ActionKind = "score_leads"
	ActionRunAutomation    ActionKind = "run_automation"
)

// ActionKinds lists every supported kind; each has exactly one handler.
var ActionKinds = []ActionKind{
	ActionPauseCampaign,
	ActionResumeCampaign,
	ActionAdjustBudget,
	ActionSendNotification,
	ActionGenerateReport,
	ActionScoreLeads,
	ActionRunAutomation,
}

func (k ActionKind) Valid() bool {
	for _, v := range ActionKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ActionContext identifies who is acting and on whose behalf.
type ActionContext struct {
	OwnerID      string
	AutomationID string // empty for confirmed assistant actions
	Source       string
	Now          time.Time
}

// AffectedEntity one record touched by an action.
type AffectedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// ActionResult outcome of one dispatch.
type ActionResult struct {
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Affected []AffectedEntity       `json:"affected"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

func failedResult(err error) *ActionResult {
	return &ActionResult{Success: false, Message: err.Error(), Affected: []AffectedEntity{}}
}

// ActionHandler performs one action kind.
type ActionHandler func(ctx context.Context, params map[string]interface{}, actx ActionContext) (*ActionResult, error)

// ManualRunner runs an automation through the manual path (used by run_automation).
type ManualRunner interface {
	RunManual(ctx context.Context, ownerID, automationID, source string) (*RunOutcome, error)
}

// Dispatcher maps action kinds to handlers. Scheduled, manual and assistant
// executions all go through Execute.
type Dispatcher struct {
	store      *Store
	connectors *ConnectorRegistry
	notifier   Notifier
	runner     ManualRunner
	clock      Clock
	metrics    *metrics.Recorder
	logger     *logrus.Logger
	handlers   map[ActionKind]ActionHandler
}

func NewDispatcher(store *Store, connectors *ConnectorRegistry, notifier Notifier, clock Clock, rec *metrics.Recorder, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	d := &Dispatcher{
		store:      store,
		connectors: connectors,
		notifier:   notifier,
		clock:      clock,
		metrics:    rec,
		logger:     logger,
	}
	d.handlers = map[ActionKind]ActionHandler{
		ActionPauseCampaign:    d.pauseCampaign,
		ActionResumeCampaign:   d.resumeCampaign,
		ActionAdjustBudget:     d.adjustBudget,
		ActionSendNotification: d.sendNotification,
		ActionGenerateReport:   d.generateReport,
		ActionScoreLeads:       d.scoreLeads,
		ActionRunAutomation:    d.runAutomation,
	}
	return d
}

// SetRunner wires the manual-run path for run_automation.
func (d *Dispatcher) SetRunner(r ManualRunner) {
	d.runner = r
}

// Handles reports whether kind has a registered handler.
func (d *Dispatcher) Handles(kind ActionKind) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Execute validates and performs one action. A non-nil error always comes
// with a result whose Success is false.
func (d *Dispatcher) Execute(ctx context.Context, kind ActionKind, params map[string]interface{}, actx ActionContext) (*ActionResult, error) {
	if actx.Now.IsZero() {
		actx.Now = d.clock.Now()
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	h, ok := d.handlers[kind]
	if !ok {
		err := &UnsupportedActionError{Kind: string(kind)}
		d.metrics.ActionResult(string(kind), false)
		return failedResult(err), err
	}
	if actx.OwnerID == "" {
		err := newValidationError("owner", "required")
		return failedResult(err), err
	}

	res, err := h(ctx, params, actx)
	if err != nil {
		if res == nil || res.Success {
			res = failedResult(err)
		}
	} else if res == nil {
		err = &InternalError{Err: fmt.Errorf("handler %s returned no result", kind)}
		res = failedResult(err)
	}
	if res.Affected == nil {
		res.Affected = []AffectedEntity{}
	}
	d.metrics.ActionResult(string(kind), res.Success)

	entry := d.logger.WithFields(logrus.Fields{
		"action":        string(kind),
		"automation_id": actx.AutomationID,
		"user_id":       actx.OwnerID,
		"source":        actx.Source,
		"affected":      len(res.Affected),
	})
	if err != nil {
		entry.WithError(err).Warn("action failed")
	} else {
		entry.Info(res.Message)
	}
	return res, err
}

// campaignFromParams loads the campaignId target owned by the caller.
func (d *Dispatcher) campaignFromParams(ctx context.Context, params map[string]interface{}, actx ActionContext) (*models.Campaign, error) {
	id := stringParam(params, "campaignId")
	if id == "" {
		return nil, newValidationError("campaignId", "required")
	}
	return d.store.GetCampaign(ctx, actx.OwnerID, id)
}
