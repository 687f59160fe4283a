package services

import (
	"context"
	"strings"
	"time"

	"growzzy/internal/models"

	"github.com/sirupsen/logrus"
)

// AutomationRequest 创建自动化规则的请求
type AutomationRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Trigger     Descriptor `json:"trigger"`
	Action      Descriptor `json:"action"`
	Condition   string     `json:"condition"`
	Active      *bool      `json:"active"`
	StartAt     *time.Time `json:"startAt"`
}

// Descriptor {kind, config} pair of a trigger or an action.
type Descriptor struct {
	Kind   string                 `json:"kind" binding:"required"`
	Config map[string]interface{} `json:"config"`
}

// AutomationService owner-facing operations on automations. Every execution
// path ends in the same Dispatcher.
type AutomationService struct {
	store      *Store
	scheduler  *Scheduler
	dispatcher *Dispatcher
	clock      Clock
	logger     *logrus.Logger
}

func NewAutomationService(store *Store, scheduler *Scheduler, dispatcher *Dispatcher, clock Clock, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &AutomationService{store: store, scheduler: scheduler, dispatcher: dispatcher, clock: clock, logger: logger}
}

// Create validates and stores a new automation. It is due immediately unless
// startAt is given.
func (s *AutomationService) Create(ctx context.Context, ownerID string, req *AutomationRequest) (*models.Automation, error) {
	if req == nil {
		return nil, newValidationError("", "request required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, newValidationError("name", "required")
	}
	if err := ValidateTrigger(req.Trigger.Kind, req.Trigger.Config); err != nil {
		return nil, err
	}
	if !ActionKind(req.Action.Kind).Valid() {
		return nil, &UnsupportedActionError{Kind: req.Action.Kind}
	}
	if cond := strings.TrimSpace(req.Condition); cond != "" {
		if _, ok := ParseCondition(cond); !ok {
			return nil, newValidationError("condition", "expected <field> <op> <number> with op one of %s", strings.Join(Operators, " "))
		}
	}

	trigCfg, err := models.EncodeParams(req.Trigger.Config)
	if err != nil {
		return nil, newValidationError("trigger.config", "%v", err)
	}
	actCfg, err := models.EncodeParams(req.Action.Config)
	if err != nil {
		return nil, newValidationError("action.config", "%v", err)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := s.clock.Now()
	next := normalizeTime(now)
	if req.StartAt != nil {
		next = normalizeTime(*req.StartAt)
	}
	a := &models.Automation{
		UserID:        ownerID,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Active:        active,
		TriggerKind:   req.Trigger.Kind,
		TriggerConfig: trigCfg,
		Condition:     strings.TrimSpace(req.Condition),
		ActionKind:    req.Action.Kind,
		ActionConfig:  actCfg,
		NextRunAt:     &next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAutomation(ctx, a); err != nil {
		return nil, &InternalError{Err: err}
	}
	s.logger.WithFields(logrus.Fields{"automation_id": a.ID, "user_id": ownerID, "trigger": a.TriggerKind, "action": a.ActionKind}).
		Info("automation created")
	return a, nil
}

func (s *AutomationService) List(ctx context.Context, ownerID string) ([]models.Automation, error) {
	return s.store.ListAutomations(ctx, ownerID)
}

func (s *AutomationService) Get(ctx context.Context, ownerID, id string) (*models.Automation, error) {
	return s.store.GetAutomation(ctx, ownerID, id)
}

// Delete 删除规则
func (s *AutomationService) Delete(ctx context.Context, ownerID, id string) error {
	return s.store.DeleteAutomation(ctx, ownerID, id)
}

// SetActive pauses or resumes scheduling of an automation.
func (s *AutomationService) SetActive(ctx context.Context, ownerID, id string, active bool) (*models.Automation, error) {
	if err := s.store.SetAutomationActive(ctx, ownerID, id, active, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.store.GetAutomation(ctx, ownerID, id)
}

// Executions returns recent execution rows of an owned automation.
func (s *AutomationService) Executions(ctx context.Context, ownerID, id string, limit int) ([]models.AutomationExecution, error) {
	if _, err := s.store.GetAutomation(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.ListExecutions(ctx, id, limit)
}

// Status 调度状态
func (s *AutomationService) Status(ctx context.Context, ownerID string) (*SchedulerStatus, error) {
	return s.store.SchedulerStatus(ctx, ownerID, s.clock.Now())
}

// RunNow manual run: bypasses the trigger, goes through the same dispatcher and logger.
func (s *AutomationService) RunNow(ctx context.Context, ownerID, id string) (*RunOutcome, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newValidationError("automationId", "required")
	}
	return s.scheduler.RunManual(ctx, ownerID, id, models.SourceManual)
}

// ExecuteConfirmed performs an action confirmed in the assistant surface.
func (s *AutomationService) ExecuteConfirmed(ctx context.Context, ownerID, kind string, params map[string]interface{}) (*ActionResult, error) {
	if strings.TrimSpace(kind) == "" {
		err := newValidationError("actionKind", "required")
		return failedResult(err), err
	}
	return s.dispatcher.Execute(ctx, ActionKind(kind), params, ActionContext{
		OwnerID: ownerID,
		Source:  models.SourceAssistant,
		Now:     s.clock.Now(),
	})
}

// Tick runs one scheduler batch.
func (s *AutomationService) Tick(ctx context.Context) (*TickSummary, error) {
	return s.scheduler.RunBatch(ctx)
}
