package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"growzzy/internal/metrics"
	"growzzy/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SchedulerConfig 调度批次参数
type SchedulerConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	Concurrency  int
}

func (c *SchedulerConfig) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// TickResult outcome of one claimed automation.
type TickResult struct {
	AutomationID string `json:"automationId"`
	Fired        bool   `json:"fired"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ExecutionID  string `json:"executionId,omitempty"`
}

// TickSummary response of one scheduler batch.
type TickSummary struct {
	ProcessedCount int          `json:"processedCount"`
	FiredCount     int          `json:"firedCount"`
	Results        []TickResult `json:"results"`
	DueCount       int          `json:"dueCount"`
	DeadlineHit    bool         `json:"deadlineHit,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	DurationMs     int64        `json:"durationMs"`
}

// Scheduler finds due automations, claims them and runs
// evaluate -> dispatch -> log for each claimed item.
type Scheduler struct {
	store      *Store
	provider   *MetricProvider
	health     HealthScorer
	dispatcher *Dispatcher
	execLogger *ExecutionLogger
	clock      Clock
	cfg        SchedulerConfig
	metrics    *metrics.Recorder
	tracer     trace.Tracer
	logger     *logrus.Logger

	// test hook: runs after the due list is read, before claims
	afterList func()
}

func NewScheduler(
	store *Store,
	provider *MetricProvider,
	health HealthScorer,
	dispatcher *Dispatcher,
	execLogger *ExecutionLogger,
	clock Clock,
	cfg SchedulerConfig,
	rec *metrics.Recorder,
	logger *logrus.Logger,
) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = SystemClock
	}
	cfg.withDefaults()
	s := &Scheduler{
		store:      store,
		provider:   provider,
		health:     health,
		dispatcher: dispatcher,
		execLogger: execLogger,
		clock:      clock,
		cfg:        cfg,
		metrics:    rec,
		tracer:     otel.Tracer("growzzy/scheduler"),
		logger:     logger,
	}
	dispatcher.SetRunner(s)
	return s
}

// RunBatch processes every due automation once. Items not reached before the
// batch deadline stay due for the next tick.
func (s *Scheduler) RunBatch(ctx context.Context) (*TickSummary, error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.batch")
	defer span.End()

	due, err := s.store.ListDueAutomations(ctx, start, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list due automations")
		return nil, fmt.Errorf("list due automations: %w", err)
	}
	span.SetAttributes(attribute.Int("automations.due", len(due)))
	if s.afterList != nil {
		s.afterList()
	}

	results := make([]*TickResult, len(due))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	deadlineHit := false

dispatch:
	for i := range due {
		select {
		case <-ctx.Done():
			deadlineHit = true
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, a models.Automation) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.processGuarded(ctx, a, start)
		}(i, due[i])
	}
	wg.Wait()

	summary := &TickSummary{
		Results:     []TickResult{},
		DueCount:    len(due),
		DeadlineHit: deadlineHit || ctx.Err() != nil,
		StartedAt:   start,
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		summary.ProcessedCount++
		if r.Fired {
			summary.FiredCount++
		}
		summary.Results = append(summary.Results, *r)
	}
	elapsed := s.clock.Now().Sub(start)
	summary.DurationMs = elapsed.Milliseconds()
	s.metrics.ObserveBatch(elapsed)
	span.SetAttributes(
		attribute.Int("automations.processed", summary.ProcessedCount),
		attribute.Int("automations.fired", summary.FiredCount),
	)

	s.logger.WithFields(logrus.Fields{
		"due":       summary.DueCount,
		"processed": summary.ProcessedCount,
		"fired":     summary.FiredCount,
		"deadline":  summary.DeadlineHit,
	}).Info("scheduler batch finished")
	return summary, nil
}

// processGuarded isolates one item. A nil result means the item was skipped
// (claim lost or deadline reached before the claim).
func (s *Scheduler) processGuarded(ctx context.Context, a models.Automation, now time.Time) (res *TickResult) {
	claimed := false
	defer func() {
		if r := recover(); r != nil {
			s.metrics.AutomationOutcome(metrics.OutcomeError)
			s.logger.WithField("automation_id", a.ID).Errorf("scheduler: panic processing automation: %v", r)
			perr := &InternalError{Err: fmt.Errorf("panic: %v", r)}
			res = &TickResult{AutomationID: a.ID, Error: perr.Error()}
			if !claimed {
				return
			}
			// 已认领：补写失败的终态记录
			out, err := s.execLogger.Record(context.WithoutCancel(ctx), &a, models.SourceScheduled, func(context.Context) (*ActionResult, error) {
				return nil, perr
			})
			if err == nil && out != nil {
				res.ExecutionID = out.Execution.ID
			}
		}
	}()
	return s.process(ctx, a, now, &claimed)
}

func (s *Scheduler) process(ctx context.Context, a models.Automation, now time.Time, claimed *bool) *TickResult {
	if ctx.Err() != nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "scheduler.automation", trace.WithAttributes(
		attribute.String("automation.id", a.ID),
		attribute.String("automation.trigger", a.TriggerKind),
		attribute.String("automation.action", a.ActionKind),
	))
	defer span.End()
	log := s.logger.WithFields(logrus.Fields{"automation_id": a.ID, "trigger": a.TriggerKind, "action": a.ActionKind})

	// a keeps the pre-claim snapshot: ShouldFire sees the lastRunAt observed when listed
	if err := s.store.ClaimAutomation(ctx, a.ID, a.NextRunAt, NextRun(&a, now)); err != nil {
		if IsClaimConflict(err) {
			s.metrics.AutomationOutcome(metrics.OutcomeConflict)
			span.SetAttributes(attribute.Bool("automation.claimed", false))
			log.Debug("automation already claimed")
			return nil
		}
		s.metrics.AutomationOutcome(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim")
		log.WithError(err).Warn("claim failed")
		return &TickResult{AutomationID: a.ID, Error: err.Error()}
	}
	*claimed = true

	facts, err := s.provider.BuildContext(ctx, &a, s.health)
	if err != nil {
		// evaluation could not run: logged as a failed firing so the item still advances
		evalErr := err
		if ErrorCode(err) == CodeInternal {
			evalErr = &InternalError{Err: fmt.Errorf("build evaluation context: %w", err)}
		}
		out, logErr := s.execLogger.Record(ctx, &a, models.SourceScheduled, func(context.Context) (*ActionResult, error) {
			return nil, evalErr
		})
		s.metrics.AutomationOutcome(metrics.OutcomeError)
		span.RecordError(evalErr)
		span.SetStatus(codes.Error, "evaluate")
		r := &TickResult{AutomationID: a.ID, Error: evalErr.Error()}
		if logErr == nil && out != nil {
			r.ExecutionID = out.Execution.ID
		}
		return r
	}

	if !ShouldFire(&a, now, facts) {
		s.metrics.AutomationOutcome(metrics.OutcomeNotFired)
		span.SetAttributes(attribute.Bool("automation.fired", false))
		return &TickResult{AutomationID: a.ID, Fired: false, Success: true}
	}

	out, err := s.execute(ctx, &a, models.SourceScheduled)
	span.SetAttributes(attribute.Bool("automation.fired", true))
	if err != nil {
		s.metrics.AutomationOutcome(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "record")
		return &TickResult{AutomationID: a.ID, Fired: true, Error: err.Error()}
	}
	s.metrics.AutomationOutcome(metrics.OutcomeFired)
	if !out.Execution.Success {
		span.SetStatus(codes.Error, out.Execution.Error)
	}
	return &TickResult{
		AutomationID: a.ID,
		Fired:        true,
		Success:      out.Execution.Success,
		Error:        out.Execution.Error,
		ExecutionID:  out.Execution.ID,
	}
}

// execute dispatches the automation's action through the execution logger.
func (s *Scheduler) execute(ctx context.Context, a *models.Automation, source string) (*RunOutcome, error) {
	params := actionParamsFor(a)
	kind := ActionKind(a.ActionKind)
	actx := ActionContext{OwnerID: a.UserID, AutomationID: a.ID, Source: source}
	return s.execLogger.Record(ctx, a, source, func(ctx context.Context) (*ActionResult, error) {
		actx.Now = s.clock.Now()
		return s.dispatcher.Execute(ctx, kind, params, actx)
	})
}

// RunManual executes the automation's action without trigger evaluation and
// without a claim. Inactive automations can still be run by their owner.
func (s *Scheduler) RunManual(ctx context.Context, ownerID, automationID, source string) (*RunOutcome, error) {
	if source == "" {
		source = models.SourceManual
	}
	a, err := s.store.GetAutomation(ctx, ownerID, automationID)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "scheduler.manual_run", trace.WithAttributes(
		attribute.String("automation.id", a.ID),
		attribute.String("automation.source", source),
	))
	defer span.End()
	return s.execute(ctx, a, source)
}

// actionParamsFor decodes the action config, inheriting campaignId from the
// trigger when the action does not name one.
func actionParamsFor(a *models.Automation) map[string]interface{} {
	params := a.ActionParams()
	if stringParam(params, "campaignId") == "" {
		if id := stringParam(a.TriggerParams(), "campaignId"); id != "" {
			params["campaignId"] = id
		}
	}
	return params
}
