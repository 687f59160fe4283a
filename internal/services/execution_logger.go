package services

import (
	"context"
	"encoding/json"
	"fmt"

	"growzzy/internal/models"

	"github.com/sirupsen/logrus"
)

// RunOutcome execution row plus the dispatcher result that produced it.
type RunOutcome struct {
	Execution *models.AutomationExecution `json:"execution"`
	Result    *ActionResult               `json:"result,omitempty"`
}

// ExecutionObserver is told about every terminal execution.
type ExecutionObserver interface {
	ExecutionFinished(ctx context.Context, a *models.Automation, e *models.AutomationExecution)
}

// ExecutionLogger writes one execution row per firing and advances the
// automation's schedule whatever the outcome.
type ExecutionLogger struct {
	store     *Store
	clock     Clock
	logger    *logrus.Logger
	observers []ExecutionObserver
}

func NewExecutionLogger(store *Store, clock Clock, logger *logrus.Logger) *ExecutionLogger {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &ExecutionLogger{store: store, clock: clock, logger: logger}
}

// AddObserver registers o for finished executions.
func (l *ExecutionLogger) AddObserver(o ExecutionObserver) {
	if o != nil {
		l.observers = append(l.observers, o)
	}
}

// DispatchFunc performs the action of one firing.
type DispatchFunc func(ctx context.Context) (*ActionResult, error)

// Record runs dispatch inside a failure boundary. The returned execution is
// always terminal; the error is non-nil only when the log itself could not be
// written.
func (l *ExecutionLogger) Record(ctx context.Context, a *models.Automation, source string, dispatch DispatchFunc) (*RunOutcome, error) {
	started := normalizeTime(l.clock.Now())
	exec := &models.AutomationExecution{
		AutomationID: a.ID,
		UserID:       a.UserID,
		Source:       source,
		Status:       models.ExecutionRunning,
		ActionKind:   a.ActionKind,
		StartedAt:    started,
	}
	// 日志写入不受批次截止时间影响：已认领的触发必须留下终态记录
	persistCtx := context.WithoutCancel(ctx)
	if err := l.store.CreateExecution(persistCtx, exec); err != nil {
		return nil, &InternalError{Err: fmt.Errorf("create execution: %w", err)}
	}

	res, dispatchErr := runGuarded(ctx, dispatch)

	finished := normalizeTime(l.clock.Now())
	exec.CompletedAt = &finished
	exec.Success = dispatchErr == nil && res != nil && res.Success
	if exec.Success {
		exec.Status = models.ExecutionCompleted
	} else {
		exec.Status = models.ExecutionFailed
	}
	if res != nil {
		exec.Impact = res.Message
		if b, err := json.Marshal(res); err == nil {
			exec.Result = string(b)
		}
	}
	if dispatchErr != nil {
		exec.Error = dispatchErr.Error()
		if exec.Impact == "" {
			exec.Impact = "Action failed"
		}
	}

	entry := l.logger.WithFields(logrus.Fields{
		"automation_id": a.ID,
		"execution_id":  exec.ID,
		"action":        a.ActionKind,
		"trigger":       a.TriggerKind,
		"source":        source,
		"status":        exec.Status,
	})
	if err := l.store.FinishExecution(persistCtx, exec); err != nil {
		entry.WithError(err).Error("finalize execution failed")
		return &RunOutcome{Execution: exec, Result: res}, &InternalError{Err: fmt.Errorf("finish execution: %w", err)}
	}
	next := NextRun(a, started)
	if err := l.store.RecordAutomationRun(persistCtx, a.ID, started, next); err != nil {
		entry.WithError(err).Error("advance schedule failed")
		return &RunOutcome{Execution: exec, Result: res}, &InternalError{Err: fmt.Errorf("advance schedule: %w", err)}
	}
	a.LastRunAt = &started
	a.NextRunAt = &next
	a.RunCount++

	if dispatchErr != nil {
		entry.WithError(dispatchErr).Warn("automation execution failed")
	} else {
		entry.Info("automation executed")
	}
	for _, o := range l.observers {
		o.ExecutionFinished(persistCtx, a, exec)
	}
	return &RunOutcome{Execution: exec, Result: res}, nil
}

func runGuarded(ctx context.Context, dispatch DispatchFunc) (res *ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &InternalError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return dispatch(ctx)
}
