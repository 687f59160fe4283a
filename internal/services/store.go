package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"growzzy/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the data-store collaborator shared by the rule engine components.
// All writes touch a single row.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle (health checks, migrations).
func (s *Store) DB() *gorm.DB { return s.db }

// normalizeTime keeps persisted timestamps at the precision every supported
// driver round-trips, so compare-and-swap on them is exact.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// CreateAutomation 新建自动化规则
func (s *Store) CreateAutomation(ctx context.Context, a *models.Automation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.NextRunAt != nil {
		t := normalizeTime(*a.NextRunAt)
		a.NextRunAt = &t
	}
	return s.db.WithContext(ctx).Create(a).Error
}

// GetAutomation loads one automation; ownerID "" skips the ownership check.
func (s *Store) GetAutomation(ctx context.Context, ownerID, id string) (*models.Automation, error) {
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if ownerID != "" {
		q = q.Where("user_id = ?", ownerID)
	}
	var a models.Automation
	if err := q.First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "automation", ID: id}
		}
		return nil, err
	}
	return &a, nil
}

// ListAutomations 按创建时间倒序返回某用户的规则
func (s *Store) ListAutomations(ctx context.Context, ownerID string) ([]models.Automation, error) {
	var list []models.Automation
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteAutomation 删除规则
func (s *Store) DeleteAutomation(ctx context.Context, ownerID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&models.Automation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "automation", ID: id}
	}
	return nil
}

// ListDueAutomations returns active automations whose next run is at or before now.
func (s *Store) ListDueAutomations(ctx context.Context, now time.Time, limit int) ([]models.Automation, error) {
	q := s.db.WithContext(ctx).
		Where("active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, normalizeTime(now)).
		Order("next_run_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var list []models.Automation
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ClaimAutomation advances next_run_at from observed to next. Only one caller
// can win a given observed value; the others get a ClaimConflictError.
func (s *Store) ClaimAutomation(ctx context.Context, id string, observed *time.Time, next time.Time) error {
	if observed == nil {
		return &ClaimConflictError{AutomationID: id}
	}
	result := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ? AND active = ? AND next_run_at = ?", id, true, normalizeTime(*observed)).
		Update("next_run_at", normalizeTime(next))
	if result.Error != nil {
		return fmt.Errorf("claim automation %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &ClaimConflictError{AutomationID: id}
	}
	return nil
}

// RecordAutomationRun 写入运行记账：last_run_at、next_run_at、run_count+1
func (s *Store) RecordAutomationRun(ctx context.Context, id string, ranAt, next time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at": normalizeTime(ranAt),
			"next_run_at": normalizeTime(next),
			"run_count":   gorm.Expr("run_count + ?", 1),
		}).Error
}

// SchedulerStatus summarises the active automations.
type SchedulerStatus struct {
	TotalActive   int64      `json:"totalAutomations"`
	Pending       int64      `json:"pendingExecution"`
	Upcoming      int64      `json:"upcomingExecutions"`
	NextExecution *time.Time `json:"nextExecution"`
	Timestamp     time.Time  `json:"timestamp"`
}

// SchedulerStatus 统计活跃规则的调度情况；ownerID 为空时统计全部
func (s *Store) SchedulerStatus(ctx context.Context, ownerID string, now time.Time) (*SchedulerStatus, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Automation{}).Where("active = ?", true)
		if ownerID != "" {
			q = q.Where("user_id = ?", ownerID)
		}
		return q
	}
	st := &SchedulerStatus{Timestamp: now}
	if err := base().Count(&st.TotalActive).Error; err != nil {
		return nil, err
	}
	n := normalizeTime(now)
	if err := base().Where("next_run_at IS NOT NULL AND next_run_at <= ?", n).Count(&st.Pending).Error; err != nil {
		return nil, err
	}
	if err := base().Where("next_run_at > ?", n).Count(&st.Upcoming).Error; err != nil {
		return nil, err
	}
	var first models.Automation
	err := base().Where("next_run_at IS NOT NULL").Order("next_run_at ASC").Limit(1).Find(&first).Error
	if err != nil {
		return nil, err
	}
	if first.ID != "" {
		st.NextExecution = first.NextRunAt
	}
	return st, nil
}

// CreateExecution 写入执行记录
func (s *Store) CreateExecution(ctx context.Context, e *models.AutomationExecution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(e).Error
}

// FinishExecution persists the terminal fields of e.
func (s *Store) FinishExecution(ctx context.Context, e *models.AutomationExecution) error {
	return s.db.WithContext(ctx).Model(&models.AutomationExecution{}).
		Where("id = ?", e.ID).
		Updates(map[string]interface{}{
			"status":       e.Status,
			"success":      e.Success,
			"impact":       e.Impact,
			"result":       e.Result,
			"error":        e.Error,
			"completed_at": e.CompletedAt,
		}).Error
}

// ListExecutions 返回某规则最近的执行记录
func (s *Store) ListExecutions(ctx context.Context, automationID string, limit int) ([]models.AutomationExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []models.AutomationExecution
	if err := s.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SetAutomationActive toggles active; activating an automation that was never
// scheduled makes it due at next.
func (s *Store) SetAutomationActive(ctx context.Context, ownerID, id string, active bool, next time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "automation", ID: id}
	}
	if !active {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ? AND next_run_at IS NULL", id).
		Update("next_run_at", normalizeTime(next)).Error
}
