package models

import (
	"encoding/json"
	"time"
)

// Automation 自动化规则定义
// 触发器与动作均以 {kind, config} 描述，config 以 JSON 文本落库。
type Automation struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	UserID        string     `gorm:"size:64;index;not null" json:"user_id"`
	Name          string     `gorm:"not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	Active        bool       `gorm:"index" json:"active"`
	TriggerKind   string     `gorm:"size:32;not null" json:"trigger_kind"`
	TriggerConfig string     `gorm:"type:text" json:"trigger_config"` // JSON object
	Condition     string     `gorm:"type:text" json:"condition,omitempty"`
	ActionKind    string     `gorm:"size:32;not null" json:"action_kind"`
	ActionConfig  string     `gorm:"type:text" json:"action_config"` // JSON object
	LastRunAt     *time.Time `json:"last_run_at"`
	NextRunAt     *time.Time `gorm:"index" json:"next_run_at"`
	RunCount      int        `gorm:"not null;default:0" json:"run_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TriggerParams decodes the trigger config. Malformed JSON yields an empty map.
func (a *Automation) TriggerParams() map[string]interface{} {
	return decodeParams(a.TriggerConfig)
}

// ActionParams decodes the action config. Malformed JSON yields an empty map.
func (a *Automation) ActionParams() map[string]interface{} {
	return decodeParams(a.ActionConfig)
}

func decodeParams(raw string) map[string]interface{} {
	out := map[string]interface{}{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]interface{}{}
	}
	return out
}

// EncodeParams is the inverse of TriggerParams/ActionParams.
func EncodeParams(params map[string]interface{}) (string, error) {
	if params == nil {
		return "{}", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Execution statuses. running is transient; completed and failed are terminal.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Execution sources
const (
	SourceScheduled = "scheduled"
	SourceManual    = "manual"
	SourceAssistant = "assistant"
)

// AutomationExecution 执行记录（追加写）
type AutomationExecution struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AutomationID string     `gorm:"size:36;index;not null" json:"automation_id"`
	UserID       string     `gorm:"size:64;index" json:"user_id"`
	Source       string     `gorm:"size:16" json:"source"`
	Status       string     `gorm:"size:16;index" json:"status"`
	ActionKind   string     `gorm:"size:32" json:"action_kind"`
	Success      bool       `json:"success"`
	Impact       string     `gorm:"type:text" json:"impact"`
	Result       string     `gorm:"type:text" json:"result,omitempty"` // JSON encoded ActionResult
	Error        string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time  `gorm:"index" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the execution reached completed or failed.
func (e *AutomationExecution) IsTerminal() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}
