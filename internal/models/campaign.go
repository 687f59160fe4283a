package models

import "time"

// Campaign statuses
const (
	CampaignActive = "active"
	CampaignPaused = "paused"
)

// Campaign 广告活动（本地镜像，外部平台以 Platform + ExternalID 标识）
type Campaign struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"size:64;index;not null" json:"user_id"`
	Name        string    `gorm:"not null" json:"name"`
	Status      string    `gorm:"size:16;index" json:"status"`
	Platform    string    `gorm:"size:32" json:"platform,omitempty"`
	ExternalID  string    `gorm:"size:128" json:"external_id,omitempty"`
	Budget      float64   `json:"budget"` // daily budget
	Spend       float64   `json:"spend"`
	Revenue     float64   `json:"revenue"`
	Leads       int       `json:"leads"`
	Conversions int       `json:"conversions"`
	Clicks      int       `json:"clicks"`
	Impressions int       `json:"impressions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasExternalIdentity reports whether the campaign is mirrored on an ad platform.
func (c *Campaign) HasExternalIdentity() bool {
	return c.Platform != "" && c.ExternalID != ""
}

// Lead 线索
type Lead struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Source    string    `gorm:"size:32" json:"source,omitempty"`
	Status    string    `gorm:"size:16" json:"status,omitempty"`
	AIScore   int       `json:"ai_score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Report 报表记录，渲染由外部服务完成
type Report struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Name      string    `json:"name"`
	Type      string    `gorm:"size:32" json:"type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    string    `gorm:"size:16" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MetricSnapshot one metric value for one entity and day. Read-only for the engine.
type MetricSnapshot struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityID   string    `gorm:"size:36;index:idx_snapshot_entity_metric_date,priority:1;not null" json:"entity_id"`
	Metric     string    `gorm:"size:32;index:idx_snapshot_entity_metric_date,priority:2;not null" json:"metric"`
	Value      float64   `json:"value"`
	PeriodDate time.Time `gorm:"index:idx_snapshot_entity_metric_date,priority:3" json:"period_date"`
}
