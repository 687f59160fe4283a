package models

import "time"

// Insight severities
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Insight 优化引擎生成的建议
// Fingerprint = rule:entity；ResolvedAt 在规则不再命中时写入。
type Insight struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            string     `gorm:"size:64;index" json:"user_id"`
	EntityID          string     `gorm:"size:36;index" json:"entity_id"`
	Fingerprint       string     `gorm:"size:128;index" json:"fingerprint"`
	Title             string     `json:"title"`
	Description       string     `gorm:"type:text" json:"description"`
	Metric            string     `gorm:"size:32" json:"metric"`
	Severity          string     `gorm:"size:16" json:"severity"`
	Confidence        int        `json:"confidence"`
	RecommendedAction string     `gorm:"size:32" json:"recommended_action,omitempty"`
	Recommendation    string     `gorm:"type:text" json:"recommendation,omitempty"`
	Dismissed         bool       `gorm:"index" json:"dismissed"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
