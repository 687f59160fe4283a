package adplatform

import (
	"context"
	"time"
)

// Connector 广告平台操作接口
type Connector interface {
	PauseCampaign(ctx context.Context, externalID string) error
	ResumeCampaign(ctx context.Context, externalID string) error
	UpdateCampaign(ctx context.Context, externalID string, update CampaignUpdate) error
	Platform() string
}

// CampaignUpdate fields accepted by UpdateCampaign. Nil fields are left untouched.
type CampaignUpdate struct {
	Budget *float64 `json:"budget,omitempty"`
	Status string   `json:"status,omitempty"`
}

// Config 单个平台账户配置
type Config struct {
	Platform    string        `json:"platform"`
	BaseURL     string        `json:"base_url"`
	AccessToken string        `json:"-"`
	Timeout     time.Duration `json:"timeout"`
	UserAgent   string        `json:"user_agent"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		UserAgent: "Growzzy-AdPlatform-Client/1.0",
	}
}

// ErrorResponse error body returned by the platform gateway.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}
