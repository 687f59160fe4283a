package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// Client HTTP 广告平台客户端（Bearer token 由 oauth2 TokenSource 提供）
type Client struct {
	baseURL    string
	platform   string
	userAgent  string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient builds a client for one platform account. The token source may be
// nil when config.AccessToken is set.
func NewClient(config *Config, ts oauth2.TokenSource, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if ts == nil && config.AccessToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.AccessToken, TokenType: "Bearer"})
	}

	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	ua := config.UserAgent
	if ua == "" {
		ua = DefaultConfig().UserAgent
	}

	return &Client{
		baseURL:   config.BaseURL,
		platform:  config.Platform,
		userAgent: ua,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

func (c *Client) Platform() string { return c.platform }

// 私有方法：创建 HTTP 请求
func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// 私有方法：执行请求
func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("%s API Request: %s %s", c.platform, req.Method, req.URL.String())
	c.logger.Debugf("%s API Response: %d %s", c.platform, resp.StatusCode, string(body))

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("API error [%d]: %s (code: %s)", resp.StatusCode, errResp.Error, errResp.ErrorCode)
		}
		return fmt.Errorf("API error [%d]: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, op, externalID string, body interface{}) error {
	if externalID == "" {
		return fmt.Errorf("external campaign ID is required")
	}
	endpoint := fmt.Sprintf("/v1/campaigns/%s", url.PathEscape(externalID))
	req, err := c.createRequest(ctx, http.MethodPatch, endpoint, body)
	if err != nil {
		return err
	}
	var out mutationResponse
	if err := c.doRequest(req, &out); err != nil {
		return fmt.Errorf("%s campaign: %w", op, err)
	}
	if !out.Success {
		return fmt.Errorf("%s campaign failed: %s", op, out.Message)
	}
	return nil
}

// PauseCampaign 暂停广告活动
func (c *Client) PauseCampaign(ctx context.Context, externalID string) error {
	return c.mutate(ctx, "pause", externalID, statusRequest{Status: "PAUSED"})
}

// ResumeCampaign 恢复广告活动
func (c *Client) ResumeCampaign(ctx context.Context, externalID string) error {
	return c.mutate(ctx, "resume", externalID, statusRequest{Status: "ACTIVE"})
}

// UpdateCampaign 更新预算等字段
func (c *Client) UpdateCampaign(ctx context.Context, externalID string, update CampaignUpdate) error {
	if update.Budget != nil && *update.Budget <= 0 {
		return fmt.Errorf("budget must be positive")
	}
	return c.mutate(ctx, "update", externalID, update)
}
