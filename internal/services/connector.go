package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"growzzy/internal/metrics"
	"growzzy/pkg/adplatform"

	"github.com/sirupsen/logrus"
)

const defaultConnectorTimeout = 10 * time.Second

// ConnectorRegistry resolves a platform name to its connector and wraps every
// call in the platform's circuit breaker and the connector timeout. Errors
// come back as ExternalServiceError.
type ConnectorRegistry struct {
	mu         sync.RWMutex
	connectors map[string]adplatform.Connector
	breakers   map[string]*CircuitBreaker
	breakerCfg BreakerConfig
	timeout    time.Duration
	clock      Clock
	metrics    *metrics.Recorder
	logger     *logrus.Logger
}

func NewConnectorRegistry(timeout time.Duration, breakerCfg BreakerConfig, rec *metrics.Recorder, logger *logrus.Logger) *ConnectorRegistry {
	if timeout <= 0 {
		timeout = defaultConnectorTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ConnectorRegistry{
		connectors: make(map[string]adplatform.Connector),
		breakers:   make(map[string]*CircuitBreaker),
		breakerCfg: breakerCfg,
		timeout:    timeout,
		clock:      SystemClock,
		metrics:    rec,
		logger:     logger,
	}
}

// SetClock replaces the breaker clock (tests).
func (r *ConnectorRegistry) SetClock(c Clock) {
	if c != nil {
		r.clock = c
	}
}

// Register 注册平台连接器（同名覆盖）
func (r *ConnectorRegistry) Register(c adplatform.Connector) {
	name := strings.ToLower(c.Platform())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[name] = c
	r.breakers[name] = NewCircuitBreaker(r.breakerCfg, r.clock)
}

// Platforms lists registered platform names.
func (r *ConnectorRegistry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connectors))
	for k := range r.connectors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BreakerStats per platform breaker state.
func (r *ConnectorRegistry) BreakerStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]interface{}, len(r.breakers))
	for k, b := range r.breakers {
		out[k] = b.Stats()
	}
	return out
}

func (r *ConnectorRegistry) lookup(platform string) (adplatform.Connector, *CircuitBreaker, bool) {
	name := strings.ToLower(platform)
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, r.breakers[name], ok
}

// Pause 暂停远端活动
func (r *ConnectorRegistry) Pause(ctx context.Context, platform, externalID string) error {
	return r.call(ctx, platform, "pause", func(ctx context.Context, c adplatform.Connector) error {
		return c.PauseCampaign(ctx, externalID)
	})
}

// Resume 恢复远端活动
func (r *ConnectorRegistry) Resume(ctx context.Context, platform, externalID string) error {
	return r.call(ctx, platform, "resume", func(ctx context.Context, c adplatform.Connector) error {
		return c.ResumeCampaign(ctx, externalID)
	})
}

// UpdateBudget 更新远端预算
func (r *ConnectorRegistry) UpdateBudget(ctx context.Context, platform, externalID string, budget float64) error {
	return r.call(ctx, platform, "update", func(ctx context.Context, c adplatform.Connector) error {
		return c.UpdateCampaign(ctx, externalID, adplatform.CampaignUpdate{Budget: &budget})
	})
}

func (r *ConnectorRegistry) call(ctx context.Context, platform, op string, fn func(context.Context, adplatform.Connector) error) error {
	service := "platform:" + platform
	conn, breaker, ok := r.lookup(platform)
	if !ok {
		r.metrics.ConnectorCall(platform, op, "unconfigured")
		return &ExternalServiceError{Service: service, Operation: op, Err: fmt.Errorf("no connector configured for platform %q", platform)}
	}
	if !breaker.Allow() {
		r.metrics.ConnectorCall(platform, op, "rejected")
		return &ExternalServiceError{Service: service, Operation: op, Err: ErrBreakerOpen}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(callCtx, conn)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		breaker.OnFailure()
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		r.metrics.ConnectorCall(platform, op, outcome)
		r.logger.WithFields(logrus.Fields{
			"platform":  platform,
			"operation": op,
			"breaker":   breaker.State().String(),
		}).WithError(err).Warn("connector call failed")
		return &ExternalServiceError{Service: service, Operation: op, Err: err}
	}
	breaker.OnSuccess()
	r.metrics.ConnectorCall(platform, op, "ok")
	return nil
}
