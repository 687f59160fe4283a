package adplatform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call one recorded mock invocation.
type Call struct {
	Op         string
	ExternalID string
	Update     CampaignUpdate
}

// MockConnector in-process connector for sandbox accounts and tests.
// Delay simulates latency (honours ctx cancellation); Err, when set, is
// returned from every call.
type MockConnector struct {
	platform string
	Delay    time.Duration

	mu    sync.Mutex
	err   error
	calls []Call
}

func NewMockConnector(platform string) *MockConnector {
	return &MockConnector{platform: platform}
}

func (m *MockConnector) Platform() string { return m.platform }

// FailWith makes subsequent calls return err (nil restores success).
func (m *MockConnector) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of the recorded invocations.
func (m *MockConnector) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockConnector) record(ctx context.Context, c Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	err := m.err
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err != nil {
		return err
	}
	if c.ExternalID == "" {
		return fmt.Errorf("external campaign ID is required")
	}
	return nil
}

func (m *MockConnector) PauseCampaign(ctx context.Context, externalID string) error {
	return m.record(ctx, Call{Op: "pause", ExternalID: externalID})
}

func (m *MockConnector) ResumeCampaign(ctx context.Context, externalID string) error {
	return m.record(ctx, Call{Op: "resume", ExternalID: externalID})
}

func (m *MockConnector) UpdateCampaign(ctx context.Context, externalID string, update CampaignUpdate) error {
	return m.record(ctx, Call{Op: "update", ExternalID: externalID, Update: update})
}
