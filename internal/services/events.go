package services

import (
	"context"
	"encoding/json"
	"time"

	"growzzy/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subject published for every finished execution.
const SubjectAutomationExecuted = "automation.executed"

// ExecutionEvent payload of SubjectAutomationExecuted.
type ExecutionEvent struct {
	AutomationID string     `json:"automationId"`
	ExecutionID  string     `json:"executionId"`
	OwnerID      string     `json:"ownerId"`
	ActionKind   string     `json:"actionKind"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	NextRunAt    *time.Time `json:"nextRunAt,omitempty"`
}

// Publisher raw message sink; *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// EventPublisher fans finished executions out to the message bus.
type EventPublisher struct {
	pub    Publisher
	prefix string
	logger *logrus.Logger
}

func NewEventPublisher(pub Publisher, subjectPrefix string, logger *logrus.Logger) *EventPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventPublisher{pub: pub, prefix: subjectPrefix, logger: logger}
}

// ConnectNATS dials the bus with the reconnect policy the service uses.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func (p *EventPublisher) subject() string {
	if p.prefix == "" {
		return SubjectAutomationExecuted
	}
	return p.prefix + "." + SubjectAutomationExecuted
}

// ExecutionFinished implements ExecutionObserver. Publish failures are logged only.
func (p *EventPublisher) ExecutionFinished(_ context.Context, a *models.Automation, e *models.AutomationExecution) {
	evt := ExecutionEvent{
		AutomationID: a.ID,
		ExecutionID:  e.ID,
		OwnerID:      e.UserID,
		ActionKind:   e.ActionKind,
		Source:       e.Source,
		Status:       e.Status,
		Success:      e.Success,
		Error:        e.Error,
		StartedAt:    e.StartedAt,
		NextRunAt:    a.NextRunAt,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.WithError(err).Warn("events: marshal execution event")
		return
	}
	if err := p.pub.Publish(p.subject(), data); err != nil {
		p.logger.WithError(err).WithField("automation_id", a.ID).Warn("events: publish failed")
	}
}
