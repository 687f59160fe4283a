package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Notification channels
const (
	ChannelLog   = "log"
	ChannelEmail = "email"
	ChannelSlack = "slack"
)

// Notification one outbound message produced by send_notification.
type Notification struct {
	OwnerID   string
	Channel   string
	Recipient string
	Subject   string
	Message   string
}

// Notifier delivers notifications on one channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes the notification to the application log.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.WithFields(logrus.Fields{
		"user_id": msg.OwnerID,
		"subject": msg.Subject,
	}).Infof("automation notify: %s", msg.Message)
	return nil
}

// EmailConfig SendGrid 配置
type EmailConfig struct {
	APIKey           string
	FromName         string
	FromEmail        string
	DefaultRecipient string
}

// SendGridNotifier delivers email through SendGrid.
type SendGridNotifier struct {
	cfg  EmailConfig
	send func(ctx context.Context, m *mail.SGMailV3) (int, error)
}

func NewSendGridNotifier(cfg EmailConfig) *SendGridNotifier {
	client := sendgrid.NewSendClient(cfg.APIKey)
	return &SendGridNotifier{
		cfg: cfg,
		send: func(ctx context.Context, m *mail.SGMailV3) (int, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, err
			}
			return resp.StatusCode, nil
		},
	}
}

func (n *SendGridNotifier) Notify(ctx context.Context, msg Notification) error {
	to := msg.Recipient
	if to == "" {
		to = n.cfg.DefaultRecipient
	}
	if to == "" {
		return newValidationError("recipient", "required for email notifications")
	}
	fromName := n.cfg.FromName
	if fromName == "" {
		fromName = "Growzzy Automations"
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Automation notification"
	}
	m := mail.NewSingleEmail(mail.NewEmail(fromName, n.cfg.FromEmail), subject, mail.NewEmail("", to), msg.Message, msg.Message)

	status, err := n.send(ctx, m)
	if err != nil {
		return &ExternalServiceError{Service: "sendgrid", Operation: "send", Err: err}
	}
	if status >= 300 {
		return &ExternalServiceError{Service: "sendgrid", Operation: "send", Err: fmt.Errorf("status %d", status)}
	}
	return nil
}

// SlackNotifier posts to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string, timeout time.Duration) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (n *SlackNotifier) Notify(ctx context.Context, msg Notification) error {
	if n.webhookURL == "" {
		return newValidationError("channel", "slack webhook is not configured")
	}
	text := msg.Message
	if msg.Subject != "" {
		text = "*" + msg.Subject + "*\n" + msg.Message
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return &ExternalServiceError{Service: "slack", Operation: "post", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ExternalServiceError{Service: "slack", Operation: "post", Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))}
	}
	return nil
}

// NotifierRouter dispatches by channel; unknown or unconfigured channels are
// validation errors.
type NotifierRouter struct {
	defaultChannel string
	channels       map[string]Notifier
}

func NewNotifierRouter(defaultChannel string) *NotifierRouter {
	if defaultChannel == "" {
		defaultChannel = ChannelLog
	}
	return &NotifierRouter{defaultChannel: defaultChannel, channels: map[string]Notifier{}}
}

// Register binds a channel name to a notifier.
func (r *NotifierRouter) Register(channel string, n Notifier) {
	r.channels[strings.ToLower(channel)] = n
}

// Has reports whether a channel is registered.
func (r *NotifierRouter) Has(channel string) bool {
	_, ok := r.channels[strings.ToLower(channel)]
	return ok
}

func (r *NotifierRouter) Notify(ctx context.Context, msg Notification) error {
	ch := strings.ToLower(msg.Channel)
	if ch == "" {
		ch = r.defaultChannel
	}
	n, ok := r.channels[ch]
	if !ok {
		return newValidationError("channel", "unsupported notification channel %q", ch)
	}
	msg.Channel = ch
	return n.Notify(ctx, msg)
}
