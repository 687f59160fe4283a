package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"growzzy/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// FeedMessage one event pushed to connected dashboards.
type FeedMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	OwnerID   string      `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

// FeedClient 一个已连接的 websocket 客户端
type FeedClient struct {
	ID      string
	OwnerID string
	Conn    *websocket.Conn
	Send    chan FeedMessage
	Hub     *ExecutionFeed
}

// ErrFeedClosed is returned by Serve once Run has stopped.
var ErrFeedClosed = errors.New("execution feed closed")

// ExecutionFeed broadcasts finished executions to the owner's websocket clients.
type ExecutionFeed struct {
	clients    map[string]*FeedClient
	broadcast  chan FeedMessage
	register   chan *FeedClient
	unregister chan *FeedClient
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	clock      Clock
	logger     *logrus.Logger
}

func NewExecutionFeed(allowedOrigins []string, clock Clock, logger *logrus.Logger) *ExecutionFeed {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ExecutionFeed{
		clients:    make(map[string]*FeedClient),
		broadcast:  make(chan FeedMessage, 64),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		done:       make(chan struct{}),
		upgrader:   websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
		clock:      clock,
		logger:     logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run 事件循环，ctx 结束时关闭所有连接；之后的注册/注销立即返回
func (h *ExecutionFeed) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Debugf("feed client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Debugf("feed client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if client.OwnerID != message.OwnerID {
					continue
				}
				select {
				case client.Send <- message:
				default:
					// 慢客户端直接断开
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// ExecutionFinished implements ExecutionObserver. Never blocks the pipeline.
func (h *ExecutionFeed) ExecutionFinished(_ context.Context, a *models.Automation, e *models.AutomationExecution) {
	msg := FeedMessage{
		Type: "automation.executed",
		Data: map[string]interface{}{
			"automationId":   a.ID,
			"automationName": a.Name,
			"execution":      e,
			"nextRunAt":      a.NextRunAt,
		},
		OwnerID:   e.UserID,
		Timestamp: h.clock.Now().UTC(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("automation_id", a.ID).Warn("feed: broadcast queue full, event dropped")
	}
}

// Serve upgrades the request and registers the client for ownerID.
func (h *ExecutionFeed) Serve(w http.ResponseWriter, r *http.Request, ownerID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	client := &FeedClient{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Conn:    conn,
		Send:    make(chan FeedMessage, 32),
		Hub:     h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return ErrFeedClosed
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump only services control frames; the feed is push-only.
func (c *FeedClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	_ = c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warnf("feed websocket error: %v", err)
			}
			return
		}
	}
}

func (c *FeedClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount 当前连接数
func (h *ExecutionFeed) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
