package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"growzzy/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedServer struct {
	feed *ExecutionFeed
	srv  *httptest.Server
	errs chan error
}

func newFeedServer(t *testing.T, clock Clock) *feedServer {
	t.Helper()
	fs := &feedServer{feed: NewExecutionFeed(nil, clock, quietLogger()), errs: make(chan error, 8)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.errs <- fs.feed.Serve(w, r, r.URL.Query().Get("owner"))
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) dial(t *testing.T, owner string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/?owner=" + owner
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func finishedExecution(owner string) (*models.Automation, *models.AutomationExecution) {
	a := &models.Automation{ID: "auto-1", UserID: owner, Name: "Pause losers"}
	e := &models.AutomationExecution{ID: "exec-1", AutomationID: a.ID, UserID: owner, Status: models.ExecutionCompleted}
	return a, e
}

func TestExecutionFeed_BroadcastIsOwnerScoped(t *testing.T) {
	clock := newFakeClock(testNow)
	fs := newFeedServer(t, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fs.feed.Run(ctx)

	alice := fs.dial(t, "user-1")
	bob := fs.dial(t, "user-2")
	require.Eventually(t, func() bool { return fs.feed.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	a, e := finishedExecution("user-1")
	fs.feed.ExecutionFinished(context.Background(), a, e)

	var msg struct {
		Type      string                 `json:"type"`
		Data      map[string]interface{} `json:"data"`
		Timestamp time.Time              `json:"timestamp"`
	}
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&msg))
	assert.Equal(t, "automation.executed", msg.Type)
	assert.Equal(t, "auto-1", msg.Data["automationId"])
	assert.True(t, testNow.Equal(msg.Timestamp), "timestamp comes from the injected clock")

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "other owners receive nothing")
}

func TestExecutionFeed_DropsSlowClient(t *testing.T) {
	feed := NewExecutionFeed(nil, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	// 无缓冲且无人读取
	slow := &FeedClient{ID: "slow", OwnerID: "user-1", Send: make(chan FeedMessage), Hub: feed}
	feed.register <- slow
	require.Equal(t, 1, feed.ClientCount())

	a, e := finishedExecution("user-1")
	feed.ExecutionFinished(context.Background(), a, e)

	require.Eventually(t, func() bool { return feed.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-slow.Send
	assert.False(t, open)
}

func TestExecutionFeed_ServeAfterStopReturns(t *testing.T) {
	fs := newFeedServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		fs.feed.Run(ctx)
		close(stopped)
	}()

	conn := fs.dial(t, "user-1")
	require.NoError(t, <-fs.errs)
	require.Eventually(t, func() bool { return fs.feed.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.Equal(t, 0, fs.feed.ClientCount())

	// 已连接的客户端收到关闭帧
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), "got %v", err)

	fs.dial(t, "user-1")
	select {
	case err := <-fs.errs:
		assert.ErrorIs(t, err, ErrFeedClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve blocked after the feed stopped")
	}
}
