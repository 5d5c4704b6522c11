package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argoview/floatchat/internal/backendstub"
	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/types"
)

func newTestClient(t *testing.T) (*Client, *backendstub.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	stub := backendstub.New()
	srv := httptest.NewServer(stub.Router())
	t.Cleanup(srv.Close)

	client := New(Config{
		BaseURL:       srv.URL,
		QueryTimeout:  5 * time.Second,
		HealthTimeout: time.Second,
	}, logging.NewNop())
	return client, stub
}

func TestCreateSession(t *testing.T) {
	client, stub := newTestClient(t)
	stub.QueueSessionID("S1")

	resp, err := client.CreateSession(context.Background(), types.Preferences{"detail_level": "brief"})
	require.NoError(t, err)
	assert.Equal(t, "S1", resp.SessionID)
	assert.Equal(t, 1, stub.CreateCalls)
}

func TestCreateSessionRemoteError(t *testing.T) {
	client, stub := newTestClient(t)
	stub.FailNext("create", http.StatusInternalServerError, "Failed to create session: boom")

	_, err := client.CreateSession(context.Background(), nil)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
	assert.Contains(t, remoteErr.Detail, "boom")
}

func TestSendMessage(t *testing.T) {
	client, stub := newTestClient(t)
	stub.Seed("S1")

	resp, err := client.SendMessage(context.Background(), "show temperature trends", "S1", nil)
	require.NoError(t, err)
	assert.Equal(t, "S1", resp.SessionID)
	assert.NotEmpty(t, resp.Response)
	assert.NotNil(t, resp.ConversationContext)
	assert.Equal(t, 2, stub.MessageCount("S1"))
}

func TestSendMessageExpiredSession(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.SendMessage(context.Background(), "hello", "ghost", nil)

	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSendMessagePlain404IsRemoteError(t *testing.T) {
	// A 404 without the session-gone marker must not trigger recovery.
	client, stub := newTestClient(t)
	stub.Seed("S1")
	stub.FailNext("query", http.StatusNotFound, "no such route")

	_, err := client.SendMessage(context.Background(), "hello", "S1", nil)

	assert.NotErrorIs(t, err, ErrSessionExpired)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusNotFound, remoteErr.Status)
}

func TestSendMessageWithoutSessionID(t *testing.T) {
	client, stub := newTestClient(t)

	resp, err := client.SendMessage(context.Background(), "hello", "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, stub.Sessions(), resp.SessionID)
}

func TestGetHistory(t *testing.T) {
	client, stub := newTestClient(t)
	stub.Seed("S1")
	_, err := client.SendMessage(context.Background(), "first question", "S1", nil)
	require.NoError(t, err)
	_, err = client.SendMessage(context.Background(), "second question", "S1", nil)
	require.NoError(t, err)

	full, err := client.GetHistory(context.Background(), "S1", 0)
	require.NoError(t, err)
	assert.Len(t, full.ConversationHistory, 4)
	assert.Equal(t, 4, full.MessageCount)

	limited, err := client.GetHistory(context.Background(), "S1", 2)
	require.NoError(t, err)
	assert.Len(t, limited.ConversationHistory, 2)
}

func TestGetHistoryExpired(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetHistory(context.Background(), "ghost", 0)

	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestDeleteSessionIdempotent(t *testing.T) {
	client, stub := newTestClient(t)
	stub.Seed("S1")

	require.NoError(t, client.DeleteSession(context.Background(), "S1"))

	// Second delete hits a 404: the goal state is already achieved.
	require.NoError(t, client.DeleteSession(context.Background(), "S1"))
}

func TestDeleteSessionRemoteError(t *testing.T) {
	client, stub := newTestClient(t)
	stub.Seed("S1")
	stub.FailNext("delete", http.StatusInternalServerError, "db down")

	err := client.DeleteSession(context.Background(), "S1")

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
}

func TestGetSessionInfo(t *testing.T) {
	client, stub := newTestClient(t)
	stub.Seed("S1")

	info, err := client.GetSessionInfo(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "S1", info.SessionID)

	_, err = client.GetSessionInfo(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestUpdatePreferences(t *testing.T) {
	client, stub := newTestClient(t)
	stub.Seed("S1")

	err := client.UpdatePreferences(context.Background(), "S1", types.Preferences{"analysis_focus": "salinity"})
	require.NoError(t, err)

	err = client.UpdatePreferences(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestHealthCheck(t *testing.T) {
	client, stub := newTestClient(t)

	assert.True(t, client.HealthCheck(context.Background()))

	stub.SetHealthy(false)
	assert.False(t, client.HealthCheck(context.Background()))
}

func TestHealthCheckNeverErrorsOnDeadServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(Config{BaseURL: srv.URL, QueryTimeout: time.Second, HealthTimeout: time.Second}, logging.NewNop())

	assert.False(t, client.HealthCheck(context.Background()))
}

func TestSendMessageTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := backendstub.New()
	stub.Seed("S1")
	stub.SetDelay(200 * time.Millisecond)
	srv := httptest.NewServer(stub.Router())
	t.Cleanup(srv.Close)

	client := New(Config{BaseURL: srv.URL, QueryTimeout: 20 * time.Millisecond, HealthTimeout: time.Second}, logging.NewNop())

	_, err := client.SendMessage(context.Background(), "slow query", "S1", nil)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrSessionExpired)
}

func TestSendMessageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(Config{BaseURL: srv.URL, QueryTimeout: time.Second, HealthTimeout: time.Second}, logging.NewNop())

	_, err := client.SendMessage(context.Background(), "hello", "S1", nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.NotErrorIs(t, err, ErrSessionExpired)
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Session not found"}`, "Session not found"},
		{"structured detail", `{"detail":{"error":"Request Timeout","message":"too slow"}}`, "Request Timeout: too slow"},
		{"message only", `{"detail":{"message":"just this"}}`, "just this"},
		{"not an envelope", `plain text`, "plain text"},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractDetail([]byte(tt.body)))
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	err := classifyTransport("send message", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)

	err = classifyTransport("send message", errors.New("connection refused"))
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}
