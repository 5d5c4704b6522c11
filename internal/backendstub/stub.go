// Package backendstub hosts an in-memory stand-in for the remote
// session service. Tests script it (expire sessions, inject failures,
// add latency) and cmd/mockbackend serves it for local development.
package backendstub

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/argoview/floatchat/internal/types"
)

const notFoundDetail = "Session not found or expired. Please create a new session."

type remoteSession struct {
	id           string
	createdAt    time.Time
	lastActivity time.Time
	messages     []types.RemoteMessage
	context      *types.ConversationContext
	preferences  types.Preferences
}

// Service is the scriptable fake backend.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*remoteSession
	healthy  bool
	delay    time.Duration
	nextIDs  []string // pending forced ids for created sessions
	failures map[string][]failure

	// OmitMessageIDs drops ids/timestamps from history entries so
	// clients must fill them in.
	OmitMessageIDs bool

	// Respond builds the assistant reply for a query. Overridable.
	Respond func(query string) string

	// Call counters for assertions.
	CreateCalls int
	QueryCalls  int
	DeleteCalls int
	InfoCalls   int
	HealthCalls int
}

type failure struct {
	status int
	detail string
}

// New creates a healthy, empty stub.
func New() *Service {
	return &Service{
		sessions: make(map[string]*remoteSession),
		failures: make(map[string][]failure),
		healthy:  true,
		Respond: func(query string) string {
			return "Analysis of: " + query
		},
	}
}

// Router builds the gin engine serving the remote HTTP surface.
// Optional middleware runs ahead of every handler. The caller picks
// the gin mode: fixtures set TestMode, cmd/mockbackend ReleaseMode.
func (s *Service) Router(middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(cors.Default())
	r.Use(middleware...)

	r.GET("/health", s.handleHealth)
	r.POST("/query", s.handleQuery)
	r.POST("/session/create", s.handleCreate)
	r.GET("/session/", s.handleStats)
	r.GET("/session/:id", s.handleInfo)
	r.GET("/session/:id/history", s.handleHistory)
	r.PUT("/session/:id/preferences", s.handlePreferences)
	r.DELETE("/session/:id", s.handleDelete)

	return r
}

// SetHealthy flips the health endpoint.
func (s *Service) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// SetDelay adds fixed latency to every request, for timeout tests.
func (s *Service) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// QueueSessionID fixes the id handed out by the next create call.
func (s *Service) QueueSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIDs = append(s.nextIDs, id)
}

// Seed installs a live session, as if created in an earlier run.
func (s *Service) Seed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSessionLocked(id, nil)
}

// Expire forgets a session server-side, simulating a restart or TTL
// eviction. Subsequent calls against it return the marked 404.
func (s *Service) Expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// FailNext makes the next call to op (create, query, info, delete,
// history, preferences) fail with the given status and detail.
func (s *Service) FailNext(op string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], failure{status: status, detail: detail})
}

// Sessions lists the ids the stub currently recognizes.
func (s *Service) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Deletes reports how many delete requests arrived. Safe to poll while
// a fire-and-forget delete is still in flight.
func (s *Service) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeleteCalls
}

// MessageCount reports the stored transcript length for a session.
func (s *Service) MessageCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return len(sess.messages)
	}
	return 0
}

func (s *Service) addSessionLocked(id string, prefs types.Preferences) *remoteSession {
	now := time.Now()
	sess := &remoteSession{
		id:           id,
		createdAt:    now,
		lastActivity: now,
		preferences:  prefs,
	}
	s.sessions[id] = sess
	return sess
}

func (s *Service) popFailureLocked(op string) (failure, bool) {
	queue := s.failures[op]
	if len(queue) == 0 {
		return failure{}, false
	}
	f := queue[0]
	s.failures[op] = queue[1:]
	return f, true
}

func (s *Service) sleep() {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (s *Service) handleHealth(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	s.HealthCalls++
	healthy := s.healthy
	s.mu.Unlock()

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": types.NowISO(),
		"service":   "Oceanographic Multi-Agent RAG API",
	})
}

func (s *Service) handleCreate(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++

	if f, ok := s.popFailureLocked("create"); ok {
		c.JSON(f.status, gin.H{"detail": f.detail})
		return
	}

	var req types.CreateSessionRequest
	_ = c.ShouldBindJSON(&req)

	id := "sess-" + uuid.NewString()
	if len(s.nextIDs) > 0 {
		id = s.nextIDs[0]
		s.nextIDs = s.nextIDs[1:]
	}
	s.addSessionLocked(id, req.UserPreferences)

	c.JSON(http.StatusOK, types.CreateSessionResponse{
		SessionID: id,
		Message:   "Session created successfully",
	})
}

func (s *Service) handleQuery(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCalls++

	if f, ok := s.popFailureLocked("query"); ok {
		c.JSON(f.status, gin.H{"detail": f.detail})
		return
	}

	var req types.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Query cannot be empty"})
		return
	}

	var sess *remoteSession
	if id := c.GetHeader("X-Session-ID"); id != "" {
		existing, ok := s.sessions[id]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": notFoundDetail})
			return
		}
		sess = existing
	} else {
		sess = s.addSessionLocked("sess-"+uuid.NewString(), req.UserPreferences)
	}

	answer := s.Respond(req.Query)
	now := types.NowISO()
	sess.messages = append(sess.messages,
		types.RemoteMessage{ID: uuid.NewString(), Role: "user", Content: req.Query, Timestamp: now},
		types.RemoteMessage{ID: uuid.NewString(), Role: "assistant", Content: answer, Timestamp: now,
			Metadata: map[string]interface{}{"response_time": 0.01, "cycles": 1}},
	)
	sess.lastActivity = time.Now()
	sess.context = &types.ConversationContext{
		RegionsDiscussed: []string{"Arabian Sea"},
		FloatsAnalyzed:   []string{"7902073"},
	}

	c.JSON(http.StatusOK, types.QueryResponse{
		Response:            answer,
		SessionID:           sess.id,
		Metadata:            map[string]interface{}{"response_time": 0.01, "cycles": 1, "context_used": true},
		ConversationContext: sess.context,
		Status:              "success",
	})
}

func (s *Service) handleInfo(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InfoCalls++

	if f, ok := s.popFailureLocked("info"); ok {
		c.JSON(f.status, gin.H{"detail": f.detail})
		return
	}

	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found or expired"})
		return
	}

	c.JSON(http.StatusOK, types.SessionInfoResponse{
		SessionID:       sess.id,
		CreatedAt:       sess.createdAt.UTC().Format(time.RFC3339),
		LastActivity:    sess.lastActivity.UTC().Format(time.RFC3339),
		MessageCount:    len(sess.messages),
		Context:         sess.context,
		UserPreferences: sess.preferences,
		Status:          "active",
	})
}

func (s *Service) handleHistory(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.popFailureLocked("history"); ok {
		c.JSON(f.status, gin.H{"detail": f.detail})
		return
	}

	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found or expired"})
		return
	}

	history := sess.messages
	if limit := c.Query("limit"); limit != "" {
		var n int
		if _, err := fmt.Sscanf(limit, "%d", &n); err == nil && n > 0 && n < len(history) {
			history = history[len(history)-n:]
		}
	}

	out := make([]types.RemoteMessage, len(history))
	copy(out, history)
	if s.OmitMessageIDs {
		for i := range out {
			out[i].ID = ""
			out[i].Timestamp = ""
		}
	}

	c.JSON(http.StatusOK, types.HistoryResponse{
		SessionID:           sess.id,
		ConversationHistory: out,
		MessageCount:        len(sess.messages),
		Context:             sess.context,
	})
}

func (s *Service) handlePreferences(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.popFailureLocked("preferences"); ok {
		c.JSON(f.status, gin.H{"detail": f.detail})
		return
	}

	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found or expired"})
		return
	}

	var prefs types.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid preferences body"})
		return
	}
	sess.preferences = prefs

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    "User preferences updated",
		"session_id": sess.id,
	})
}

func (s *Service) handleDelete(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++

	if f, ok := s.popFailureLocked("delete"); ok {
		c.JSON(f.status, gin.H{"detail": f.detail})
		return
	}

	id := c.Param("id")
	if _, ok := s.sessions[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
		return
	}
	delete(s.sessions, id)

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    "Session deleted successfully",
		"session_id": id,
	})
}

func (s *Service) handleStats(c *gin.Context) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, sess := range s.sessions {
		total += len(sess.messages)
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": types.NowISO(),
		"status":    "operational",
		"statistics": gin.H{
			"total_sessions": len(s.sessions),
			"total_messages": total,
		},
	})
}
