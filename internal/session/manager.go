// Package session holds the lifecycle engine: the state machine
// governing session creation, switching, removal, the message-send
// protocol with its bounded expiry recovery, and the reconciliation
// sweep against the remote.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/argoview/floatchat/internal/backend"
	"github.com/argoview/floatchat/internal/infrastructure/monitoring"
	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/shared/id"
	"github.com/argoview/floatchat/internal/store"
	"github.com/argoview/floatchat/internal/types"
)

var (
	// ErrSendInFlight rejects a re-entrant send for the same session.
	ErrSendInFlight = errors.New("a send is already in flight for this session")

	// ErrUnknownSession rejects operations on ids the local list does
	// not contain.
	ErrUnknownSession = errors.New("unknown session")

	// ErrNoCurrentSession rejects operations that need a current
	// session when none is selected.
	ErrNoCurrentSession = errors.New("no current session")
)

// remoteDeleteTimeout bounds the fire-and-forget delete so it cannot
// hang forever after the caller has moved on.
const remoteDeleteTimeout = 15 * time.Second

// BackendClient is the slice of the remote boundary the engine needs.
type BackendClient interface {
	CreateSession(ctx context.Context, prefs types.Preferences) (*types.CreateSessionResponse, error)
	SendMessage(ctx context.Context, query, sessionID string, prefs types.Preferences) (*types.QueryResponse, error)
	GetHistory(ctx context.Context, sessionID string, limit int) (*types.HistoryResponse, error)
	DeleteSession(ctx context.Context, sessionID string) error
	UpdatePreferences(ctx context.Context, sessionID string, prefs types.Preferences) error
}

// Store is the persistence boundary the engine writes through after
// every mutation.
type Store interface {
	Load() store.State
	Save(sessions []types.Session)
	SetCurrent(sessionID string)
}

// SendResult is what a successful send hands back to the UI.
type SendResult struct {
	SessionID string
	Reply     types.Message
	Recovered bool // true when the send succeeded via expiry recovery
}

// Stats summarizes the local session state.
type Stats struct {
	TotalSessions int    `json:"total_sessions"`
	TotalMessages int    `json:"total_messages"`
	CurrentID     string `json:"current_session_id,omitempty"`
}

// Manager is the authoritative client-side state machine. All list,
// pointer, and transcript mutations happen under mu; the lock is never
// held across a remote call.
type Manager struct {
	client  BackendClient
	store   Store
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	sessions    []types.Session // newest first
	currentID   string
	transcripts map[string][]types.Message
	sending     map[string]bool // in-flight send per session; "" covers lazy creation
}

// NewManager restores persisted state and returns a ready engine.
func NewManager(client BackendClient, st Store, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	state := st.Load()
	m := &Manager{
		client:      client,
		store:       st,
		log:         log.Named("session"),
		metrics:     metrics,
		sessions:    state.Sessions,
		currentID:   state.CurrentID,
		transcripts: make(map[string][]types.Message),
		sending:     make(map[string]bool),
	}
	metrics.RecordActiveSessions(len(m.sessions))
	return m
}

// CreateNewSession opens a remote session, prepends it locally, makes
// it current, and clears the message buffer. Creation failures are
// user-visible and propagate unchanged.
func (m *Manager) CreateNewSession(ctx context.Context, prefs types.Preferences) (string, error) {
	resp, err := m.client.CreateSession(ctx, prefs)
	if err != nil {
		return "", err
	}

	sess := types.NewSession(resp.SessionID, time.Now())

	m.mu.Lock()
	m.sessions = append([]types.Session{sess}, m.sessions...)
	m.currentID = sess.ID
	m.transcripts[sess.ID] = nil
	snapshot := m.snapshotLocked()
	active := len(m.sessions)
	m.mu.Unlock()

	m.store.Save(snapshot)
	m.store.SetCurrent(sess.ID)
	m.metrics.RecordSessionCreated(active)

	m.log.Info("session created", zap.String("session_id", sess.ID))
	return sess.ID, nil
}

// SwitchToSession points the UI at another session and loads its
// transcript. If the remote no longer knows the session, it is removed
// locally and the error surfaces to the caller.
func (m *Manager) SwitchToSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if !m.hasLocked(sessionID) {
		m.mu.Unlock()
		return ErrUnknownSession
	}
	m.currentID = sessionID
	m.mu.Unlock()

	m.store.SetCurrent(sessionID)

	if _, err := m.LoadSessionMessages(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// SendMessage is the core protocol: lazy session creation, a single
// remote send, and on expiry an explicit bounded recovery loop that
// prunes the dead session, creates exactly one replacement, and
// retries exactly once. Any other failure leaves the transcript
// untouched and propagates.
func (m *Manager) SendMessage(ctx context.Context, query string, prefs types.Preferences) (*SendResult, error) {
	m.mu.Lock()
	origin := m.currentID
	if m.sending[origin] {
		m.mu.Unlock()
		return nil, ErrSendInFlight
	}
	m.sending[origin] = true
	m.mu.Unlock()

	// inflight tracks the key actually holding the guard. Lazy creation
	// and expiry recovery both move the send onto a session that did not
	// exist at entry, so the guard follows the target: Busy() and the
	// re-entrancy check must always see the session with a send pending.
	inflight := origin
	defer func() {
		m.mu.Lock()
		delete(m.sending, inflight)
		m.mu.Unlock()
	}()
	rekey := func(to string) {
		m.mu.Lock()
		delete(m.sending, inflight)
		m.sending[to] = true
		m.mu.Unlock()
		inflight = to
	}

	target := origin
	if target == "" {
		created, err := m.CreateNewSession(ctx, prefs)
		if err != nil {
			return nil, err
		}
		target = created
		rekey(target)
	}

	started := time.Now()
	recovered := false

	// Max one retry. A second expiry propagates; there is no loop back.
	for attempt := 0; ; attempt++ {
		resp, err := m.client.SendMessage(ctx, query, target, prefs)
		if err == nil {
			result := m.commit(target, query, resp, recovered)
			outcome := monitoring.OutcomeSuccess
			if recovered {
				outcome = monitoring.OutcomeRecovered
			}
			m.metrics.RecordSend(outcome, time.Since(started))
			return result, nil
		}

		if errors.Is(err, backend.ErrSessionExpired) && attempt == 0 {
			m.log.Warn("session expired mid-send, recreating",
				zap.String("session_id", target))
			m.removeLocal(target, monitoring.ReasonExpired, true)

			replacement, createErr := m.CreateNewSession(ctx, prefs)
			if createErr != nil {
				m.metrics.RecordSend(monitoring.OutcomeError, time.Since(started))
				return nil, createErr
			}
			target = replacement
			rekey(target)
			recovered = true
			continue
		}

		m.metrics.RecordSend(sendOutcome(err), time.Since(started))
		return nil, err
	}
}

// commit applies a successful exchange to the owning session. The user
// message always precedes the assistant message, and both land on the
// session's own transcript; a session the user has navigated away from
// never bleeds into the visible buffer, which is keyed by current id.
func (m *Manager) commit(sessionID, query string, resp *types.QueryResponse, recovered bool) *SendResult {
	now := types.NowISO()
	userMsg := types.Message{
		ID:        id.NewMessageID().String(),
		Role:      types.RoleUser,
		Content:   query,
		Timestamp: now,
	}
	reply := types.Message{
		ID:        id.NewMessageID().String(),
		Role:      types.RoleAssistant,
		Content:   resp.Response,
		Timestamp: now,
		Metadata:  resp.Metadata,
	}

	m.mu.Lock()
	m.transcripts[sessionID] = append(m.transcripts[sessionID], userMsg, reply)

	if idx := m.indexLocked(sessionID); idx >= 0 {
		sess := &m.sessions[idx]
		if sess.MessageCount == 0 {
			sess.Name = types.DeriveName(query)
		}
		sess.MessageCount += 2
		sess.LastActivity = now
		sess.Context = resp.ConversationContext
	} else {
		// Removed while the send was in flight; the transcript entry
		// above is all that survives.
		m.log.Debug("send completed for removed session",
			zap.String("session_id", sessionID))
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.store.Save(snapshot)

	return &SendResult{SessionID: sessionID, Reply: reply, Recovered: recovered}
}

// RemoveSession drops a session locally right away and fires the
// remote delete without blocking on it. The remote result is only
// inspected to decide whether to warn; it never resurrects the
// session.
func (m *Manager) RemoveSession(sessionID string) {
	m.removeLocal(sessionID, monitoring.ReasonUser, true)
}

// discardSwept removes a session the sweeper proved dead. The remote
// already answered 404, so no delete is fired.
func (m *Manager) discardSwept(sessionID string) {
	m.removeLocal(sessionID, monitoring.ReasonSwept, false)
}

func (m *Manager) removeLocal(sessionID, reason string, remoteDelete bool) {
	m.mu.Lock()
	idx := m.indexLocked(sessionID)
	if idx < 0 {
		m.mu.Unlock()
		return // already gone; removal is idempotent
	}
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)
	delete(m.transcripts, sessionID)
	wasCurrent := m.currentID == sessionID
	if wasCurrent {
		m.currentID = ""
	}
	snapshot := m.snapshotLocked()
	active := len(m.sessions)
	m.mu.Unlock()

	m.store.Save(snapshot)
	if wasCurrent {
		m.store.SetCurrent("")
	}
	m.metrics.RecordSessionRemoved(reason, active)
	m.log.Info("session removed",
		zap.String("session_id", sessionID), zap.String("reason", reason))

	if remoteDelete {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteDeleteTimeout)
			defer cancel()
			if err := m.client.DeleteSession(ctx, sessionID); err != nil {
				// 404 never reaches here; the client folds it into success.
				m.log.Warn("remote delete failed",
					zap.String("session_id", sessionID), zap.Error(err))
			}
		}()
	}
}

// LoadSessionMessages fetches the remote transcript, normalizes it
// into the local shape, and installs it as the session's transcript.
// An expired session folds into removal.
func (m *Manager) LoadSessionMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	resp, err := m.client.GetHistory(ctx, sessionID, 0)
	if err != nil {
		if errors.Is(err, backend.ErrSessionExpired) {
			m.removeLocal(sessionID, monitoring.ReasonExpired, true)
		}
		return nil, err
	}

	messages := types.NormalizeAll(resp.ConversationHistory)

	m.mu.Lock()
	m.transcripts[sessionID] = messages
	m.mu.Unlock()

	return append([]types.Message(nil), messages...), nil
}

// UpdatePreferences replaces the current session's analysis
// preferences on the remote. Expiry prunes locally but is not
// auto-recovered; only SendMessage carries the recovery policy.
func (m *Manager) UpdatePreferences(ctx context.Context, prefs types.Preferences) error {
	m.mu.Lock()
	target := m.currentID
	m.mu.Unlock()
	if target == "" {
		return ErrNoCurrentSession
	}

	err := m.client.UpdatePreferences(ctx, target, prefs)
	if errors.Is(err, backend.ErrSessionExpired) {
		m.removeLocal(target, monitoring.ReasonExpired, true)
	}
	return err
}

// Sessions returns a copy of the local session list, newest first.
func (m *Manager) Sessions() []types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CurrentID returns the current session id, or "" when none.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// CurrentMessages returns a copy of the visible transcript.
func (m *Manager) CurrentMessages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentID == "" {
		return nil
	}
	return append([]types.Message(nil), m.transcripts[m.currentID]...)
}

// Messages returns a copy of one session's stored transcript.
func (m *Manager) Messages(sessionID string) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.transcripts[sessionID]...)
}

// Busy reports whether a send is in flight for the active session.
// The UI disables submission while true.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending[m.currentID]
}

// Stats summarizes local state for status displays.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, sess := range m.sessions {
		total += sess.MessageCount
	}
	return Stats{
		TotalSessions: len(m.sessions),
		TotalMessages: total,
		CurrentID:     m.currentID,
	}
}

func (m *Manager) snapshotLocked() []types.Session {
	return append([]types.Session(nil), m.sessions...)
}

func (m *Manager) indexLocked(sessionID string) int {
	for i, sess := range m.sessions {
		if sess.ID == sessionID {
			return i
		}
	}
	return -1
}

func (m *Manager) hasLocked(sessionID string) bool {
	return m.indexLocked(sessionID) >= 0
}

func sendOutcome(err error) string {
	switch {
	case errors.Is(err, backend.ErrTimeout):
		return monitoring.OutcomeTimeout
	case errors.Is(err, backend.ErrSessionExpired):
		return monitoring.OutcomeExpired
	default:
		return monitoring.OutcomeError
	}
}
