// Package session owns the set of connected clients and active search
// sessions: it routes inbound client events to the pipeline, routes push
// events back to the originating client, and reclaims idle state on a
// periodic sweep.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/ranking"
	"github.com/waveform-labs/melodex/internal/search"
)

// Config controls manager timing behavior.
type Config struct {
	SweepInterval   time.Duration
	IdleTimeout     time.Duration
	DebounceWindow  time.Duration
	PreviewMinChars int
	SuggestionLimit int
}

// DefaultConfig returns the standard manager configuration.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   5 * time.Minute,
		IdleTimeout:     30 * time.Minute,
		DebounceWindow:  500 * time.Millisecond,
		PreviewMinChars: 3,
		SuggestionLimit: 8,
	}
}

// Manager coordinates connections, sessions and the search pipeline.
type Manager struct {
	store    *Store
	pipeline *search.Pipeline
	index    *history.Index
	clock    Clock
	cfg      Config
}

// NewManager creates a manager with the default configuration and the
// system clock.
func NewManager(store *Store, pipeline *search.Pipeline, index *history.Index) *Manager {
	return NewManagerWithConfig(store, pipeline, index, DefaultConfig(), RealClock())
}

// NewManagerWithConfig creates a manager with explicit configuration and
// clock, used by tests to drive time manually.
func NewManagerWithConfig(store *Store, pipeline *search.Pipeline, index *history.Index, cfg Config, clock Clock) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultConfig().DebounceWindow
	}
	if cfg.PreviewMinChars <= 0 {
		cfg.PreviewMinChars = DefaultConfig().PreviewMinChars
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = DefaultConfig().SuggestionLimit
	}
	return &Manager{
		store:    store,
		pipeline: pipeline,
		index:    index,
		clock:    clock,
		cfg:      cfg,
	}
}

// RegisterConnection creates a connection for a transport, idempotent per
// transport id, and acknowledges it over the transport.
func (m *Manager) RegisterConnection(transportID string, hint domain.UserHint, t Transport) *domain.Connection {
	if existing, ok := m.store.connectionByTransport(transportID); ok {
		return existing
	}

	userID := hint.UserID
	if userID == "" {
		userID = "anon-" + uuid.NewString()[:8]
	}

	now := m.clock.Now()
	conn := &domain.Connection{
		ID:           uuid.NewString(),
		TransportID:  transportID,
		UserID:       userID,
		Hint:         hint,
		ConnectedAt:  now,
		LastActivity: now,
	}
	m.store.putConnection(conn, t)

	if t != nil {
		m.push(t, search.Event{Type: search.EventConnectionAck, ConnectionID: conn.ID})
	}
	return conn
}

// StartSession allocates a search session for the connection and runs the
// pipeline for it asynchronously. The request is validated before any
// stage runs; validation failures are returned synchronously. When the
// request carries no filters, the connection's registration hints (genres,
// moods) are folded in as defaults.
func (m *Manager) StartSession(connID string, req search.Request) (string, error) {
	conn, ok := m.store.connection(connID)
	if !ok {
		return "", domain.ErrNoActiveConnection
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Filters.IsEmpty() && (len(conn.Hint.Genres) > 0 || len(conn.Hint.Moods) > 0) {
		req.Filters = &ranking.Filters{Genres: conn.Hint.Genres, Moods: conn.Hint.Moods}
	}

	now := m.clock.Now()

	// Unique with high probability: millisecond timestamp plus a random
	// suffix.
	sessionID := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
	sess := &domain.SearchSession{
		ID:        sessionID,
		UserID:    conn.UserID,
		CreatedAt: now,
	}
	m.store.putSession(sess, connID, now)

	if t, ok := m.store.transport(connID); ok {
		m.push(t, search.Event{Type: search.EventSessionStarted, SessionID: sessionID})
	}

	go func() {
		if _, err := m.pipeline.Run(context.Background(), sess, req, m); err != nil {
			log.Printf("session %s: pipeline run: %v", sessionID, err)
		}
	}()

	return sessionID, nil
}

// RouteClientEvent dispatches an inbound client event to the pipeline or
// mutates session state directly.
func (m *Manager) RouteClientEvent(connID string, ev ClientEvent) error {
	if !m.store.touchConnection(connID, m.clock.Now()) {
		return domain.ErrNoActiveConnection
	}

	switch ev.Type {
	case ClientStartSearch:
		if ev.Request == nil {
			return domain.ErrUnsupportedModalityCombination
		}
		_, err := m.StartSession(connID, *ev.Request)
		return err
	case ClientLiveInput:
		return m.LiveInput(connID, ev.Text)
	case ClientFeedback:
		return m.Feedback(connID, ev.TrackID, ev.Liked)
	case ClientTrackInteraction:
		return m.TrackInteraction(connID, ev.TrackID, ev.Action)
	case ClientJoinSession:
		return m.JoinSession(connID, ev.SessionID)
	case ClientLeaveSession:
		m.LeaveSession(connID)
		return nil
	case ClientGetHistory:
		return m.pushHistory(connID, ev.Limit)
	case ClientGetSuggestions:
		return m.pushSuggestions(connID, ev.Prefix, ev.Limit)
	default:
		return fmt.Errorf("unknown client event type %q", ev.Type)
	}
}

// LiveInput arms the debounce timer for the connection's session. The
// previous pending timer, if any, is cancelled outright: last-write-wins,
// no in-flight quick search is awaited before being superseded. When the
// timer fires, a suggestion lookup runs, plus a quick unranked preview
// search when the query is long enough. Neither writes history.
func (m *Manager) LiveInput(connID, text string) error {
	sessionID, ok := m.store.connSession(connID)
	if !ok {
		return domain.ErrNoActiveConnection
	}

	key := sessionID
	if key == "" {
		key = connID
	}

	timer := m.clock.AfterFunc(m.cfg.DebounceWindow, func() {
		m.runQuickSearch(connID, sessionID, text)
	})
	m.store.armTimer(key, timer)
	return nil
}

func (m *Manager) runQuickSearch(connID, sessionID, text string) {
	t, ok := m.store.transport(connID)
	if !ok {
		return
	}

	suggestions := m.index.Suggest(text, m.cfg.SuggestionLimit)
	m.push(t, search.Event{
		Type:        search.EventSuggestion,
		SessionID:   sessionID,
		Suggestions: suggestions,
	})

	if len(text) < m.cfg.PreviewMinChars {
		return
	}
	tracks, err := m.pipeline.Preview(context.Background(), text, m.cfg.SuggestionLimit)
	if err != nil {
		log.Printf("connection %s: preview search: %v", connID, err)
		return
	}
	m.push(t, search.Event{
		Type:      search.EventPartialResults,
		SessionID: sessionID,
		Source:    search.PreviewSource,
		Tracks:    search.NewPreviewResults(tracks),
	})
}

// Feedback appends a like/dislike to the connection's session record.
func (m *Manager) Feedback(connID, trackID string, liked bool) error {
	sessionID, ok := m.store.connSession(connID)
	if !ok {
		return domain.ErrNoActiveConnection
	}
	sess, ok := m.store.session(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.AddFeedback(trackID, liked, m.clock.Now())
	return nil
}

// TrackInteraction records a play/save/open event on the session.
func (m *Manager) TrackInteraction(connID, trackID, action string) error {
	sessionID, ok := m.store.connSession(connID)
	if !ok {
		return domain.ErrNoActiveConnection
	}
	sess, ok := m.store.session(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.AddInteraction(trackID, action, m.clock.Now())
	return nil
}

// JoinSession reattaches the connection to an existing session, e.g.
// after a brief disconnect before the sweep reclaimed it.
func (m *Manager) JoinSession(connID, sessionID string) error {
	if _, ok := m.store.connection(connID); !ok {
		return domain.ErrNoActiveConnection
	}
	if _, ok := m.store.session(sessionID); !ok {
		return domain.ErrSessionNotFound
	}
	m.store.attachSession(sessionID, connID)
	return nil
}

// LeaveSession detaches the connection from its session. The session
// itself lives until the sweep; an in-flight pipeline stage completes and
// its events are simply dropped for lack of a transport.
func (m *Manager) LeaveSession(connID string) {
	if prev := m.store.detachSession(connID); prev != "" {
		m.store.cancelTimer(prev)
	}
}

// Disconnect detaches the connection from its session and deletes it.
func (m *Manager) Disconnect(connID string) {
	m.LeaveSession(connID)
	m.store.cancelTimer(connID)
	if conn, ok := m.store.removeConnection(connID); ok {
		log.Printf("connection %s (user %s) disconnected", conn.ID, conn.UserID)
	}
}

// History returns recorded history entries for a live connection.
func (m *Manager) History(connID string, limit int) ([]*history.Entry, error) {
	if _, ok := m.store.connection(connID); !ok {
		return nil, domain.ErrNoActiveConnection
	}
	return m.index.History(limit), nil
}

// Suggestions returns suggestions for a live connection.
func (m *Manager) Suggestions(connID, prefix string, limit int) ([]history.Suggestion, error) {
	if _, ok := m.store.connection(connID); !ok {
		return nil, domain.ErrNoActiveConnection
	}
	return m.index.Suggest(prefix, limit), nil
}

func (m *Manager) pushHistory(connID string, limit int) error {
	entries, err := m.History(connID, limit)
	if err != nil {
		return err
	}
	t, ok := m.store.transport(connID)
	if !ok {
		return nil
	}
	// History rides the suggestion event slot as plain text entries.
	suggestions := make([]history.Suggestion, len(entries))
	for i, e := range entries {
		suggestions[i] = history.Suggestion{Text: e.Query, Source: history.SuggestionSourcePopular, Count: e.ResultCount}
	}
	m.push(t, search.Event{Type: search.EventSuggestion, Suggestions: suggestions})
	return nil
}

func (m *Manager) pushSuggestions(connID, prefix string, limit int) error {
	suggestions, err := m.Suggestions(connID, prefix, limit)
	if err != nil {
		return err
	}
	t, ok := m.store.transport(connID)
	if !ok {
		return nil
	}
	m.push(t, search.Event{Type: search.EventSuggestion, Suggestions: suggestions})
	return nil
}

// Emit implements search.Emitter: events are routed to the transport of
// the session's owning connection and silently dropped for unknown or
// stale session ids.
func (m *Manager) Emit(sessionID string, event search.Event) {
	t, ok := m.store.transportForSession(sessionID)
	if !ok {
		return
	}
	m.push(t, event)
}

func (m *Manager) push(t Transport, event search.Event) {
	if err := t.Push(event); err != nil {
		log.Printf("push %s event failed: %v", event.Type, err)
	}
}

// ProcessJobs implements the background sweep. It inspects only the
// last-activity and creation timestamps, never in-flight pipeline state,
// so a race with a live mutation at worst delays reclamation by one
// sweep interval.
func (m *Manager) ProcessJobs(ctx context.Context) error {
	now := m.clock.Now()
	evictedConns := 0
	for _, id := range m.store.idleConnectionIDs(now, m.cfg.IdleTimeout) {
		m.Disconnect(id)
		evictedConns++
	}

	evictedSessions := 0
	for _, sess := range m.store.snapshotSessions() {
		if now.Sub(sess.CreatedAt) > m.cfg.IdleTimeout {
			m.store.removeSession(sess.ID)
			evictedSessions++
		}
	}

	if evictedConns > 0 || evictedSessions > 0 {
		log.Printf("sweep: evicted %d connections, %d sessions", evictedConns, evictedSessions)
	}
	return nil
}
