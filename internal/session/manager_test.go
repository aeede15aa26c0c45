package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/ranking"
	"github.com/waveform-labs/melodex/internal/search"
)

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	when    time.Time
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: fn, when: c.now.Add(d)}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires due, unstopped timers synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, t := range c.timers {
		if !t.when.After(c.now) {
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.mu.Lock()
		fire := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if fire {
			t.fn()
		}
	}
}

type recordingTransport struct {
	mu     sync.Mutex
	events []search.Event
	signal chan search.EventType
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{signal: make(chan search.EventType, 64)}
}

func (t *recordingTransport) Push(event search.Event) error {
	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()
	t.signal <- event.Type
	return nil
}

func (t *recordingTransport) byType(et search.EventType) []search.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]search.Event, 0)
	for _, ev := range t.events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

func (t *recordingTransport) waitFor(tt *testing.T, et search.EventType) {
	tt.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-t.signal:
			if got == et {
				return
			}
		case <-deadline:
			tt.Fatalf("timed out waiting for %s event", et)
		}
	}
}

type countingTextSearcher struct {
	mu      sync.Mutex
	queries []string
	tracks  []*domain.CandidateTrack
}

func (s *countingTextSearcher) Search(ctx context.Context, query string, limit int) ([]*domain.CandidateTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.tracks, nil
}

func (s *countingTextSearcher) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func setupManager(t *testing.T) (*Manager, *countingTextSearcher, *fakeClock, *Store) {
	t.Helper()
	text := &countingTextSearcher{tracks: []*domain.CandidateTrack{
		{Title: "Holocene", Artist: "Bon Iver", Similarity: 0.9},
	}}
	index := history.NewIndex(10)
	pipeline := search.NewPipeline(text, nil, nil, index)
	store := NewStore()
	clock := newFakeClock()
	manager := NewManagerWithConfig(store, pipeline, index, DefaultConfig(), clock)
	return manager, text, clock, store
}

func TestRegisterConnection(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	transport := newRecordingTransport()

	conn := manager.RegisterConnection("tp-1", domain.UserHint{UserID: "user-1"}, transport)

	require.NotNil(t, conn)
	assert.Equal(t, "user-1", conn.UserID)
	assert.NotEmpty(t, conn.ID)

	acks := transport.byType(search.EventConnectionAck)
	require.Len(t, acks, 1)
	assert.Equal(t, conn.ID, acks[0].ConnectionID)
}

func TestRegisterConnection_IdempotentPerTransport(t *testing.T) {
	manager, _, _, store := setupManager(t)
	transport := newRecordingTransport()

	first := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)
	second := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	assert.Equal(t, first.ID, second.ID)
	conns, _ := store.Counts()
	assert.Equal(t, 1, conns)
	assert.Len(t, transport.byType(search.EventConnectionAck), 1)
}

func TestRegisterConnection_AnonymousUser(t *testing.T) {
	manager, _, _, _ := setupManager(t)

	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, newRecordingTransport())

	assert.Contains(t, conn.UserID, "anon-")
}

func TestStartSession_NoConnection(t *testing.T) {
	manager, _, _, _ := setupManager(t)

	_, err := manager.StartSession("missing", search.Request{Query: "q"})
	assert.ErrorIs(t, err, domain.ErrNoActiveConnection)
}

func TestStartSession_ValidationFailsSynchronously(t *testing.T) {
	manager, text, _, store := setupManager(t)
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, newRecordingTransport())

	_, err := manager.StartSession(conn.ID, search.Request{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedModalityCombination)

	_, sessions := store.Counts()
	assert.Zero(t, sessions)
	assert.Empty(t, text.seen())
}

func TestStartSession_RunsPipeline(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	sessionID, err := manager.StartSession(conn.ID, search.Request{Query: "bon iver", Progressive: true})
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	transport.waitFor(t, search.EventFinalResults)

	started := transport.byType(search.EventSessionStarted)
	require.Len(t, started, 1)
	assert.Equal(t, sessionID, started[0].SessionID)

	finals := transport.byType(search.EventFinalResults)
	require.Len(t, finals, 1)
	require.Len(t, finals[0].Tracks, 1)
	assert.Equal(t, "Holocene", finals[0].Tracks[0].Title)
}

func TestStartSession_FoldsConnectionHintsIntoFilters(t *testing.T) {
	manager, text, _, _ := setupManager(t)
	text.tracks = []*domain.CandidateTrack{
		{Title: "Holocene", Artist: "Bon Iver", Similarity: 0.9, Genres: []string{"indie folk"}},
		{Title: "Ride", Artist: "Twenty One Pilots", Similarity: 0.8, Genres: []string{"pop"}},
	}
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{Genres: []string{"indie folk"}}, transport)

	_, err := manager.StartSession(conn.ID, search.Request{Query: "holocene"})
	require.NoError(t, err)
	transport.waitFor(t, search.EventFinalResults)

	finals := transport.byType(search.EventFinalResults)
	require.Len(t, finals, 1)
	require.Len(t, finals[0].Tracks, 1)
	assert.Equal(t, "Holocene", finals[0].Tracks[0].Title)
}

func TestStartSession_RequestFiltersOverrideHints(t *testing.T) {
	manager, text, _, _ := setupManager(t)
	text.tracks = []*domain.CandidateTrack{
		{Title: "Holocene", Artist: "Bon Iver", Similarity: 0.9, Genres: []string{"indie folk"}},
		{Title: "Ride", Artist: "Twenty One Pilots", Similarity: 0.8, Genres: []string{"pop"}},
	}
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{Genres: []string{"indie folk"}}, transport)

	req := search.Request{Query: "ride", Filters: &ranking.Filters{Genres: []string{"pop"}}}
	_, err := manager.StartSession(conn.ID, req)
	require.NoError(t, err)
	transport.waitFor(t, search.EventFinalResults)

	finals := transport.byType(search.EventFinalResults)
	require.Len(t, finals, 1)
	require.Len(t, finals[0].Tracks, 1)
	assert.Equal(t, "Ride", finals[0].Tracks[0].Title)
}

func TestLiveInput_DebouncesToLastInput(t *testing.T) {
	manager, text, clock, _ := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	require.NoError(t, manager.LiveInput(conn.ID, "j"))
	require.NoError(t, manager.LiveInput(conn.ID, "ja"))
	require.NoError(t, manager.LiveInput(conn.ID, "jazz"))

	clock.Advance(DefaultConfig().DebounceWindow)

	// Only the last input survives the window.
	assert.Equal(t, []string{"jazz"}, text.seen())
	require.Len(t, transport.byType(search.EventSuggestion), 1)

	partials := transport.byType(search.EventPartialResults)
	require.Len(t, partials, 1)
	assert.Equal(t, search.PreviewSource, partials[0].Source)
}

func TestLiveInput_ShortQuerySkipsPreview(t *testing.T) {
	manager, text, clock, _ := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	require.NoError(t, manager.LiveInput(conn.ID, "ja"))
	clock.Advance(DefaultConfig().DebounceWindow)

	assert.Empty(t, text.seen())
	assert.Len(t, transport.byType(search.EventSuggestion), 1)
	assert.Empty(t, transport.byType(search.EventPartialResults))
}

func TestLiveInput_NoConnection(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	assert.ErrorIs(t, manager.LiveInput("missing", "jazz"), domain.ErrNoActiveConnection)
}

func TestFeedbackAndInteraction(t *testing.T) {
	manager, _, _, store := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	sessionID, err := manager.StartSession(conn.ID, search.Request{Query: "q"})
	require.NoError(t, err)

	require.NoError(t, manager.Feedback(conn.ID, "track-1", true))
	require.NoError(t, manager.TrackInteraction(conn.ID, "track-1", "play"))

	sess, ok := store.session(sessionID)
	require.True(t, ok)
	require.Len(t, sess.Feedback, 1)
	assert.True(t, sess.Feedback[0].Liked)
	require.Len(t, sess.Interactions, 1)
	assert.Equal(t, "play", sess.Interactions[0].Action)
}

func TestFeedback_NoSession(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, newRecordingTransport())

	assert.ErrorIs(t, manager.Feedback(conn.ID, "track-1", true), domain.ErrSessionNotFound)
}

func TestJoinSession_ReroutesEvents(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	first := newRecordingTransport()
	second := newRecordingTransport()
	connA := manager.RegisterConnection("tp-a", domain.UserHint{}, first)
	connB := manager.RegisterConnection("tp-b", domain.UserHint{}, second)

	sessionID, err := manager.StartSession(connA.ID, search.Request{Query: "q"})
	require.NoError(t, err)
	first.waitFor(t, search.EventFinalResults)

	require.NoError(t, manager.JoinSession(connB.ID, sessionID))

	manager.Emit(sessionID, search.Event{Type: search.EventProgress, SessionID: sessionID})
	second.waitFor(t, search.EventProgress)
	assert.Len(t, second.byType(search.EventProgress), 1)
}

func TestJoinSession_UnknownSession(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, newRecordingTransport())

	assert.ErrorIs(t, manager.JoinSession(conn.ID, "missing"), domain.ErrSessionNotFound)
}

func TestEmit_DropsUnknownSession(t *testing.T) {
	manager, _, _, _ := setupManager(t)

	assert.NotPanics(t, func() {
		manager.Emit("stale-session", search.Event{Type: search.EventProgress})
	})
}

func TestHistoryAndSuggestions_RequireConnection(t *testing.T) {
	manager, _, _, _ := setupManager(t)

	_, err := manager.History("missing", 10)
	assert.ErrorIs(t, err, domain.ErrNoActiveConnection)

	_, err = manager.Suggestions("missing", "ja", 10)
	assert.ErrorIs(t, err, domain.ErrNoActiveConnection)
}

func TestProcessJobs_EvictsIdleState(t *testing.T) {
	manager, _, clock, store := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	_, err := manager.StartSession(conn.ID, search.Request{Query: "q"})
	require.NoError(t, err)
	transport.waitFor(t, search.EventFinalResults)

	clock.Advance(31 * time.Minute)
	require.NoError(t, manager.ProcessJobs(context.Background()))

	conns, sessions := store.Counts()
	assert.Zero(t, conns)
	assert.Zero(t, sessions)

	_, err = manager.History(conn.ID, 10)
	assert.ErrorIs(t, err, domain.ErrNoActiveConnection)
}

func TestProcessJobs_ConcurrentWithClientEvents(t *testing.T) {
	text := &countingTextSearcher{}
	index := history.NewIndex(10)
	pipeline := search.NewPipeline(text, nil, nil, index)
	store := NewStore()
	manager := NewManagerWithConfig(store, pipeline, index, DefaultConfig(), RealClock())

	conn := manager.RegisterConnection("tp-race", domain.UserHint{}, nil)

	// Hammer activity touches and session attach/detach while the sweep
	// runs; the race detector flags any Connection field read or written
	// outside the store lock.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = manager.RouteClientEvent(conn.ID, ClientEvent{Type: ClientGetSuggestions, Prefix: "ja", Limit: 5})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = manager.StartSession(conn.ID, search.Request{Query: "q"})
			manager.LeaveSession(conn.ID)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = manager.ProcessJobs(context.Background())
		}
	}()
	wg.Wait()

	conns, _ := store.Counts()
	assert.Equal(t, 1, conns)
}

func TestProcessJobs_KeepsActiveState(t *testing.T) {
	manager, _, clock, store := setupManager(t)
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, newRecordingTransport())

	clock.Advance(29 * time.Minute)
	require.NoError(t, manager.ProcessJobs(context.Background()))

	conns, _ := store.Counts()
	assert.Equal(t, 1, conns)
	_, ok := store.connection(conn.ID)
	assert.True(t, ok)
}

func TestRouteClientEvent(t *testing.T) {
	manager, _, _, _ := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	t.Run("unknown type", func(t *testing.T) {
		err := manager.RouteClientEvent(conn.ID, ClientEvent{Type: "bogus"})
		assert.Error(t, err)
	})

	t.Run("start search without request", func(t *testing.T) {
		err := manager.RouteClientEvent(conn.ID, ClientEvent{Type: ClientStartSearch})
		assert.ErrorIs(t, err, domain.ErrUnsupportedModalityCombination)
	})

	t.Run("get suggestions pushes event", func(t *testing.T) {
		err := manager.RouteClientEvent(conn.ID, ClientEvent{Type: ClientGetSuggestions, Prefix: "ja", Limit: 5})
		require.NoError(t, err)
		transport.waitFor(t, search.EventSuggestion)
	})

	t.Run("unknown connection", func(t *testing.T) {
		err := manager.RouteClientEvent("missing", ClientEvent{Type: ClientLeaveSession})
		assert.ErrorIs(t, err, domain.ErrNoActiveConnection)
	})
}

func TestDisconnect(t *testing.T) {
	manager, _, _, store := setupManager(t)
	transport := newRecordingTransport()
	conn := manager.RegisterConnection("tp-1", domain.UserHint{}, transport)

	sessionID, err := manager.StartSession(conn.ID, search.Request{Query: "q"})
	require.NoError(t, err)
	transport.waitFor(t, search.EventFinalResults)

	manager.Disconnect(conn.ID)

	conns, _ := store.Counts()
	assert.Zero(t, conns)

	// The session survives until the sweep; events for it are dropped.
	_, ok := store.session(sessionID)
	assert.True(t, ok)
	assert.NotPanics(t, func() {
		manager.Emit(sessionID, search.Event{Type: search.EventProgress})
	})
}
