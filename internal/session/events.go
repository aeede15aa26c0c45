package session

import "github.com/waveform-labs/melodex/internal/search"

// ClientEventType identifies an inbound client event on the live channel.
type ClientEventType string

const (
	ClientStartSearch      ClientEventType = "start_search"
	ClientLiveInput        ClientEventType = "live_input"
	ClientFeedback         ClientEventType = "feedback"
	ClientTrackInteraction ClientEventType = "track_interaction"
	ClientJoinSession      ClientEventType = "join_session"
	ClientLeaveSession     ClientEventType = "leave_session"
	ClientGetHistory       ClientEventType = "get_history"
	ClientGetSuggestions   ClientEventType = "get_suggestions"
)

// ClientEvent is one inbound event from a connected client. Only the
// fields relevant to the event type are populated.
type ClientEvent struct {
	Type      ClientEventType `json:"type"`
	Request   *search.Request `json:"request,omitempty"`
	Text      string          `json:"text,omitempty"`
	Prefix    string          `json:"prefix,omitempty"`
	TrackID   string          `json:"track_id,omitempty"`
	Liked     bool            `json:"liked,omitempty"`
	Action    string          `json:"action,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}
