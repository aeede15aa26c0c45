package domain

import "time"

// UserHint carries client-supplied preference hints used to shape ranking.
type UserHint struct {
	UserID string   `json:"user_id,omitempty"`
	Genres []string `json:"genres,omitempty"`
	Moods  []string `json:"moods,omitempty"`
}

// Connection represents one live client transport.
// Owned exclusively by the session manager; destroyed on transport close.
type Connection struct {
	ID           string
	TransportID  string
	UserID       string
	SessionID    string
	Hint         UserHint
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Feedback captures a like/dislike for a track within a session.
type Feedback struct {
	TrackID string    `json:"track_id"`
	Liked   bool      `json:"liked"`
	At      time.Time `json:"at"`
}

// Interaction records a non-feedback track event (play, save, open).
type Interaction struct {
	TrackID string    `json:"track_id"`
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
}

// SearchSession represents one active search flow. A connection has at most
// one active session at a time; a session outlives a brief disconnect only
// until the idle-timeout sweep runs.
type SearchSession struct {
	ID           string
	UserID       string
	Query        string
	Modalities   []Modality
	CreatedAt    time.Time
	Feedback     []Feedback
	Interactions []Interaction

	// ResultKeys holds the identity keys of the most recent completed
	// search, newest ranking order first.
	ResultKeys []string
}

// AddFeedback appends a feedback entry to the session record.
func (s *SearchSession) AddFeedback(trackID string, liked bool, at time.Time) {
	s.Feedback = append(s.Feedback, Feedback{TrackID: trackID, Liked: liked, At: at})
}

// AddInteraction appends a track interaction to the session record.
func (s *SearchSession) AddInteraction(trackID, action string, at time.Time) {
	s.Interactions = append(s.Interactions, Interaction{TrackID: trackID, Action: action, At: at})
}
