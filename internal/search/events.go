package search

import (
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/ranking"
)

// EventType identifies a push event sent back to the client.
type EventType string

const (
	EventConnectionAck  EventType = "connection_ack"
	EventSessionStarted EventType = "session_started"
	EventProgress       EventType = "progress"
	EventPartialResults EventType = "partial_results"
	EventFinalResults   EventType = "final_results"
	EventError          EventType = "error"
	EventSuggestion     EventType = "suggestion"
)

// PreviewSource tags partial results produced by the live quick-search
// path rather than a pipeline stage.
const PreviewSource = "preview"

// TrackResult is the client-facing shape of a ranked candidate track.
type TrackResult struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	Album       string   `json:"album,omitempty"`
	Score       float64  `json:"score"`
	Similarity  float64  `json:"similarity"`
	Popularity  int      `json:"popularity,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Moods       []string `json:"moods,omitempty"`
	ReleaseYear int      `json:"release_year,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// Event is one push event on the live channel. Only the fields relevant
// to the event type are populated.
type Event struct {
	Type         EventType            `json:"type"`
	ConnectionID string               `json:"connection_id,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	Stage        string               `json:"stage,omitempty"`
	Percent      int                  `json:"percent,omitempty"`
	Source       string               `json:"source,omitempty"`
	Tracks       []*TrackResult       `json:"tracks,omitempty"`
	Message      string               `json:"message,omitempty"`
	Suggestions  []history.Suggestion `json:"suggestions,omitempty"`
}

// Emitter delivers push events for a session. Implementations must drop
// events for unknown or stale session ids rather than erroring.
type Emitter interface {
	Emit(sessionID string, event Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(sessionID string, event Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(sessionID string, event Event) {
	f(sessionID, event)
}

// NewTrackResult converts a fused, ranked track to its client shape.
func NewTrackResult(ft *ranking.FusedTrack) *TrackResult {
	t := ft.Track
	sources := make([]string, len(ft.Sources))
	for i, s := range ft.Sources {
		sources[i] = string(s)
	}
	return &TrackResult{
		Key:         ft.Key,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		Score:       ft.Score,
		Similarity:  ft.RawSimilarity,
		Popularity:  t.Popularity,
		Genres:      t.Genres,
		Moods:       t.Moods,
		ReleaseYear: t.ReleaseYear,
		DurationSec: t.DurationSec,
		Sources:     sources,
	}
}

// NewTrackResults converts a ranked sequence to its client shape.
func NewTrackResults(fts []*ranking.FusedTrack) []*TrackResult {
	out := make([]*TrackResult, len(fts))
	for i, ft := range fts {
		out[i] = NewTrackResult(ft)
	}
	return out
}

// NewPreviewResults converts raw candidate tracks from the quick-search
// path; these are unranked, so score mirrors the reported similarity.
func NewPreviewResults(tracks []*domain.CandidateTrack) []*TrackResult {
	out := make([]*TrackResult, len(tracks))
	for i, t := range tracks {
		out[i] = &TrackResult{
			Key:         t.Key(),
			Title:       t.Title,
			Artist:      t.Artist,
			Album:       t.Album,
			Score:       t.Similarity,
			Similarity:  t.Similarity,
			Popularity:  t.Popularity,
			Genres:      t.Genres,
			Moods:       t.Moods,
			ReleaseYear: t.ReleaseYear,
			DurationSec: t.DurationSec,
			Sources:     []string{string(t.Source)},
		}
	}
	return out
}
