package domain

import "strings"

// Modality identifies one input channel to a search.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// IsValidModality checks if a modality is one of the supported channels
func IsValidModality(m Modality) bool {
	switch m {
	case ModalityText, ModalityImage, ModalityAudio:
		return true
	default:
		return false
	}
}

// AudioFeatures holds the normalized audio analysis vector for a track.
// All values except Tempo are in [0,1]; Tempo is beats per minute.
type AudioFeatures struct {
	Tempo            float64 `json:"tempo"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Danceability     float64 `json:"danceability"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Speechiness      float64 `json:"speechiness"`
}

// CandidateTrack is a normalized result from any modality search.
// Upstream ids differ by source, so identity is derived from title+artist.
type CandidateTrack struct {
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	Album    string   `json:"album,omitempty"`
	SourceID string   `json:"source_id,omitempty"`
	Source   Modality `json:"source,omitempty"`

	// Similarity is the collaborator-reported score in [0,1].
	// Zero means the source did not report one; fusion falls back to
	// positional rank in that case.
	Similarity float64 `json:"similarity,omitempty"`

	// Popularity is in [0,100].
	Popularity int `json:"popularity,omitempty"`

	Features    *AudioFeatures `json:"features,omitempty"`
	Genres      []string       `json:"genres,omitempty"`
	Moods       []string       `json:"moods,omitempty"`
	DurationSec int            `json:"duration_sec,omitempty"`
	ReleaseYear int            `json:"release_year,omitempty"`
}

// Key returns the stable identity key used to recognize the same track
// across sources: lower-cased, whitespace-collapsed title and artist.
func (t *CandidateTrack) Key() string {
	return TrackKey(t.Title, t.Artist)
}

// TrackKey builds the identity key for a title/artist pair.
func TrackKey(title, artist string) string {
	return normalizeKeyPart(title) + "|" + normalizeKeyPart(artist)
}

func normalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
