package ranking

import (
	"strings"

	"github.com/waveform-labs/melodex/internal/domain"
)

// Range constrains a numeric track attribute to [Min, Max].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// YearRange constrains the release year to [From, To].
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Filters are optional attribute constraints applied before ranking.
// Filters are conjunctive: a track is dropped if it fails any supplied
// dimension. A dimension that is not supplied never drops a track.
type Filters struct {
	Genres       []string   `json:"genres,omitempty"`
	Moods        []string   `json:"moods,omitempty"`
	Tempo        *Range     `json:"tempo,omitempty"`
	Energy       *Range     `json:"energy,omitempty"`
	Danceability *Range     `json:"danceability,omitempty"`
	Valence      *Range     `json:"valence,omitempty"`
	DurationSec  *Range     `json:"duration_sec,omitempty"`
	ReleaseYear  *YearRange `json:"release_year,omitempty"`
}

// Validate rejects malformed filter ranges before any search stage runs.
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	for _, r := range []*Range{f.Tempo, f.Energy, f.Danceability, f.Valence, f.DurationSec} {
		if r != nil && r.Min > r.Max {
			return domain.ErrInvalidFilterRange
		}
	}
	if f.ReleaseYear != nil && f.ReleaseYear.From > f.ReleaseYear.To {
		return domain.ErrInvalidFilterRange
	}
	return nil
}

// IsEmpty reports whether no dimension is supplied.
func (f *Filters) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Genres) == 0 && len(f.Moods) == 0 &&
		f.Tempo == nil && f.Energy == nil && f.Danceability == nil &&
		f.Valence == nil && f.DurationSec == nil && f.ReleaseYear == nil
}

// ApplyFilters returns the tracks that pass every supplied dimension.
// Once a dimension is supplied it is strict: a track missing that
// dimension's data fails it.
func ApplyFilters(tracks []*FusedTrack, f *Filters) []*FusedTrack {
	if f.IsEmpty() {
		return tracks
	}
	out := make([]*FusedTrack, 0, len(tracks))
	for _, ft := range tracks {
		if passesFilters(ft.Track, f) {
			out = append(out, ft)
		}
	}
	return out
}

func passesFilters(t *domain.CandidateTrack, f *Filters) bool {
	if len(f.Genres) > 0 && !containsAnyFold(t.Genres, f.Genres) {
		return false
	}
	if len(f.Moods) > 0 && !containsAnyFold(t.Moods, f.Moods) {
		return false
	}
	if !passesFeatureRange(t.Features, f.Tempo, func(a *domain.AudioFeatures) float64 { return a.Tempo }) {
		return false
	}
	if !passesFeatureRange(t.Features, f.Energy, func(a *domain.AudioFeatures) float64 { return a.Energy }) {
		return false
	}
	if !passesFeatureRange(t.Features, f.Danceability, func(a *domain.AudioFeatures) float64 { return a.Danceability }) {
		return false
	}
	if !passesFeatureRange(t.Features, f.Valence, func(a *domain.AudioFeatures) float64 { return a.Valence }) {
		return false
	}
	if f.DurationSec != nil {
		d := float64(t.DurationSec)
		if t.DurationSec <= 0 || d < f.DurationSec.Min || d > f.DurationSec.Max {
			return false
		}
	}
	if f.ReleaseYear != nil {
		if t.ReleaseYear <= 0 || t.ReleaseYear < f.ReleaseYear.From || t.ReleaseYear > f.ReleaseYear.To {
			return false
		}
	}
	return true
}

func passesFeatureRange(features *domain.AudioFeatures, r *Range, pick func(*domain.AudioFeatures) float64) bool {
	if r == nil {
		return true
	}
	if features == nil {
		return false
	}
	v := pick(features)
	return v >= r.Min && v <= r.Max
}

func containsAnyFold(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}
