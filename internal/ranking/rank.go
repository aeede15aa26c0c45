package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/waveform-labs/melodex/internal/domain"
)

const (
	// MaxLimit caps a single page of ranked results.
	MaxLimit = 50

	// DefaultLimit is used when a request supplies no limit.
	DefaultLimit = 20

	recencyHorizonYears = 50
)

// Weights control the composite ranking score. Callers may override them;
// the defaults sum to 1.0 but that is not enforced.
type Weights struct {
	Similarity float64 `json:"similarity"`
	Popularity float64 `json:"popularity"`
	Recency    float64 `json:"recency"`
	Mood       float64 `json:"mood"`
}

// DefaultWeights returns the standard ranking weights.
func DefaultWeights() Weights {
	return Weights{
		Similarity: 0.4,
		Popularity: 0.3,
		Recency:    0.2,
		Mood:       0.1,
	}
}

// Rank assigns each track its composite score and sorts in place:
// descending score, ties broken by descending raw similarity, then by
// identity key so the ordering is fully deterministic.
func Rank(tracks []*FusedTrack, w Weights, now time.Time) {
	currentYear := now.Year()
	for _, ft := range tracks {
		ft.Score = compositeScore(ft, w, currentYear)
	}
	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].Score != tracks[j].Score {
			return tracks[i].Score > tracks[j].Score
		}
		if tracks[i].RawSimilarity != tracks[j].RawSimilarity {
			return tracks[i].RawSimilarity > tracks[j].RawSimilarity
		}
		return tracks[i].Key < tracks[j].Key
	})
}

func compositeScore(ft *FusedTrack, w Weights, currentYear int) float64 {
	t := ft.Track
	score := ft.Provisional * w.Similarity
	score += float64(t.Popularity) / 100 * w.Popularity
	score += recencyScore(t.ReleaseYear, currentYear) * w.Recency
	score += moodMatchScore(t.Features) * w.Mood
	return score
}

func recencyScore(releaseYear, currentYear int) float64 {
	if releaseYear <= 0 {
		return 0
	}
	age := float64(currentYear - releaseYear)
	return math.Max(0, 1-age/recencyHorizonYears)
}

// moodMatchScore scores tracks highest when valence, energy and
// danceability average near the numeric middle. A design simplification,
// not a learned model.
func moodMatchScore(features *domain.AudioFeatures) float64 {
	if features == nil {
		return 0
	}
	mean := (features.Valence + features.Energy + features.Danceability) / 3
	return 1 - math.Abs(0.5-mean)
}

// Paginate slices the fully ranked sequence. The limit is clamped to
// MaxLimit; a non-positive limit falls back to DefaultLimit.
func Paginate(tracks []*FusedTrack, offset, limit int) []*FusedTrack {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tracks) {
		return []*FusedTrack{}
	}
	tracks = tracks[offset:]
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks
}

// Run executes the full fusion, filter, rank and pagination pass.
func Run(lists []ModalityList, filters *Filters, weights *Weights, offset, limit int, now time.Time) ([]*FusedTrack, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return nil, domain.ErrInvalidPagination
	}

	w := DefaultWeights()
	if weights != nil {
		w = *weights
	}

	fused := Fuse(lists)
	filtered := ApplyFilters(fused, filters)
	Rank(filtered, w, now)
	return Paginate(filtered, offset, limit), nil
}
