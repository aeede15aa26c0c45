package ranking

import (
	"math"

	"github.com/waveform-labs/melodex/internal/domain"
)

const (
	// multiSourceBonus rewards tracks that independent modalities agree on.
	// Heuristic constant, treated as a replaceable policy.
	multiSourceBonus = 1.2
)

// ModalityList is one modality's normalized result list, in ranked order.
type ModalityList struct {
	Source domain.Modality
	Tracks []*domain.CandidateTrack
}

// FusedTrack is one deduplicated candidate after fusion across modalities.
type FusedTrack struct {
	Track *domain.CandidateTrack

	// Key is the stable identity key the track was merged under.
	Key string

	// Provisional is the fused similarity score: per-modality provisional
	// scores averaged, with the multi-source bonus applied.
	Provisional float64

	// RawSimilarity is the highest collaborator-reported similarity seen
	// for this track across all modality lists.
	RawSimilarity float64

	// Sources lists the modalities this track appeared in, in the fixed
	// text -> image -> audio order.
	Sources []domain.Modality

	// Score is the composite ranking score, set by Rank.
	Score float64
}

// Fuse merges per-modality result lists into one deduplicated candidate set.
// Each track's provisional score is its similarity when the source reported
// one, otherwise 1 - index/len so earlier-ranked items are rewarded. Tracks
// appearing in more than one list have their provisional scores averaged and
// multiplied by the multi-source bonus.
//
// The returned order is the first-seen order across the input lists; callers
// are expected to run Rank before presenting results.
func Fuse(lists []ModalityList) []*FusedTrack {
	merged := make(map[string]*fusionAccumulator)
	order := make([]string, 0)

	for _, list := range lists {
		n := len(list.Tracks)
		for i, t := range list.Tracks {
			if t == nil {
				continue
			}
			provisional := t.Similarity
			if provisional <= 0 {
				provisional = 1 - float64(i)/float64(n)
			}

			key := t.Key()
			acc, ok := merged[key]
			if !ok {
				cloned := *t
				acc = &fusionAccumulator{track: &cloned, key: key}
				merged[key] = acc
				order = append(order, key)
			}
			acc.add(list.Source, t, provisional)
		}
	}

	out := make([]*FusedTrack, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key].finish())
	}
	return out
}

type fusionAccumulator struct {
	track          *domain.CandidateTrack
	key            string
	provisionalSum float64
	count          int
	rawSimilarity  float64
	sources        []domain.Modality
}

func (a *fusionAccumulator) add(source domain.Modality, t *domain.CandidateTrack, provisional float64) {
	a.provisionalSum += provisional
	a.count++
	a.rawSimilarity = math.Max(a.rawSimilarity, t.Similarity)
	if !a.hasSource(source) {
		a.sources = append(a.sources, source)
	}

	// Keep the richest metadata seen for the track across sources.
	if a.track.Features == nil && t.Features != nil {
		a.track.Features = t.Features
	}
	if len(a.track.Genres) == 0 && len(t.Genres) > 0 {
		a.track.Genres = t.Genres
	}
	if len(a.track.Moods) == 0 && len(t.Moods) > 0 {
		a.track.Moods = t.Moods
	}
	if a.track.Popularity == 0 && t.Popularity > 0 {
		a.track.Popularity = t.Popularity
	}
	if a.track.ReleaseYear == 0 && t.ReleaseYear > 0 {
		a.track.ReleaseYear = t.ReleaseYear
	}
	if a.track.DurationSec == 0 && t.DurationSec > 0 {
		a.track.DurationSec = t.DurationSec
	}
	if a.track.Album == "" && t.Album != "" {
		a.track.Album = t.Album
	}
}

func (a *fusionAccumulator) hasSource(source domain.Modality) bool {
	for _, s := range a.sources {
		if s == source {
			return true
		}
	}
	return false
}

func (a *fusionAccumulator) finish() *FusedTrack {
	provisional := a.provisionalSum / float64(a.count)
	if len(a.sources) > 1 {
		provisional *= multiSourceBonus
	}
	return &FusedTrack{
		Track:         a.track,
		Key:           a.key,
		Provisional:   provisional,
		RawSimilarity: a.rawSimilarity,
		Sources:       a.sources,
	}
}
