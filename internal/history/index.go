// Package history provides the bounded in-memory search history and
// suggestion index. The index is constructed once per process and passed
// by reference; there are no package-level singletons.
package history

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/ranking"
)

// DefaultCapacity bounds the history ring buffer.
const DefaultCapacity = 100

// Entry is one recorded search, append-only and evicted oldest-first.
type Entry struct {
	ID             string           `json:"id"`
	Query          string           `json:"query"`
	Modality       domain.Modality  `json:"modality"`
	Filters        *ranking.Filters `json:"filters,omitempty"`
	ResultCount    int              `json:"result_count"`
	Timestamp      time.Time        `json:"timestamp"`
	ProcessingTime time.Duration    `json:"processing_time"`
}

// SuggestionSource identifies which source produced a suggestion.
type SuggestionSource string

const (
	SuggestionSourcePopular SuggestionSource = "popular"
	SuggestionSourceMood    SuggestionSource = "mood"
	SuggestionSourceGenre   SuggestionSource = "genre"
)

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Text   string           `json:"text"`
	Source SuggestionSource `json:"source"`
	Count  int              `json:"count,omitempty"`
}

// Mood and genre vocabularies backing keyword suggestions.
var (
	moodKeywords = []string{
		"happy", "sad", "energetic", "calm", "romantic", "melancholic",
		"upbeat", "chill", "dark", "dreamy", "angry", "nostalgic",
	}
	genreKeywords = []string{
		"rock", "pop", "jazz", "classical", "hip hop", "electronic",
		"indie", "metal", "folk", "blues", "country", "r&b", "soul",
		"ambient", "funk", "reggae",
	}
)

// Index stores past queries with frequency counts. The entries ring is
// bounded; the popular-query counter grows without bound, a known
// limitation carried over deliberately.
type Index struct {
	mu       sync.Mutex
	capacity int
	entries  []*Entry       // ring buffer, oldest first
	popular  map[string]int // normalized query -> occurrence count
	now      func() time.Time
}

// NewIndex creates an index with the given ring capacity.
// A non-positive capacity falls back to DefaultCapacity.
func NewIndex(capacity int) *Index {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Index{
		capacity: capacity,
		entries:  make([]*Entry, 0, capacity),
		popular:  make(map[string]int),
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (i *Index) SetNowFunc(now func() time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.now = now
}

// RecordSearch appends a history entry, evicting the oldest when full, and
// increments the popular-query counter for the normalized query.
func (i *Index) RecordSearch(query string, modality domain.Modality, filters *ranking.Filters, resultCount int, processingTime time.Duration) *Entry {
	i.mu.Lock()
	defer i.mu.Unlock()

	normalized := NormalizeQuery(query)
	entry := &Entry{
		ID:             uuid.NewString(),
		Query:          normalized,
		Modality:       modality,
		Filters:        filters,
		ResultCount:    resultCount,
		Timestamp:      i.now(),
		ProcessingTime: processingTime,
	}

	if len(i.entries) >= i.capacity {
		i.entries = i.entries[1:]
	}
	i.entries = append(i.entries, entry)

	if normalized != "" {
		i.popular[normalized]++
	}
	return entry
}

// History returns entries newest-first, truncated to limit.
func (i *Index) History(limit int) []*Entry {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limit <= 0 || limit > len(i.entries) {
		limit = len(i.entries)
	}
	out := make([]*Entry, 0, limit)
	for n := len(i.entries) - 1; n >= 0 && len(out) < limit; n-- {
		out = append(out, i.entries[n])
	}
	return out
}

// Suggest returns up to limit suggestions merged from three sources in
// fixed priority order: popular-query substring matches sorted by count,
// then mood keywords, then genre keywords. The sources are not
// deduplicated against each other.
func (i *Index) Suggest(prefix string, limit int) []Suggestion {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	needle := NormalizeQuery(prefix)
	out := make([]Suggestion, 0, limit)

	for _, p := range i.popularMatches(needle) {
		if len(out) >= limit {
			return out
		}
		out = append(out, p)
	}
	for _, kw := range moodKeywords {
		if len(out) >= limit {
			return out
		}
		if needle == "" || strings.Contains(kw, needle) {
			out = append(out, Suggestion{Text: kw, Source: SuggestionSourceMood})
		}
	}
	for _, kw := range genreKeywords {
		if len(out) >= limit {
			return out
		}
		if needle == "" || strings.Contains(kw, needle) {
			out = append(out, Suggestion{Text: kw, Source: SuggestionSourceGenre})
		}
	}
	return out
}

func (i *Index) popularMatches(needle string) []Suggestion {
	matches := make([]Suggestion, 0)
	for query, count := range i.popular {
		if needle == "" || strings.Contains(query, needle) {
			matches = append(matches, Suggestion{Text: query, Source: SuggestionSourcePopular, Count: count})
		}
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Count != matches[b].Count {
			return matches[a].Count > matches[b].Count
		}
		return matches[a].Text < matches[b].Text
	})
	return matches
}

// PopularCount returns the occurrence count for a query.
func (i *Index) PopularCount(query string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.popular[NormalizeQuery(query)]
}

// NormalizeQuery lower-cases and collapses whitespace in a query string.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
