// Package spotify implements the text-search collaborator against the
// Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/waveform-labs/melodex/internal/domain"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

// CatalogAPI is the slice of the Spotify client the collaborator uses.
type CatalogAPI interface {
	Search(ctx context.Context, query string, t spotifyapi.SearchType, opts ...spotifyapi.RequestOption) (*spotifyapi.SearchResult, error)
	GetAudioFeatures(ctx context.Context, ids ...spotifyapi.ID) ([]*spotifyapi.AudioFeatures, error)
}

// Client searches the Spotify catalog and normalizes hits into candidate
// tracks. Outbound calls go through a rate limiter so bursts of sessions
// stay inside the API quota.
type Client struct {
	api     CatalogAPI
	limiter *rate.Limiter
}

// New creates a client authenticated with the client-credentials flow.
func New(ctx context.Context, clientID, clientSecret string) *Client {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := config.Client(ctx)
	return NewWithAPI(spotifyapi.New(httpClient))
}

// NewWithAPI creates a client over an existing API handle, used by tests.
func NewWithAPI(api CatalogAPI) *Client {
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
	}
}

// Search looks up tracks by free text and returns them as normalized
// candidates. Spotify does not report a similarity score, so one is
// derived from Jaro-Winkler similarity between the query and each hit's
// artist and title.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*domain.CandidateTrack, error) {
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.api.Search(ctx, query, spotifyapi.SearchTypeTrack, spotifyapi.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return []*domain.CandidateTrack{}, nil
	}

	hits := result.Tracks.Tracks
	features := c.fetchAudioFeatures(ctx, hits)

	tracks := make([]*domain.CandidateTrack, 0, len(hits))
	for _, hit := range hits {
		artist := joinArtists(hit.Artists)
		track := &domain.CandidateTrack{
			Title:       hit.Name,
			Artist:      artist,
			Album:       hit.Album.Name,
			SourceID:    string(hit.ID),
			Source:      domain.ModalityText,
			Similarity:  querySimilarity(query, artist, hit.Name),
			Popularity:  int(hit.Popularity),
			DurationSec: int(hit.TimeDuration().Seconds()),
			ReleaseYear: releaseYear(hit.Album.ReleaseDate),
		}
		if f, ok := features[hit.ID]; ok {
			track.Features = f
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// fetchAudioFeatures enriches hits with the audio analysis vector. A
// failure here degrades ranking quality but never fails the search.
func (c *Client) fetchAudioFeatures(ctx context.Context, hits []spotifyapi.FullTrack) map[spotifyapi.ID]*domain.AudioFeatures {
	ids := make([]spotifyapi.ID, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}
	features, err := c.api.GetAudioFeatures(ctx, ids...)
	if err != nil {
		log.Printf("spotify audio features: %v", err)
		return nil
	}

	out := make(map[spotifyapi.ID]*domain.AudioFeatures, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		out[f.ID] = &domain.AudioFeatures{
			Tempo:            float64(f.Tempo),
			Energy:           float64(f.Energy),
			Valence:          float64(f.Valence),
			Danceability:     float64(f.Danceability),
			Acousticness:     float64(f.Acousticness),
			Instrumentalness: float64(f.Instrumentalness),
			Liveness:         float64(f.Liveness),
			Speechiness:      float64(f.Speechiness),
		}
	}
	return out
}

func joinArtists(artists []spotifyapi.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func querySimilarity(query, artist, title string) float64 {
	candidate := strings.ToLower(strings.TrimSpace(artist + " " + title))
	return strutil.Similarity(strings.ToLower(strings.TrimSpace(query)), candidate, metrics.NewJaroWinkler())
}

// releaseYear parses the leading year out of Spotify's release date,
// which may be "2006", "2006-01" or "2006-01-02".
func releaseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}
