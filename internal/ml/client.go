// Package ml implements the image and audio search collaborators against
// the external embedding/similarity service.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/waveform-labs/melodex/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	defaultLimit   = 25
)

// Config holds the ML service client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is an HTTP client for the embedding/similarity service. The
// service owns embedding computation entirely; this client only submits
// references and normalizes what comes back.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an ML service client using defaults.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithConfig(Config{BaseURL: baseURL, APIKey: apiKey})
}

// NewClientWithConfig creates an ML service client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}
}

type searchRequest struct {
	ImageRef string `json:"image_ref,omitempty"`
	AudioRef string `json:"audio_ref,omitempty"`
	Limit    int    `json:"limit"`
}

type trackPayload struct {
	Title       string                `json:"title"`
	Artist      string                `json:"artist"`
	Album       string                `json:"album,omitempty"`
	ID          string                `json:"id,omitempty"`
	Similarity  float64               `json:"similarity"`
	Popularity  int                   `json:"popularity"`
	Genres      []string              `json:"genres,omitempty"`
	Moods       []string              `json:"moods,omitempty"`
	Features    *domain.AudioFeatures `json:"features,omitempty"`
	DurationSec int                   `json:"duration_sec,omitempty"`
	ReleaseYear int                   `json:"release_year,omitempty"`
}

type searchResponse struct {
	Tracks []trackPayload `json:"tracks"`
}

// SearchByImage finds tracks whose mood matches the referenced image.
func (c *Client) SearchByImage(ctx context.Context, imageRef string) ([]*domain.CandidateTrack, error) {
	return c.search(ctx, "/v1/search/image", searchRequest{ImageRef: imageRef, Limit: defaultLimit}, domain.ModalityImage)
}

// SearchByAudio finds tracks similar to the referenced audio sample.
func (c *Client) SearchByAudio(ctx context.Context, audioRef string) ([]*domain.CandidateTrack, error) {
	return c.search(ctx, "/v1/search/audio", searchRequest{AudioRef: audioRef, Limit: defaultLimit}, domain.ModalityAudio)
}

func (c *Client) search(ctx context.Context, path string, reqBody searchRequest, source domain.Modality) ([]*domain.CandidateTrack, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ml search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ml search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ml search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ml search: unexpected status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ml search: decode response: %w", err)
	}

	tracks := make([]*domain.CandidateTrack, 0, len(body.Tracks))
	for _, p := range body.Tracks {
		tracks = append(tracks, &domain.CandidateTrack{
			Title:       p.Title,
			Artist:      p.Artist,
			Album:       p.Album,
			SourceID:    p.ID,
			Source:      source,
			Similarity:  p.Similarity,
			Popularity:  p.Popularity,
			Genres:      p.Genres,
			Moods:       p.Moods,
			Features:    p.Features,
			DurationSec: p.DurationSec,
			ReleaseYear: p.ReleaseYear,
		})
	}
	return tracks, nil
}
