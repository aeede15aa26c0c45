package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/waveform-labs/melodex/internal/api/handlers"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/search"
	"github.com/waveform-labs/melodex/internal/session"
)

type MockTextSearcher struct {
	mock.Mock
}

func (m *MockTextSearcher) Search(ctx context.Context, query string, limit int) ([]*domain.CandidateTrack, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CandidateTrack), args.Error(1)
}

type MockImageSearcher struct {
	mock.Mock
}

func (m *MockImageSearcher) SearchByImage(ctx context.Context, imageRef string) ([]*domain.CandidateTrack, error) {
	args := m.Called(ctx, imageRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CandidateTrack), args.Error(1)
}

type MockAudioSearcher struct {
	mock.Mock
}

func (m *MockAudioSearcher) SearchByAudio(ctx context.Context, audioRef string) ([]*domain.CandidateTrack, error) {
	args := m.Called(ctx, audioRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CandidateTrack), args.Error(1)
}

func setupRouter() (http.Handler, *MockTextSearcher, *history.Index) {
	text := new(MockTextSearcher)
	image := new(MockImageSearcher)
	audio := new(MockAudioSearcher)

	index := history.NewIndex(history.DefaultCapacity)
	pipeline := search.NewPipeline(text, image, audio, index)
	manager := session.NewManager(session.NewStore(), pipeline, index)

	cfg := RouterConfig{
		SearchHandler: handlers.NewSearchHandler(pipeline, manager, index),
		WSHandler:     handlers.NewWSHandler(manager),
	}

	return NewRouter(cfg), text, index
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_Search_OneShot(t *testing.T) {
	router, text, _ := setupRouter()

	tracks := []*domain.CandidateTrack{
		{Title: "Holocene", Artist: "Bon Iver", SourceID: "sp-1", Source: domain.ModalityText, Similarity: 0.9, Popularity: 70},
		{Title: "Re: Stacks", Artist: "Bon Iver", SourceID: "sp-2", Source: domain.ModalityText, Similarity: 0.6, Popularity: 55},
	}
	text.On("Search", mock.Anything, "bon iver", mock.Anything).Return(tracks, nil)

	body := strings.NewReader(`{"query":"bon iver"}`)
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			SessionID string `json:"session_id"`
			Tracks    []struct {
				Title  string  `json:"title"`
				Artist string  `json:"artist"`
				Score  float64 `json:"score"`
			} `json:"tracks"`
		} `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	require.Len(t, resp.Data.Tracks, 2)
	assert.Equal(t, "Holocene", resp.Data.Tracks[0].Title)
	assert.NotEmpty(t, resp.Data.SessionID)
	text.AssertExpectations(t)
}

func TestRouter_Search_NoModality(t *testing.T) {
	router, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Suggestions(t *testing.T) {
	router, _, index := setupRouter()

	index.RecordSearch("rainy jazz", domain.ModalityText, nil, 5, 0)

	req := httptest.NewRequest(http.MethodGet, "/suggestions?prefix=rain", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Suggestions []struct {
				Text   string `json:"text"`
				Source string `json:"source"`
			} `json:"suggestions"`
		} `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	require.NotEmpty(t, resp.Data.Suggestions)
	assert.Equal(t, "rainy jazz", resp.Data.Suggestions[0].Text)
}

func TestRouter_History_UnknownConnection(t *testing.T) {
	router, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/history?connection_id=missing", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
