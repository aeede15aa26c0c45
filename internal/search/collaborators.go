package search

import (
	"context"

	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/ranking"
)

// TextSearcher searches the music catalog by free text.
type TextSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*domain.CandidateTrack, error)
}

// ImageSearcher finds tracks whose mood matches an uploaded image.
type ImageSearcher interface {
	SearchByImage(ctx context.Context, imageRef string) ([]*domain.CandidateTrack, error)
}

// AudioSearcher finds tracks similar to an uploaded audio sample.
type AudioSearcher interface {
	SearchByAudio(ctx context.Context, audioRef string) ([]*domain.CandidateTrack, error)
}

// Request describes one search across one or more modalities.
type Request struct {
	Query    string `json:"query,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
	AudioRef string `json:"audio_ref,omitempty"`

	Filters *ranking.Filters `json:"filters,omitempty"`
	Weights *ranking.Weights `json:"weights,omitempty"`

	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`

	// Progressive requests partial-result events per stage; a one-shot
	// request only receives the final ranked set.
	Progressive bool `json:"progressive,omitempty"`
}

// Modalities returns the modalities present in the request, in the fixed
// text -> image -> audio execution order.
func (r *Request) Modalities() []domain.Modality {
	modalities := make([]domain.Modality, 0, 3)
	if r.Query != "" {
		modalities = append(modalities, domain.ModalityText)
	}
	if r.ImageRef != "" {
		modalities = append(modalities, domain.ModalityImage)
	}
	if r.AudioRef != "" {
		modalities = append(modalities, domain.ModalityAudio)
	}
	return modalities
}

// Validate rejects requests that cannot run: no usable modality, malformed
// filter ranges, or negative pagination.
func (r *Request) Validate() error {
	if len(r.Modalities()) == 0 {
		return domain.ErrUnsupportedModalityCombination
	}
	if err := r.Filters.Validate(); err != nil {
		return err
	}
	if r.Offset < 0 || r.Limit < 0 {
		return domain.ErrInvalidPagination
	}
	return nil
}
