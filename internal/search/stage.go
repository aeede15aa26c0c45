package search

import (
	"context"
	"fmt"

	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/telemetry"
)

// stageCandidateLimit caps how many candidates one modality contributes
// before fusion.
const stageCandidateLimit = 50

// runStage executes one modality's search against its collaborator and
// normalizes the result shape: every returned track carries its source
// modality so fusion can tag partial results.
func (p *Pipeline) runStage(ctx context.Context, modality domain.Modality, req Request) ([]*domain.CandidateTrack, error) {
	ctx, span := telemetry.StartSpan(ctx, "Pipeline.RunStage", telemetry.SpanAttributes{
		Modality:  string(modality),
		Operation: "stage",
	})
	defer span.End()

	var (
		tracks []*domain.CandidateTrack
		err    error
	)

	switch modality {
	case domain.ModalityText:
		if p.text == nil {
			return nil, domain.ErrCollaboratorUnavailable
		}
		tracks, err = p.text.Search(ctx, req.Query, stageCandidateLimit)
	case domain.ModalityImage:
		if p.image == nil {
			return nil, domain.ErrCollaboratorUnavailable
		}
		tracks, err = p.image.SearchByImage(ctx, req.ImageRef)
	case domain.ModalityAudio:
		if p.audio == nil {
			return nil, domain.ErrCollaboratorUnavailable
		}
		tracks, err = p.audio.SearchByAudio(ctx, req.AudioRef)
	default:
		return nil, fmt.Errorf("unknown modality %q", modality)
	}

	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCollaboratorFailure,
			fmt.Sprintf("%s search failed", modality), err)
	}

	for _, t := range tracks {
		if t != nil && t.Source == "" {
			t.Source = modality
		}
	}
	return tracks, nil
}
