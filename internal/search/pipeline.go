// Package search implements the progressive multi-modal search pipeline:
// the per-session state machine that runs modality stages in a fixed
// order, streams progress and partial results, and hands the accumulated
// candidates to the fusion and ranking pass.
package search

import (
	"context"
	"log"
	"time"

	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/ranking"
	"github.com/waveform-labs/melodex/internal/telemetry"
)

// State is the pipeline state for one session's search run.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateTextStage    State = "text_stage"
	StateImageStage   State = "image_stage"
	StateAudioStage   State = "audio_stage"
	StateRanking      State = "ranking"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Fixed progress checkpoints. Only requested stages emit, so the
// sequence a client sees is always strictly increasing.
var progressCheckpoints = map[State]int{
	StateInitializing: 20,
	StateTextStage:    50,
	StateImageStage:   70,
	StateAudioStage:   90,
	StateRanking:      95,
	StateCompleted:    100,
}

var stageStates = map[domain.Modality]State{
	domain.ModalityText:  StateTextStage,
	domain.ModalityImage: StateImageStage,
	domain.ModalityAudio: StateAudioStage,
}

// Pipeline orchestrates staged searches across modality collaborators.
// It is stateless between runs; per-run state lives on the stack so
// concurrent sessions never contend.
type Pipeline struct {
	text  TextSearcher
	image ImageSearcher
	audio AudioSearcher
	index *history.Index
	now   func() time.Time
}

// NewPipeline creates a pipeline over the given collaborators. A nil
// collaborator means that modality is not configured; requests naming it
// get empty results for that stage.
func NewPipeline(text TextSearcher, image ImageSearcher, audio AudioSearcher, index *history.Index) *Pipeline {
	return &Pipeline{
		text:  text,
		image: image,
		audio: audio,
		index: index,
		now:   time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (p *Pipeline) SetNowFunc(now func() time.Time) {
	p.now = now
}

// Run executes the staged search for one session. Per-stage collaborator
// failures are swallowed and contribute empty results; only total failure
// surfaces, as a single error event plus ErrAllModalitiesFailed. On
// success the final ranked set is emitted and one history entry recorded.
//
// Validation errors are returned before any stage runs and emit nothing.
func (p *Pipeline) Run(ctx context.Context, sess *domain.SearchSession, req Request, emit Emitter) ([]*ranking.FusedTrack, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "Pipeline.Run", telemetry.SpanAttributes{
		SessionID: sess.ID,
		Operation: "search",
	})
	defer span.End()

	start := p.now()
	modalities := req.Modalities()
	p.emitProgress(emit, sess.ID, StateInitializing)

	lists := make([]ranking.ModalityList, 0, len(modalities))
	failures := 0
	for _, modality := range modalities {
		state := stageStates[modality]
		tracks, err := p.runStage(ctx, modality, req)
		if err != nil {
			// Recovered locally: the stage contributes nothing and
			// sibling stages still run.
			log.Printf("session %s: %s stage failed: %v", sess.ID, modality, err)
			failures++
			tracks = nil
		}
		lists = append(lists, ranking.ModalityList{Source: modality, Tracks: tracks})

		p.emitProgress(emit, sess.ID, state)
		if req.Progressive && err == nil {
			emit.Emit(sess.ID, Event{
				Type:      EventPartialResults,
				SessionID: sess.ID,
				Source:    string(modality),
				Tracks:    p.stagePreview(lists[len(lists)-1]),
			})
		}
	}

	if failures == len(modalities) {
		span.SetError(domain.ErrAllModalitiesFailed)
		emit.Emit(sess.ID, Event{
			Type:      EventError,
			SessionID: sess.ID,
			Message:   domain.ErrAllModalitiesFailed.Message,
		})
		return nil, domain.ErrAllModalitiesFailed
	}

	p.emitProgress(emit, sess.ID, StateRanking)
	final, err := ranking.Run(lists, req.Filters, req.Weights, req.Offset, req.Limit, p.now())
	if err != nil {
		emit.Emit(sess.ID, Event{Type: EventError, SessionID: sess.ID, Message: err.Error()})
		return nil, err
	}

	p.emitProgress(emit, sess.ID, StateCompleted)
	emit.Emit(sess.ID, Event{
		Type:      EventFinalResults,
		SessionID: sess.ID,
		Tracks:    NewTrackResults(final),
	})

	keys := make([]string, len(final))
	for i, ft := range final {
		keys[i] = ft.Key
	}
	sess.ResultKeys = keys

	p.recordSearch(sess, req, modalities, len(final), p.now().Sub(start))
	return final, nil
}

// Preview runs the lightweight quick-search path: text modality only,
// unranked, never recorded in history.
func (p *Pipeline) Preview(ctx context.Context, query string, limit int) ([]*domain.CandidateTrack, error) {
	if p.text == nil {
		return nil, domain.ErrCollaboratorUnavailable
	}
	if limit <= 0 || limit > ranking.MaxLimit {
		limit = 10
	}
	tracks, err := p.text.Search(ctx, query, limit)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCollaboratorFailure, "preview search failed", err)
	}
	for _, t := range tracks {
		if t != nil && t.Source == "" {
			t.Source = domain.ModalityText
		}
	}
	return tracks, nil
}

func (p *Pipeline) emitProgress(emit Emitter, sessionID string, state State) {
	emit.Emit(sessionID, Event{
		Type:      EventProgress,
		SessionID: sessionID,
		Stage:     string(state),
		Percent:   progressCheckpoints[state],
	})
}

// stagePreview ranks one stage's raw results in isolation so partial
// pushes arrive scored and ordered, tagged with their source modality.
func (p *Pipeline) stagePreview(list ranking.ModalityList) []*TrackResult {
	fused := ranking.Fuse([]ranking.ModalityList{list})
	ranking.Rank(fused, ranking.DefaultWeights(), p.now())
	return NewTrackResults(fused)
}

func (p *Pipeline) recordSearch(sess *domain.SearchSession, req Request, modalities []domain.Modality, resultCount int, took time.Duration) {
	if p.index == nil {
		return
	}
	query := req.Query
	if query == "" {
		// Non-text searches are recorded under the reference that
		// produced them so history stays meaningful.
		if req.ImageRef != "" {
			query = req.ImageRef
		} else {
			query = req.AudioRef
		}
	}
	p.index.RecordSearch(query, modalities[0], req.Filters, resultCount, took)

	sess.Query = history.NormalizeQuery(req.Query)
	sess.Modalities = modalities
}
