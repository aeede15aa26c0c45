package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackKey(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		artist   string
		expected string
	}{
		{"simple", "Holocene", "Bon Iver", "holocene|bon iver"},
		{"mixed case", "HOLOCENE", "bon IVER", "holocene|bon iver"},
		{"extra whitespace", "  Holocene  ", " Bon   Iver ", "holocene|bon iver"},
		{"empty", "", "", "|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrackKey(tt.title, tt.artist))
		})
	}
}

func TestCandidateTrack_Key(t *testing.T) {
	track := &CandidateTrack{Title: "Re: Stacks", Artist: "Bon Iver"}
	assert.Equal(t, "re: stacks|bon iver", track.Key())
}

func TestIsValidModality(t *testing.T) {
	assert.True(t, IsValidModality(ModalityText))
	assert.True(t, IsValidModality(ModalityImage))
	assert.True(t, IsValidModality(ModalityAudio))
	assert.False(t, IsValidModality("video"))
	assert.False(t, IsValidModality(""))
}

func TestSearchSession_AppendsFeedbackAndInteractions(t *testing.T) {
	sess := &SearchSession{ID: "s-1"}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sess.AddFeedback("track-1", true, at)
	sess.AddFeedback("track-2", false, at)
	sess.AddInteraction("track-1", "play", at)

	assert.Len(t, sess.Feedback, 2)
	assert.True(t, sess.Feedback[0].Liked)
	assert.False(t, sess.Feedback[1].Liked)
	assert.Len(t, sess.Interactions, 1)
	assert.Equal(t, "play", sess.Interactions[0].Action)
}
