package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (s *stubGenerator) Generate(context.Context, core.GenerateRequest) (string, error) {
	s.calls++
	return s.text, s.err
}

func newClassifier(gen core.TextGenerator) *Classifier {
	return NewClassifier(gen, 0, 10, 2048, utils.NewTextProcessor(zap.NewNop()), zap.NewNop())
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want core.Intent
	}{
		{"wants_meeting", core.IntentMeeting},
		{"  WANTS_NOTHING\n", core.IntentNothing},
		{"\"wants_action\".", core.IntentAction},
		{"wants_acknowledgment", core.IntentAcknowledgment},
		{"wants a meeting", core.IntentUnknown},
		{"wants_meeting, wants_action", core.IntentUnknown},
		{"{\"intent\": \"wants_decision\"}", core.IntentUnknown},
		{"", core.IntentUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.in), tt.in)
	}
}

func TestClassifyDegradesToUnknownWithoutRetry(t *testing.T) {
	gen := &stubGenerator{err: errors.New("timeout")}
	got := newClassifier(gen).Classify(context.Background(), &core.Message{ID: "1"})
	assert.Equal(t, core.IntentUnknown, got)
	assert.Equal(t, 1, gen.calls)
}

func TestClassify(t *testing.T) {
	gen := &stubGenerator{text: "wants_information"}
	got := newClassifier(gen).Classify(context.Background(), &core.Message{ID: "1", Subject: "Question"})
	assert.Equal(t, core.IntentInformation, got)
}
