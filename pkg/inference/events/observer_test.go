package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	gepevents "github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu  sync.Mutex
	out []gepevents.Event
}

func (s *captureSink) PublishEvent(ev gepevents.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, ev)
	return nil
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.out))
	for _, e := range s.out {
		out = append(out, string(e.Type()))
	}
	return out
}

func TestTranslate_StepFailure(t *testing.T) {
	evs := Translate(workflow.Event{
		Kind:      workflow.EventStepFailed,
		SessionID: "s1",
		RunID:     "r1",
		Step:      workflow.StepRetrieve,
		ErrorKind: capability.KindCapabilityFailure,
		Err:       errors.New("index offline"),
		Fallback:  true,
		Duration:  1500 * time.Millisecond,
	})
	require.Len(t, evs, 1)
	e, ok := evs[0].(*EventSupportStep)
	require.True(t, ok)
	assert.Equal(t, TypeStepFailed, string(e.Type()))
	assert.Equal(t, "retrieve", e.Step)
	assert.Equal(t, "capability_failure", e.ErrorKind)
	assert.Equal(t, "index offline", e.ErrorMessage)
	assert.True(t, e.Fallback)
	assert.Equal(t, int64(1500), e.DurationMs)
	assert.Equal(t, "s1", e.Metadata().SessionID)
	assert.Equal(t, "r1", e.Metadata().InferenceID)
}

func TestTranslate_EscalationCompletesWithTicketEvent(t *testing.T) {
	evs := Translate(workflow.Event{
		Kind:      workflow.EventRunCompleted,
		SessionID: "s1",
		RunID:     "r1",
		Step:      workflow.StepEscalate,
		Reply:     "An agent will contact you.",
		Priority:  "High",
	})
	require.Len(t, evs, 2)
	run := evs[0].(*EventSupportRun)
	assert.True(t, run.Completed)
	assert.Equal(t, "An agent will contact you.", run.Reply)
	esc := evs[1].(*EventEscalationRaised)
	assert.Equal(t, "High", esc.Priority)
	assert.NotEqual(t, run.Metadata().ID, esc.Metadata().ID)

	answered := Translate(workflow.Event{Kind: workflow.EventRunCompleted, Step: workflow.StepAnswer})
	assert.Len(t, answered, 1)

	suspended := Translate(workflow.Event{Kind: workflow.EventRunSuspended, Step: workflow.StepReceiveHumanReply, Reply: "Which bank?"})
	require.Len(t, suspended, 1)
	assert.False(t, suspended[0].(*EventSupportRun).Completed)

	assert.Empty(t, Translate(workflow.Event{Kind: "unknown"}))
}

func TestObserver_PublishesToSinksAndContext(t *testing.T) {
	direct := &captureSink{}
	fromCtx := &captureSink{}
	o := NewObserver(direct)
	ctx := gepevents.WithEventSinks(context.Background(), fromCtx)

	o.Observe(ctx, workflow.Event{Kind: workflow.EventStepStarted, Step: workflow.StepAnswer})
	o.Observe(ctx, workflow.Event{Kind: workflow.EventStepCompleted, Step: workflow.StepAnswer, Condition: workflow.Done})

	want := []string{TypeStepStarted, TypeStepCompleted}
	assert.Equal(t, want, direct.types())
	assert.Equal(t, want, fromCtx.types())
}

func TestSupportEvents_DecodeFromJSON(t *testing.T) {
	md := gepevents.EventMetadata{SessionID: "s1"}
	e := NewSupportStep(TypeStepCompleted, md, "r1", "answer")
	e.Condition = "done"

	b, err := json.Marshal(e)
	require.NoError(t, err)
	decoded, err := gepevents.NewEventFromJson(b)
	require.NoError(t, err)
	assert.Equal(t, TypeStepCompleted, string(decoded.Type()))
	step, ok := decoded.(*EventSupportStep)
	require.True(t, ok)
	assert.Equal(t, "answer", step.Step)
	assert.Equal(t, "done", step.Condition)
}
