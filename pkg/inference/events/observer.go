package events

import (
	"context"

	gepevents "github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Observer turns workflow engine events into typed geppetto events. They go
// to the sinks given here and to any sinks attached to the run context.
type Observer struct {
	sinks []gepevents.EventSink
}

var _ workflow.Observer = &Observer{}

func NewObserver(sinks ...gepevents.EventSink) *Observer {
	return &Observer{sinks: sinks}
}

func (o *Observer) Observe(ctx context.Context, ev workflow.Event) {
	for _, e := range Translate(ev) {
		for _, s := range o.sinks {
			if err := s.PublishEvent(e); err != nil {
				log.Warn().Err(err).Str("event_type", string(e.Type())).Str("session_id", ev.SessionID).Msg("failed to publish support event")
			}
		}
		gepevents.PublishEventToContext(ctx, e)
	}
}

// Translate maps one engine event to the events published for it. A run that
// completes on the escalate step also yields an escalation event.
func Translate(ev workflow.Event) []gepevents.Event {
	md := gepevents.EventMetadata{
		ID:          uuid.New(),
		SessionID:   ev.SessionID,
		InferenceID: ev.RunID,
	}
	step := string(ev.Step)

	switch ev.Kind {
	case workflow.EventStepStarted:
		return []gepevents.Event{NewSupportStep(TypeStepStarted, md, ev.RunID, step)}
	case workflow.EventStepCompleted:
		e := NewSupportStep(TypeStepCompleted, md, ev.RunID, step)
		e.Condition = string(ev.Condition)
		e.DurationMs = ev.Duration.Milliseconds()
		return []gepevents.Event{e}
	case workflow.EventStepFailed, workflow.EventHookFailed:
		t := TypeStepFailed
		if ev.Kind == workflow.EventHookFailed {
			t = TypeHookFailed
		}
		e := NewSupportStep(t, md, ev.RunID, step)
		e.ErrorKind = string(ev.ErrorKind)
		if ev.Err != nil {
			e.ErrorMessage = ev.Err.Error()
		}
		e.Fallback = ev.Fallback
		e.DurationMs = ev.Duration.Milliseconds()
		return []gepevents.Event{e}
	case workflow.EventRunSuspended:
		return []gepevents.Event{NewSupportRun(TypeRunSuspended, md, ev.RunID, step, ev.Reply)}
	case workflow.EventRunCompleted:
		out := []gepevents.Event{NewSupportRun(TypeRunCompleted, md, ev.RunID, step, ev.Reply)}
		if ev.Step == workflow.StepEscalate {
			emd := md
			emd.ID = uuid.New()
			out = append(out, NewEscalationRaised(emd, ev.RunID, ev.Priority, ev.Reply))
		}
		return out
	default:
		return nil
	}
}
