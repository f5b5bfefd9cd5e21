package events

import (
	"time"

	gepevents "github.com/go-go-golems/geppetto/pkg/events"
)

const (
	TypeStepStarted      = "support.step.started"
	TypeStepCompleted    = "support.step.completed"
	TypeStepFailed       = "support.step.failed"
	TypeHookFailed       = "support.hook.failed"
	TypeRunSuspended     = "support.run.suspended"
	TypeRunCompleted     = "support.run.completed"
	TypeEscalationRaised = "support.escalation.raised"
)

// EventSupportStep reports one step execution. Failed steps carry the error
// kind and whether a fallback produced the outcome.
type EventSupportStep struct {
	gepevents.EventImpl
	RunID           string `json:"run_id"`
	Step            string `json:"step"`
	Condition       string `json:"condition,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Fallback        bool   `json:"fallback,omitempty"`
	DurationMs      int64  `json:"duration_ms,omitempty"`
	EmittedAtUnixMs int64  `json:"emitted_at_unix_ms,omitempty"`
}

func NewSupportStep(eventType string, metadata gepevents.EventMetadata, runID, step string) *EventSupportStep {
	return &EventSupportStep{
		EventImpl:       gepevents.EventImpl{Type_: gepevents.EventType(eventType), Metadata_: metadata},
		RunID:           runID,
		Step:            step,
		EmittedAtUnixMs: time.Now().UnixMilli(),
	}
}

var _ gepevents.Event = &EventSupportStep{}

// EventSupportRun reports the end of a run: suspended on a follow-up or
// completed with a final reply.
type EventSupportRun struct {
	gepevents.EventImpl
	RunID           string `json:"run_id"`
	Step            string `json:"step"`
	Reply           string `json:"reply,omitempty"`
	Completed       bool   `json:"completed"`
	EmittedAtUnixMs int64  `json:"emitted_at_unix_ms,omitempty"`
}

func NewSupportRun(eventType string, metadata gepevents.EventMetadata, runID, step, reply string) *EventSupportRun {
	return &EventSupportRun{
		EventImpl:       gepevents.EventImpl{Type_: gepevents.EventType(eventType), Metadata_: metadata},
		RunID:           runID,
		Step:            step,
		Reply:           reply,
		Completed:       eventType == TypeRunCompleted,
		EmittedAtUnixMs: time.Now().UnixMilli(),
	}
}

var _ gepevents.Event = &EventSupportRun{}

// EventEscalationRaised announces a query handed to the human queue.
type EventEscalationRaised struct {
	gepevents.EventImpl
	RunID           string `json:"run_id"`
	Priority        string `json:"priority"`
	Reply           string `json:"reply,omitempty"`
	EmittedAtUnixMs int64  `json:"emitted_at_unix_ms,omitempty"`
}

func NewEscalationRaised(metadata gepevents.EventMetadata, runID, priority, reply string) *EventEscalationRaised {
	return &EventEscalationRaised{
		EventImpl:       gepevents.EventImpl{Type_: gepevents.EventType(TypeEscalationRaised), Metadata_: metadata},
		RunID:           runID,
		Priority:        priority,
		Reply:           reply,
		EmittedAtUnixMs: time.Now().UnixMilli(),
	}
}

var _ gepevents.Event = &EventEscalationRaised{}

func init() {
	for _, t := range []string{TypeStepStarted, TypeStepCompleted, TypeStepFailed, TypeHookFailed} {
		_ = gepevents.RegisterEventFactory(t, func() gepevents.Event {
			return &EventSupportStep{EventImpl: gepevents.EventImpl{Type_: gepevents.EventType(t)}}
		})
	}
	for _, t := range []string{TypeRunSuspended, TypeRunCompleted} {
		_ = gepevents.RegisterEventFactory(t, func() gepevents.Event {
			return &EventSupportRun{EventImpl: gepevents.EventImpl{Type_: gepevents.EventType(t)}}
		})
	}
	_ = gepevents.RegisterEventFactory(TypeEscalationRaised, func() gepevents.Event {
		return &EventEscalationRaised{EventImpl: gepevents.EventImpl{Type_: gepevents.EventType(TypeEscalationRaised)}}
	})
}
