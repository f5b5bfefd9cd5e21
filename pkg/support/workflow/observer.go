package workflow

import (
	"context"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventStepStarted   EventKind = "step.started"
	EventStepCompleted EventKind = "step.completed"
	EventStepFailed    EventKind = "step.failed"
	EventHookFailed    EventKind = "hook.failed"
	EventRunSuspended  EventKind = "run.suspended"
	EventRunCompleted  EventKind = "run.completed"
)

// Event is what the engine reports to observers. Reply and Priority are set
// on run events only.
type Event struct {
	Kind      EventKind
	SessionID string
	RunID     string
	Step      StepID
	Condition Condition
	ErrorKind capability.Kind
	Err       error
	Fallback  bool
	Duration  time.Duration
	Reply     string
	Priority  string
}

type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out in order.
type Observers []Observer

func (obs Observers) Observe(ctx context.Context, ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

// LogObserver writes engine events to a zerolog logger. Failures are warnings,
// run boundaries are info, everything else is debug.
type LogObserver struct {
	logger zerolog.Logger
}

func NewLogObserver(l zerolog.Logger) *LogObserver {
	return &LogObserver{logger: l}
}

func (o *LogObserver) Observe(_ context.Context, ev Event) {
	var e *zerolog.Event
	switch ev.Kind {
	case EventStepFailed, EventHookFailed:
		e = o.logger.Warn().Err(ev.Err).Str("error_kind", string(ev.ErrorKind)).Bool("fallback", ev.Fallback)
	case EventRunSuspended, EventRunCompleted:
		e = o.logger.Info()
		if ev.Priority != "" {
			e = e.Str("priority", ev.Priority)
		}
	default:
		e = o.logger.Debug()
	}
	e = e.Str("session_id", ev.SessionID).Str("run_id", ev.RunID).Str("step", string(ev.Step))
	if ev.Condition != "" {
		e = e.Str("condition", string(ev.Condition))
	}
	if ev.Duration > 0 {
		e = e.Dur("duration", ev.Duration)
	}
	e.Msg("support " + string(ev.Kind))
}
