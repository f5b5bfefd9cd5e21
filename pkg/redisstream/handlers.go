package redisstream

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/geppetto/pkg/events"
	supportevents "github.com/go-go-golems/supportbot/pkg/inference/events"
	"github.com/rs/zerolog"
)

// SupportEventLogger returns a router handler that logs support events read
// from the topic. Escalations and step failures are logged at warn level,
// everything else at debug. Undecodable payloads are acked and dropped.
func SupportEventLogger(l zerolog.Logger) func(*message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()
		e, err := events.NewEventFromJson(msg.Payload)
		if err != nil {
			l.Debug().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable event")
			return nil
		}
		md := e.Metadata()
		switch ev := e.(type) {
		case *supportevents.EventEscalationRaised:
			l.Warn().
				Str("session_id", md.SessionID).
				Str("run_id", ev.RunID).
				Str("priority", ev.Priority).
				Msg("escalation raised")
		case *supportevents.EventSupportStep:
			evt := l.Debug()
			if ev.ErrorKind != "" {
				evt = l.Warn().Str("error_kind", ev.ErrorKind).Str("error", ev.ErrorMessage).Bool("fallback", ev.Fallback)
			}
			evt.Str("event_type", string(e.Type())).
				Str("session_id", md.SessionID).
				Str("run_id", ev.RunID).
				Str("step", ev.Step).
				Str("condition", ev.Condition).
				Int64("duration_ms", ev.DurationMs).
				Msg("support step")
		case *supportevents.EventSupportRun:
			l.Debug().
				Str("event_type", string(e.Type())).
				Str("session_id", md.SessionID).
				Str("run_id", ev.RunID).
				Str("step", ev.Step).
				Bool("completed", ev.Completed).
				Msg("support run")
		default:
			l.Trace().Str("event_type", string(e.Type())).Str("session_id", md.SessionID).Msg("inference event")
		}
		return nil
	}
}
