// Package runner adapts a geppetto inference engine to the support
// assistant's Generate and ExtractStructured capabilities.
package runner

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/geppetto/pkg/inference/engine"
	"github.com/go-go-golems/geppetto/pkg/turns"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrEmptyOutput is returned when the engine produced no assistant text.
var ErrEmptyOutput = errors.New("engine returned no assistant text")

const DefaultTimeout = 60 * time.Second

// Runner runs one single-turn inference per call. It is safe for concurrent
// use when the engine is.
type Runner struct {
	eng        engine.Engine
	sinks      []events.EventSink
	timeout    time.Duration
	repairOnce bool
}

var (
	_ capability.Generator = &Runner{}
	_ capability.Extractor = &Runner{}
)

type Option func(*Runner)

// WithEventSinks attaches sinks to every inference context so streaming
// events reach the router.
func WithEventSinks(sinks ...events.EventSink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithTimeout bounds each call; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithoutRepair disables the second extraction attempt after a schema violation.
func WithoutRepair() Option {
	return func(r *Runner) {
		r.repairOnce = false
	}
}

func New(eng engine.Engine, opts ...Option) (*Runner, error) {
	if eng == nil {
		return nil, errors.New("engine is nil")
	}
	r := &Runner{eng: eng, timeout: DefaultTimeout, repairOnce: true}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Generate(ctx context.Context, p capability.Prompt) (string, error) {
	text, err := r.infer(ctx, p)
	if err != nil {
		return "", capability.Failure(err, "generate")
	}
	return strings.TrimSpace(text), nil
}

// ExtractStructured asks for a JSON object matching s. A reply that does not
// parse is retried once with the validation error appended to the prompt.
func (r *Runner) ExtractStructured(ctx context.Context, p capability.Prompt, s capability.Schema) (capability.Record, error) {
	if !strings.Contains(p.User, s.Instructions()) {
		p.User = strings.TrimSpace(p.User) + "\n\n" + s.Instructions()
	}
	text, err := r.infer(ctx, p)
	if err != nil {
		return nil, capability.Failure(err, "extract "+s.Name)
	}
	rec, err := capability.ParseRecord(s, text)
	if err == nil || !r.repairOnce {
		return rec, err
	}

	sessionID, _ := capability.SessionFrom(ctx)
	log.Debug().Err(err).Str("session_id", sessionID).Str("schema", s.Name).Msg("retrying extraction after schema violation")
	repair := p
	repair.User = p.User + "\n\nYour previous reply was rejected: " + err.Error() +
		"\nReply again with only the JSON object."
	text, err = r.infer(ctx, repair)
	if err != nil {
		return nil, capability.Failure(err, "extract "+s.Name)
	}
	return capability.ParseRecord(s, text)
}

func (r *Runner) infer(ctx context.Context, p capability.Prompt) (string, error) {
	if ctx == nil {
		return "", errors.New("ctx is nil")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if len(r.sinks) > 0 {
		ctx = events.WithEventSinks(ctx, r.sinks...)
	}

	b := turns.NewTurnBuilder()
	if strings.TrimSpace(p.System) != "" {
		b = b.WithSystemPrompt(p.System)
	}
	seed := b.WithUserPrompt(p.User).Build()

	sessionID, runID := capability.SessionFrom(ctx)
	if sessionID != "" {
		if err := turns.KeyTurnMetaSessionID.Set(&seed.Metadata, sessionID); err != nil {
			return "", errors.Wrap(err, "set session id metadata")
		}
	}
	inferenceID := uuid.NewString()
	if err := turns.KeyTurnMetaInferenceID.Set(&seed.Metadata, inferenceID); err != nil {
		return "", errors.Wrap(err, "set inference id metadata")
	}

	started := time.Now()
	out, err := r.eng.RunInference(ctx, seed)
	log.Debug().
		Str("session_id", sessionID).
		Str("run_id", runID).
		Str("inference_id", inferenceID).
		Dur("duration", time.Since(started)).
		Err(err).
		Msg("inference finished")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", errors.Wrap(ctxErr, err.Error())
		}
		return "", err
	}
	return lastAssistantText(out)
}

func lastAssistantText(t *turns.Turn) (string, error) {
	if t == nil {
		return "", ErrEmptyOutput
	}
	for i := len(t.Blocks) - 1; i >= 0; i-- {
		b := t.Blocks[i]
		if b.Role != turns.RoleAssistant {
			continue
		}
		if b.Payload == nil {
			continue
		}
		if s, ok := b.Payload[turns.PayloadKeyText].(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", ErrEmptyOutput
}
