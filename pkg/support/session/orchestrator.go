// Package session maps inbound (message, session id) pairs onto workflow
// runs: Start begins a fresh run, Resume continues a run suspended on a
// follow-up question.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	MissingInputReply = "Please provide a message."
	ErrorReplyPrefix  = "Sorry, I encountered an error: "
)

// Reply is what callers show the user. Completed is true when the run ended
// with an answer or an escalation.
type Reply struct {
	Reply     string `json:"reply"`
	Completed bool   `json:"completed"`
	SessionID string `json:"session_id,omitempty"`
	Err       error  `json:"-"`
}

type Orchestrator struct {
	engine *workflow.Engine
	store  capability.Checkpointer
	now    func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(engine *workflow.Engine, store capability.Checkpointer, opts ...Option) (*Orchestrator, error) {
	if engine == nil {
		return nil, errors.New("session: engine is required")
	}
	if store == nil {
		return nil, errors.New("session: checkpoint store is required")
	}
	o := &Orchestrator{engine: engine, store: store, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start begins a new run for sessionID with message as the question.
func (o *Orchestrator) Start(ctx context.Context, message, sessionID string) Reply {
	return o.guard(sessionID, "start", func() (Reply, error) {
		return o.start(ctx, message, sessionID)
	})
}

// Resume answers the pending follow-up of sessionID with message.
func (o *Orchestrator) Resume(ctx context.Context, message, sessionID string) Reply {
	return o.guard(sessionID, "resume", func() (Reply, error) {
		return o.resume(ctx, message, sessionID)
	})
}

// guard turns every error and panic into a user-facing reply.
func (o *Orchestrator) guard(sessionID, op string, fn func() (Reply, error)) (r Reply) {
	defer func() {
		if p := recover(); p != nil {
			r = o.failure(sessionID, op, errors.Errorf("panic: %v", p))
		}
	}()
	r, err := fn()
	if err != nil {
		return o.failure(sessionID, op, err)
	}
	return r
}

func (o *Orchestrator) failure(sessionID, op string, err error) Reply {
	kind := capability.KindOf(err)
	ev := log.Error()
	if kind == capability.KindNoPendingSession {
		ev = log.Warn()
	}
	ev.Err(err).Str("session_id", sessionID).Str("op", op).Str("error_kind", string(kind)).Msg("support session failed")
	return Reply{Reply: ErrorReplyPrefix + err.Error(), SessionID: sessionID, Err: err}
}

func missingInput(sessionID string) Reply {
	return Reply{Reply: MissingInputReply, SessionID: sessionID, Err: capability.ErrMissingInput}
}

func (o *Orchestrator) start(ctx context.Context, message, sessionID string) (Reply, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return missingInput(sessionID), nil
	}
	if sessionID == "" {
		return Reply{}, errors.New("session id is required")
	}

	cp, found, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return Reply{}, errors.Wrap(err, "load session")
	}
	var next *capability.Checkpoint
	if found {
		next = cp.Clone()
	} else {
		next = &capability.Checkpoint{
			SessionID: sessionID,
			State:     *conversation.New(),
			CreatedAt: o.now().UTC(),
		}
	}
	next.State.BeginRun(msg)
	log.Debug().Str("session_id", sessionID).Bool("existing", found).Msg("starting support run")
	return o.run(ctx, next, "")
}

func (o *Orchestrator) resume(ctx context.Context, message, sessionID string) (Reply, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return missingInput(sessionID), nil
	}

	cp, found, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return Reply{}, errors.Wrap(err, "load session")
	}
	if !found || cp.Status != capability.StatusSuspended {
		return Reply{}, errors.Wrapf(capability.ErrNoPendingSession, "session %q", sessionID)
	}
	pos, err := workflow.ParseStepID(cp.Position)
	if err != nil {
		return Reply{}, errors.Wrap(err, "checkpoint position")
	}
	if pos != o.engine.Graph().Suspend {
		return Reply{}, errors.Wrapf(capability.ErrNoPendingSession, "session %q is not waiting for a reply", sessionID)
	}

	next := cp.Clone()
	next.State.PendingReply = msg
	log.Debug().Str("session_id", sessionID).Str("position", string(pos)).Msg("resuming support run")
	return o.run(ctx, next, pos)
}

// run executes the engine on a copy of the checkpoint and saves it only when
// the run reached a suspension or terminal step.
func (o *Orchestrator) run(ctx context.Context, next *capability.Checkpoint, pos workflow.StepID) (Reply, error) {
	r := &workflow.Run{
		SessionID: next.SessionID,
		RunID:     uuid.NewString(),
		State:     &next.State,
		Position:  pos,
	}
	if err := o.engine.Run(ctx, r); err != nil {
		return Reply{}, err
	}

	reply := Reply{SessionID: next.SessionID}
	switch r.Status {
	case capability.StatusCompleted:
		reply.Reply = next.State.FinalAnswer
		reply.Completed = true
	case capability.StatusSuspended:
		reply.Reply = next.State.FollowupQuestion
	default:
		return Reply{}, errors.Errorf("run ended in unexpected status %q", r.Status)
	}

	next.Position = string(r.Position)
	next.Status = r.Status
	next.Runs++
	next.UpdatedAt = o.now().UTC()
	if err := o.store.Save(ctx, next); err != nil {
		return Reply{}, errors.Wrap(err, "save session")
	}
	return reply, nil
}
