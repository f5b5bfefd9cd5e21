package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/pkg/errors"
)

// Node is the executable side of a step. Fallback is applied when Run
// returns an error or panics; a node without Fallback fails the whole run.
type Node struct {
	ID        StepID
	Run       func(ctx context.Context, st *conversation.State) (Condition, error)
	Fallback  func(ctx context.Context, st *conversation.State, err error) Condition
	UsesModel bool
}

// Run is one execution of the graph for a session. Position is where the
// engine starts and, once Run returns, where it stopped.
type Run struct {
	SessionID string
	RunID     string
	State     *conversation.State
	Position  StepID
	Status    capability.CheckpointStatus
	Path      []StepID
}

// Hook runs before model-using steps. Its error is reported and ignored.
type Hook func(ctx context.Context, run *Run) error

const defaultMaxSteps = 64

type Engine struct {
	graph       *Graph
	nodes       map[StepID]Node
	observer    Observer
	beforeModel Hook
	maxSteps    int
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithBeforeModelStep(h Hook) Option {
	return func(e *Engine) { e.beforeModel = h }
}

// WithMaxSteps bounds the number of steps a single Run executes.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine validates g against nodes and returns an engine ready to run.
func NewEngine(g *Graph, nodes []Node, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, errors.New("workflow: nil graph")
	}
	byID := map[StepID]Node{}
	for _, n := range nodes {
		if n.Run == nil {
			return nil, errors.Errorf("workflow: node %q has no run function", n.ID)
		}
		if _, dup := byID[n.ID]; dup {
			return nil, errors.Errorf("workflow: duplicate node %q", n.ID)
		}
		byID[n.ID] = n
	}
	if err := g.Validate(byID); err != nil {
		return nil, err
	}
	e := &Engine{graph: g, nodes: byID, maxSteps: defaultMaxSteps}
	for _, o := range opts {
		o(e)
	}
	if e.observer == nil {
		e.observer = Observers{}
	}
	return e, nil
}

func (e *Engine) Graph() *Graph { return e.graph }

// Run executes steps from run.Position (the entry when empty) until a
// terminal step completes or the suspension step is reached without a
// pending reply.
func (e *Engine) Run(ctx context.Context, run *Run) error {
	if run == nil || run.State == nil {
		return errors.New("workflow: nil run state")
	}
	pos := run.Position
	if pos == "" {
		pos = e.graph.Entry
	}
	if _, ok := e.nodes[pos]; !ok {
		return errors.Errorf("workflow: unknown position %q", pos)
	}
	run.Status = capability.StatusRunning
	ctx = capability.WithSession(ctx, run.SessionID, run.RunID)

	for i := 0; ; i++ {
		if i >= e.maxSteps {
			return errors.Errorf("workflow: step budget of %d exhausted at %s", e.maxSteps, pos)
		}
		run.Position = pos

		if pos == e.graph.Suspend && run.State.PendingReply == "" {
			run.Status = capability.StatusSuspended
			e.observer.Observe(ctx, Event{
				Kind:      EventRunSuspended,
				SessionID: run.SessionID,
				RunID:     run.RunID,
				Step:      pos,
				Reply:     run.State.FollowupQuestion,
			})
			return nil
		}

		node := e.nodes[pos]
		if node.UsesModel && e.beforeModel != nil {
			if err := e.beforeModel(ctx, run); err != nil {
				e.observer.Observe(ctx, Event{
					Kind:      EventHookFailed,
					SessionID: run.SessionID,
					RunID:     run.RunID,
					Step:      pos,
					ErrorKind: capability.KindOf(err),
					Err:       err,
				})
			}
		}

		cond, err := e.execute(ctx, run, node)
		if err != nil {
			return err
		}
		run.Path = append(run.Path, pos)

		if e.graph.IsTerminal(pos) {
			run.Status = capability.StatusCompleted
			e.observer.Observe(ctx, Event{
				Kind:      EventRunCompleted,
				SessionID: run.SessionID,
				RunID:     run.RunID,
				Step:      pos,
				Reply:     run.State.FinalAnswer,
				Priority:  run.State.Priority,
			})
			return nil
		}

		next, err := e.graph.Next(pos, cond)
		if err != nil {
			return err
		}
		pos = next
	}
}

// execute is the single wrapper every step goes through.
func (e *Engine) execute(ctx context.Context, run *Run, node Node) (Condition, error) {
	started := time.Now()
	e.observer.Observe(ctx, Event{Kind: EventStepStarted, SessionID: run.SessionID, RunID: run.RunID, Step: node.ID})

	cond, err := invoke(ctx, node, run.State)
	if err != nil {
		kind := capability.KindOf(err)
		e.observer.Observe(ctx, Event{
			Kind:      EventStepFailed,
			SessionID: run.SessionID,
			RunID:     run.RunID,
			Step:      node.ID,
			ErrorKind: kind,
			Err:       err,
			Fallback:  node.Fallback != nil,
			Duration:  time.Since(started),
		})
		if node.Fallback == nil {
			return "", errors.Wrapf(err, "step %s", node.ID)
		}
		cond = node.Fallback(ctx, run.State, err)
	}

	if e.graph.IsTerminal(node.ID) {
		cond = Done
	} else if !e.graph.declares(node.ID, cond) {
		return "", errors.Errorf("workflow: step %s reported undeclared outcome %q", node.ID, cond)
	}

	e.observer.Observe(ctx, Event{
		Kind:      EventStepCompleted,
		SessionID: run.SessionID,
		RunID:     run.RunID,
		Step:      node.ID,
		Condition: cond,
		Fallback:  err != nil,
		Duration:  time.Since(started),
	})
	return cond, nil
}

func invoke(ctx context.Context, node Node, st *conversation.State) (c Condition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in step %s: %v", node.ID, r)
		}
	}()
	return node.Run(ctx, st)
}
