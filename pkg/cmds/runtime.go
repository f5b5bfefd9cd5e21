// Package cmds assembles the support assistant from parsed command sections.
package cmds

import (
	"context"
	"io"

	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/geppetto/pkg/inference/engine"
	"github.com/go-go-golems/geppetto/pkg/inference/engine/factory"
	"github.com/go-go-golems/geppetto/pkg/inference/middleware"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	supportevents "github.com/go-go-golems/supportbot/pkg/inference/events"
	"github.com/go-go-golems/supportbot/pkg/inference/runner"
	"github.com/go-go-golems/supportbot/pkg/knowledge"
	"github.com/go-go-golems/supportbot/pkg/persistence/sessionstore"
	"github.com/go-go-golems/supportbot/pkg/redisstream"
	"github.com/go-go-golems/supportbot/pkg/summary"
	"github.com/go-go-golems/supportbot/pkg/support/prompts"
	"github.com/go-go-golems/supportbot/pkg/support/session"
	"github.com/go-go-golems/supportbot/pkg/support/steps"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runtime is a wired support assistant. Close releases the stores and the
// event router.
type Runtime struct {
	Orchestrator *session.Orchestrator
	Store        sessionstore.Store
	Index        knowledge.Index
	Retriever    *knowledge.Retriever
	Router       *events.EventRouter
	Steps        *steps.Steps

	closers []io.Closer
}

// BuildRuntime decodes the sections of parsed, builds the inference engine
// from the geppetto sections and wires everything together.
func BuildRuntime(ctx context.Context, parsed *values.Values) (*Runtime, error) {
	cfg, err := DecodeConfig(parsed)
	if err != nil {
		return nil, err
	}
	eng, err := factory.NewEngineFromParsedValues(parsed)
	if err != nil {
		return nil, errors.Wrap(err, "create engine")
	}
	return NewRuntime(ctx, cfg, eng)
}

func NewRuntime(ctx context.Context, cfg Config, eng engine.Engine) (rt *Runtime, err error) {
	if eng == nil {
		return nil, errors.New("engine is nil")
	}
	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Store, err = sessionstore.Open(cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, "open session store")
	}
	rt.closers = append(rt.closers, rt.Store)

	embedder, err := knowledge.NewEmbedder(ctx, cfg.Knowledge)
	if err != nil {
		return nil, errors.Wrap(err, "create embedder")
	}
	rt.Index, err = knowledge.OpenIndex(cfg.Knowledge)
	if err != nil {
		return nil, errors.Wrap(err, "open knowledge index")
	}
	rt.closers = append(rt.closers, rt.Index)
	rt.Retriever, err = knowledge.NewRetriever(embedder, rt.Index)
	if err != nil {
		return nil, err
	}

	rt.Router, err = redisstream.BuildRouter(ctx, cfg.Redis, false)
	if err != nil {
		return nil, errors.Wrap(err, "create event router")
	}
	rt.Router.AddHandler("support-log", redisstream.SupportTopic, redisstream.SupportEventLogger(log.Logger))
	sink := middleware.NewWatermillSink(rt.Router.Publisher, redisstream.SupportTopic)

	var mws []middleware.Middleware
	if cfg.Support.LogTurns {
		mws = append(mws, middleware.NewTurnLoggingMiddleware(log.Logger))
	}
	run, err := runner.New(
		&sessionEngine{base: eng, mws: mws},
		runner.WithTimeout(cfg.Support.LLMTimeout()),
		runner.WithEventSinks(sink),
	)
	if err != nil {
		return nil, err
	}

	ps, err := loadPrompts(cfg.Support.PromptsFile)
	if err != nil {
		return nil, err
	}
	rt.Steps, err = steps.New(steps.Deps{
		Generator: run,
		Extractor: run,
		Searcher:  rt.Retriever,
		Tickets:   rt.Store,
		Prompts:   ps,
		Config:    cfg.Support.StepsConfig(),
	})
	if err != nil {
		return nil, err
	}

	counter, err := summary.NewTokenCounter("")
	if err != nil {
		return nil, errors.Wrap(err, "create token counter")
	}
	summarizer, err := summary.New(run, ps, counter, cfg.Support.SummaryConfig())
	if err != nil {
		return nil, err
	}

	wf, err := workflow.NewEngine(
		workflow.SupportGraph(),
		rt.Steps.Nodes(),
		workflow.WithObserver(workflow.Observers{
			workflow.NewLogObserver(log.Logger),
			supportevents.NewObserver(sink),
		}),
		workflow.WithBeforeModelStep(summarizer.Hook()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build workflow")
	}
	rt.Orchestrator, err = session.New(wf, rt.Store)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("store", cfg.Store.Driver).
		Str("embedder", embedder.Name()).
		Bool("redis", cfg.Redis.Enabled).
		Msg("support runtime ready")
	return rt, nil
}

func loadPrompts(path string) (*prompts.Set, error) {
	if path == "" {
		return prompts.Default()
	}
	ps, err := prompts.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load prompts %s", path)
	}
	return ps, nil
}

// Closers returns the stores Close releases, for a server that closes them
// itself after shutdown together with the router.
func (rt *Runtime) Closers() []io.Closer {
	return append([]io.Closer(nil), rt.closers...)
}

func (rt *Runtime) Close() error {
	var first error
	if rt.Router != nil {
		first = rt.Router.Close()
		rt.Router = nil
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
