package cmds

import (
	"context"

	"github.com/go-go-golems/geppetto/pkg/inference/engine"
	"github.com/go-go-golems/geppetto/pkg/inference/middleware"
	"github.com/go-go-golems/geppetto/pkg/inference/toolloop/enginebuilder"
	"github.com/go-go-golems/geppetto/pkg/turns"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
)

// sessionEngine builds a middleware-wrapped runner for the session carried
// by the call context and runs one inference on it.
type sessionEngine struct {
	base engine.Engine
	mws  []middleware.Middleware
}

var _ engine.Engine = &sessionEngine{}

func (e *sessionEngine) RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
	sessionID, _ := capability.SessionFrom(ctx)
	r, err := enginebuilder.New(
		enginebuilder.WithBase(e.base),
		enginebuilder.WithMiddlewares(e.mws...),
	).Build(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "build inference runner")
	}
	return r.RunInference(ctx, t)
}
