package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	supportcmds "github.com/go-go-golems/supportbot/pkg/cmds"
	"github.com/go-go-golems/supportbot/pkg/webchat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = (*ServeCommand)(nil)

type ServeSettings struct {
	Addr string `glazed:"addr"`
}

func NewServeCommand() (*ServeCommand, error) {
	sections, err := supportcmds.RuntimeSections(true)
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"serve",
		cmds.WithShort("Serve the support chat API over HTTP"),
		cmds.WithLong(`Serve POST /api/chat, POST /api/chat_resume, GET /api/health and
GET /api/sessions/{id}. Stops gracefully on SIGINT/SIGTERM.`),
		cmds.WithFlags(
			fields.New("addr", fields.TypeString,
				fields.WithDefault(":8080"),
				fields.WithHelp("Listen address")),
		),
		cmds.WithSections(sections...),
	)
	return &ServeCommand{CommandDescription: desc}, nil
}

func (c *ServeCommand) Run(ctx context.Context, parsed *values.Values) error {
	s := &ServeSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode serve settings")
	}
	rt, err := supportcmds.BuildRuntime(ctx, parsed)
	if err != nil {
		return err
	}

	h := webchat.NewHandler(rt.Orchestrator, rt.Store, webchat.WithLogger(log.Logger))
	srv, err := webchat.NewServer(s.Addr, h.APIHandler(), rt.Router, rt.Closers()...)
	if err != nil {
		_ = rt.Close()
		return err
	}
	return srv.Run(ctx)
}
