package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	supportcmds "github.com/go-go-golems/supportbot/pkg/cmds"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/session"
	"github.com/go-go-golems/supportbot/pkg/webchat"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

type ChatCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ChatCommand)(nil)

type ChatSettings struct {
	SessionID string `glazed:"session-id"`
	Message   string `glazed:"message"`
	Resume    bool   `glazed:"resume"`
	Plain     bool   `glazed:"plain"`
}

func NewChatCommand() (*ChatCommand, error) {
	sections, err := supportcmds.RuntimeSections(true)
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"chat",
		cmds.WithShort("Talk to the support assistant in the terminal"),
		cmds.WithLong(`Start a conversation, answer follow-up questions as they come, and
start over with a new question once an answer is given. An empty line quits.`),
		cmds.WithFlags(
			fields.New("session-id", fields.TypeString,
				fields.WithHelp("Session to use (a new one is created when empty)")),
			fields.New("message", fields.TypeString,
				fields.WithHelp("First message; prompts for it when empty")),
			fields.New("resume", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Treat the first message as the answer to a pending follow-up")),
			fields.New("plain", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Never render replies as markdown")),
		),
		cmds.WithSections(sections...),
	)
	return &ChatCommand{CommandDescription: desc}, nil
}

func (c *ChatCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &ChatSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode chat settings")
	}
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
	}
	rt, err := supportcmds.BuildRuntime(ctx, parsed)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	render := plainText
	if !s.Plain && isatty.IsTerminal(os.Stdout.Fd()) {
		render = markdown
	}
	loop := &chatLoop{
		chat:      rt.Orchestrator,
		ui:        &input.UI{Writer: w, Reader: os.Stdin},
		out:       w,
		render:    render,
		sessionID: s.SessionID,
		pending:   s.Resume,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return rt.Router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-rt.Router.Running()
		return loop.run(ctx, s.Message)
	})
	return eg.Wait()
}

// chatLoop drives one terminal conversation. pending is true while the last
// reply was a follow-up question.
type chatLoop struct {
	chat      webchat.ChatService
	ui        *input.UI
	out       io.Writer
	render    func(string) string
	sessionID string
	pending   bool
}

func (l *chatLoop) run(ctx context.Context, first string) error {
	_, _ = fmt.Fprintf(l.out, "Session %s\n", l.sessionID)
	msg := strings.TrimSpace(first)
	for {
		if msg == "" {
			prompt := "Ask a question"
			if l.pending {
				prompt = "Your answer"
			}
			answer, err := l.ui.Ask(prompt, &input.Options{HideOrder: true})
			if err != nil {
				if errors.Is(err, input.ErrInterrupted) {
					return nil
				}
				return errors.Wrap(err, "read input")
			}
			msg = strings.TrimSpace(answer)
			if msg == "" {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		r := l.send(ctx, msg)
		msg = ""
		_, _ = fmt.Fprintln(l.out, l.render(r.Reply))
		if r.Err != nil {
			log.Debug().Err(r.Err).Str("session_id", l.sessionID).Msg("chat turn failed")
			// otherwise the session is unchanged and the pending question still stands
			if errors.Is(r.Err, capability.ErrNoPendingSession) {
				l.pending = false
			}
			continue
		}
		l.pending = !r.Completed
	}
}

func (l *chatLoop) send(ctx context.Context, msg string) session.Reply {
	if l.pending {
		return l.chat.Resume(ctx, msg, l.sessionID)
	}
	return l.chat.Start(ctx, msg, l.sessionID)
}

func plainText(s string) string { return s }

func markdown(s string) string {
	out, err := glamour.Render(s, "dark")
	if err != nil {
		return s
	}
	return strings.TrimRight(out, "\n")
}
