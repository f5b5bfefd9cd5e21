package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/supportbot/pkg/persistence/sessionstore"
	"github.com/go-go-golems/supportbot/pkg/summary"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
)

func storeCommandSections() ([]schema.Section, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	storeSection, err := sessionstore.NewSection()
	if err != nil {
		return nil, err
	}
	return []schema.Section{glazedSection, storeSection}, nil
}

func openStore(parsed *values.Values) (sessionstore.Store, error) {
	s := sessionstore.Settings{}
	if err := parsed.DecodeSectionInto(sessionstore.SectionSlug, &s); err != nil {
		return nil, errors.Wrap(err, "decode store settings")
	}
	return sessionstore.Open(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type SessionsListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*SessionsListCommand)(nil)

type SessionsListSettings struct {
	Status string `glazed:"status"`
	Limit  int    `glazed:"limit"`
}

func NewSessionsListCommand() (*SessionsListCommand, error) {
	sections, err := storeCommandSections()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List sessions, most recently updated first"),
		cmds.WithFlags(
			fields.New("status", fields.TypeChoice,
				fields.WithChoices("", string(capability.StatusSuspended), string(capability.StatusCompleted)),
				fields.WithDefault(""),
				fields.WithHelp("Only list sessions in this status")),
			fields.New("limit", fields.TypeInteger,
				fields.WithDefault(50),
				fields.WithHelp("Maximum number of sessions")),
		),
		cmds.WithSections(sections...),
	)
	return &SessionsListCommand{CommandDescription: desc}, nil
}

func (c *SessionsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &SessionsListSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cps, err := store.List(ctx, sessionstore.ListQuery{Status: capability.CheckpointStatus(s.Status), Limit: s.Limit})
	if err != nil {
		return err
	}
	for _, cp := range cps {
		row := types.NewRow(
			types.MRP("session_id", cp.SessionID),
			types.MRP("status", string(cp.Status)),
			types.MRP("position", cp.Position),
			types.MRP("runs", cp.Runs),
			types.MRP("question", cp.State.Question),
			types.MRP("updated_at", formatTime(cp.UpdatedAt)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type SessionsShowCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*SessionsShowCommand)(nil)

type SessionsShowSettings struct {
	SessionID  string `glazed:"session-id"`
	Transcript bool   `glazed:"transcript"`
}

func NewSessionsShowCommand() (*SessionsShowCommand, error) {
	sections, err := storeCommandSections()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"show",
		cmds.WithShort("Show one session"),
		cmds.WithLong("Show a session summary row, or one row per transcript message with --transcript."),
		cmds.WithFlags(
			fields.New("transcript", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Emit the transcript instead of the summary row")),
		),
		cmds.WithArguments(
			fields.New("session-id", fields.TypeString,
				fields.WithRequired(true),
				fields.WithHelp("Session id")),
		),
		cmds.WithSections(sections...),
	)
	return &SessionsShowCommand{CommandDescription: desc}, nil
}

func (c *SessionsShowCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &SessionsShowSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cp, ok, err := store.Load(ctx, s.SessionID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("session %q not found", s.SessionID)
	}

	if s.Transcript {
		for i, t := range cp.State.AdditionalInfo {
			row := types.NewRow(
				types.MRP("index", i),
				types.MRP("role", string(t.Role)),
				types.MRP("text", t.Text),
				types.MRP("summarized", i < cp.State.SummarizedTurns),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
		return nil
	}

	counter, err := summary.NewTokenCounter("")
	if err != nil {
		return err
	}
	row := types.NewRow(
		types.MRP("session_id", cp.SessionID),
		types.MRP("status", string(cp.Status)),
		types.MRP("position", cp.Position),
		types.MRP("runs", cp.Runs),
		types.MRP("question", cp.State.Question),
		types.MRP("followup_question", cp.State.FollowupQuestion),
		types.MRP("final_answer", cp.State.FinalAnswer),
		types.MRP("priority", cp.State.Priority),
		types.MRP("messages", len(cp.State.AdditionalInfo)),
		types.MRP("summarized_messages", cp.State.SummarizedTurns),
		types.MRP("conversation_tokens", counter.Count(cp.State.Conversation())),
		types.MRP("created_at", formatTime(cp.CreatedAt)),
		types.MRP("updated_at", formatTime(cp.UpdatedAt)),
	)
	return gp.AddRow(ctx, row)
}

type TicketsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*TicketsCommand)(nil)

type TicketsSettings struct {
	SessionID string `glazed:"session-id"`
	Priority  string `glazed:"priority"`
	Limit     int    `glazed:"limit"`
}

func NewTicketsCommand() (*TicketsCommand, error) {
	sections, err := storeCommandSections()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"tickets",
		cmds.WithShort("List escalation tickets, newest first"),
		cmds.WithFlags(
			fields.New("session-id", fields.TypeString,
				fields.WithHelp("Only tickets of this session")),
			fields.New("priority", fields.TypeChoice,
				fields.WithChoices("", "High", "Medium", "Low"),
				fields.WithDefault(""),
				fields.WithHelp("Only tickets of this priority")),
			fields.New("limit", fields.TypeInteger,
				fields.WithDefault(50),
				fields.WithHelp("Maximum number of tickets")),
		),
		cmds.WithSections(sections...),
	)
	return &TicketsCommand{CommandDescription: desc}, nil
}

func (c *TicketsCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &TicketsSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tickets, err := store.Tickets(ctx, sessionstore.TicketQuery{SessionID: s.SessionID, Priority: s.Priority, Limit: s.Limit})
	if err != nil {
		return err
	}
	for _, t := range tickets {
		row := types.NewRow(
			types.MRP("ticket_id", t.ID),
			types.MRP("session_id", t.SessionID),
			types.MRP("priority", t.Priority),
			types.MRP("description", t.Description),
			types.MRP("created_at", formatTime(t.CreatedAt)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
