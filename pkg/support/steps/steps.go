// Package steps implements the nine support steps. Each step is callable on
// its own; Nodes registers them with the workflow engine together with the
// fallback applied when a capability call fails.
package steps

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/prompts"
	"github.com/pkg/errors"
)

const (
	DefaultMaxClarificationPairs = 5
	DefaultFollowupFallback      = "I'm sorry, I encountered an error. Could you please provide more details about your query?"
	DefaultAnswerFallback        = "I'm sorry, I encountered an error while processing your request. Please try again or contact support."
	DefaultEscalationMessage     = "I have raised your query for further investigation. Our Customer Support Team will reach you soon."
	DefaultPriority              = "Medium"
)

type Config struct {
	// MaxClarificationPairs forces "enough" once the run holds this many
	// (User, Support) exchanges.
	MaxClarificationPairs int
	RetrievalK            int
	Brand                 string
	FollowupFallback      string
	AnswerFallback        string
	EscalationMessage     string
}

func DefaultConfig() Config {
	return Config{
		MaxClarificationPairs: DefaultMaxClarificationPairs,
		RetrievalK:            capability.DefaultSearchK,
		Brand:                 "the platform",
		FollowupFallback:      DefaultFollowupFallback,
		AnswerFallback:        DefaultAnswerFallback,
		EscalationMessage:     DefaultEscalationMessage,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxClarificationPairs <= 0 {
		c.MaxClarificationPairs = d.MaxClarificationPairs
	}
	if c.RetrievalK <= 0 {
		c.RetrievalK = d.RetrievalK
	}
	if c.Brand == "" {
		c.Brand = d.Brand
	}
	if c.FollowupFallback == "" {
		c.FollowupFallback = d.FollowupFallback
	}
	if c.AnswerFallback == "" {
		c.AnswerFallback = d.AnswerFallback
	}
	if c.EscalationMessage == "" {
		c.EscalationMessage = d.EscalationMessage
	}
	return c
}

// Deps are the capabilities the steps call. Tickets and Prompts are optional.
type Deps struct {
	Generator capability.Generator
	Extractor capability.Extractor
	Searcher  capability.Searcher
	Tickets   capability.TicketQueue
	Prompts   *prompts.Set
	Config    Config
	Now       func() time.Time
}

type Steps struct {
	gen     capability.Generator
	ext     capability.Extractor
	search  capability.Searcher
	tickets capability.TicketQueue
	prompts *prompts.Set
	cfg     Config
	now     func() time.Time
}

func New(d Deps) (*Steps, error) {
	if d.Generator == nil {
		return nil, errors.New("steps: generator is required")
	}
	if d.Extractor == nil {
		return nil, errors.New("steps: extractor is required")
	}
	if d.Searcher == nil {
		return nil, errors.New("steps: searcher is required")
	}
	p := d.Prompts
	if p == nil {
		var err error
		p, err = prompts.Default()
		if err != nil {
			return nil, err
		}
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Steps{
		gen:     d.Generator,
		ext:     d.Extractor,
		search:  d.Searcher,
		tickets: d.Tickets,
		prompts: p,
		cfg:     d.Config.withDefaults(),
		now:     now,
	}, nil
}

func (s *Steps) Config() Config { return s.cfg }

func (s *Steps) data(st *conversation.State, schema *capability.Schema) prompts.Data {
	d := prompts.Data{
		Brand:             s.cfg.Brand,
		Question:          st.Question,
		Conversation:      st.Conversation(),
		Description:       st.QueryDescription,
		Context:           conversation.RenderItems(st.Context),
		Items:             numberedItems(st.Context),
		EscalationMessage: s.cfg.EscalationMessage,
		Summary:           st.Summary,
	}
	if schema != nil {
		d.Format = schema.Instructions()
	}
	return d
}

func (s *Steps) extract(ctx context.Context, name string, st *conversation.State, schema capability.Schema) (capability.Record, error) {
	p, err := s.prompts.Render(name, s.data(st, &schema))
	if err != nil {
		return nil, err
	}
	r, err := s.ext.ExtractStructured(ctx, p, schema)
	if err != nil {
		return nil, capability.Failure(err, name)
	}
	return r, nil
}

func numberedItems(items []conversation.Item) string {
	parts := make([]string, 0, len(items))
	for i, it := range items {
		parts = append(parts, "["+strconv.Itoa(i+1)+"] "+it.String())
	}
	return strings.Join(parts, "\n\n")
}
