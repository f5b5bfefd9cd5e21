// Package summary keeps the transcript handed to prompts within a token
// budget by folding the oldest turns into a rolling summary.
package summary

import (
	"context"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/prompts"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxTokens        = 2048
	DefaultMaxSummaryTokens = 256
)

type Config struct {
	// MaxTokens is the budget for the summary plus active turns.
	MaxTokens int
	// MaxSummaryTokens caps the summary itself.
	MaxSummaryTokens int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxSummaryTokens <= 0 {
		c.MaxSummaryTokens = DefaultMaxSummaryTokens
	}
	if c.MaxSummaryTokens >= c.MaxTokens {
		c.MaxSummaryTokens = c.MaxTokens / 4
	}
	return c
}

type Summarizer struct {
	gen     capability.Generator
	prompts *prompts.Set
	counter Counter
	cfg     Config
}

func New(gen capability.Generator, p *prompts.Set, counter Counter, cfg Config) (*Summarizer, error) {
	if gen == nil {
		return nil, errors.New("summary: generator is required")
	}
	if counter == nil {
		return nil, errors.New("summary: token counter is required")
	}
	if p == nil {
		var err error
		p, err = prompts.Default()
		if err != nil {
			return nil, err
		}
	}
	return &Summarizer{gen: gen, prompts: p, counter: counter, cfg: cfg.withDefaults()}, nil
}

// Maintain folds turns into st.Summary while the rendered conversation is over
// budget. It reports whether the summary changed. On error st is untouched.
func (s *Summarizer) Maintain(ctx context.Context, st *conversation.State) (bool, error) {
	if st == nil {
		return false, errors.New("summary: nil state")
	}
	if s.counter.Count(st.Conversation()) <= s.cfg.MaxTokens {
		return false, nil
	}

	active := st.ActiveTurns()
	if len(active) < 2 {
		return false, nil
	}

	// Fold from the oldest turn until what stays fits in the budget left
	// after the summary, always keeping the latest turn.
	keepBudget := s.cfg.MaxTokens - s.cfg.MaxSummaryTokens - s.counter.Count(conversation.SummaryHeader)
	fold := len(active) - 1
	kept := s.counter.Count(active[len(active)-1].String())
	for i := len(active) - 2; i >= 0; i-- {
		n := s.counter.Count(active[i].String())
		if kept+n > keepBudget {
			break
		}
		kept += n
		fold = i
	}
	if fold == 0 {
		fold = 1
	}

	lines := make([]string, 0, fold)
	for _, t := range active[:fold] {
		lines = append(lines, t.String())
	}
	p, err := s.prompts.Render(prompts.Summary, prompts.Data{
		Summary:          st.Summary,
		Conversation:     strings.Join(lines, "\n"),
		MaxSummaryTokens: s.cfg.MaxSummaryTokens,
	})
	if err != nil {
		return false, err
	}
	text, err := s.gen.Generate(ctx, p)
	if err != nil {
		return false, capability.Failure(err, "summarize")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, capability.Failure(errors.New("empty summary"), "summarize")
	}

	st.Summary = s.counter.Truncate(text, s.cfg.MaxSummaryTokens)
	st.SummarizedTurns += fold

	sessionID, _ := capability.SessionFrom(ctx)
	log.Debug().
		Str("session_id", sessionID).
		Int("folded_turns", fold).
		Int("summarized_turns", st.SummarizedTurns).
		Msg("conversation summarized")
	return true, nil
}

// Hook runs Maintain before each model-backed step.
func (s *Summarizer) Hook() workflow.Hook {
	return func(ctx context.Context, run *workflow.Run) error {
		_, err := s.Maintain(ctx, run.State)
		return err
	}
}
