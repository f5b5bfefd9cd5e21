package cmds

import (
	"time"

	geppettosections "github.com/go-go-golems/geppetto/pkg/sections"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/supportbot/pkg/knowledge"
	"github.com/go-go-golems/supportbot/pkg/persistence/sessionstore"
	"github.com/go-go-golems/supportbot/pkg/redisstream"
	"github.com/go-go-golems/supportbot/pkg/summary"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/steps"
	"github.com/pkg/errors"
)

const SupportSlug = "support"

// SupportSettings tune the conversation workflow.
type SupportSettings struct {
	MaxClarificationPairs   int    `glazed:"max-clarification-pairs"`
	RetrievalK              int    `glazed:"retrieval-k"`
	LLMTimeoutSeconds       int    `glazed:"llm-timeout"`
	SummaryMaxTokens        int    `glazed:"summary-max-tokens"`
	SummaryMaxSummaryTokens int    `glazed:"summary-max-summary-tokens"`
	PromptsFile             string `glazed:"prompts-file"`
	Brand                   string `glazed:"brand"`
	LogTurns                bool   `glazed:"log-turns"`
}

func (s SupportSettings) LLMTimeout() time.Duration {
	if s.LLMTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.LLMTimeoutSeconds) * time.Second
}

func (s SupportSettings) StepsConfig() steps.Config {
	return steps.Config{
		MaxClarificationPairs: s.MaxClarificationPairs,
		RetrievalK:            s.RetrievalK,
		Brand:                 s.Brand,
	}
}

func (s SupportSettings) SummaryConfig() summary.Config {
	return summary.Config{
		MaxTokens:        s.SummaryMaxTokens,
		MaxSummaryTokens: s.SummaryMaxSummaryTokens,
	}
}

func NewSupportSection() (schema.Section, error) {
	return schema.NewSection(
		SupportSlug,
		"Support workflow",
		schema.WithFields(
			fields.New("max-clarification-pairs", fields.TypeInteger,
				fields.WithDefault(steps.DefaultMaxClarificationPairs),
				fields.WithHelp("Stop asking follow-up questions once the run holds this many exchanges")),
			fields.New("retrieval-k", fields.TypeInteger,
				fields.WithDefault(capability.DefaultSearchK),
				fields.WithHelp("Number of knowledge items retrieved per query")),
			fields.New("llm-timeout", fields.TypeInteger,
				fields.WithDefault(60),
				fields.WithHelp("Seconds allowed for one model call (0 disables the bound)")),
			fields.New("summary-max-tokens", fields.TypeInteger,
				fields.WithDefault(summary.DefaultMaxTokens),
				fields.WithHelp("Token budget of the conversation shown to the model")),
			fields.New("summary-max-summary-tokens", fields.TypeInteger,
				fields.WithDefault(summary.DefaultMaxSummaryTokens),
				fields.WithHelp("Token cap of the rolling summary")),
			fields.New("prompts-file", fields.TypeString,
				fields.WithHelp("YAML file overriding prompt templates by name")),
			fields.New("brand", fields.TypeString,
				fields.WithDefault("the platform"),
				fields.WithHelp("Product name used in prompts")),
			fields.New("log-turns", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Log every inference turn")),
		),
	)
}

// Config gathers every section the support runtime reads.
type Config struct {
	Support   SupportSettings
	Store     sessionstore.Settings
	Knowledge knowledge.Settings
	Redis     redisstream.Settings
}

// RuntimeSections returns the support, store, knowledge and redis sections,
// followed by geppetto's AI sections when withAI is set.
func RuntimeSections(withAI bool) ([]schema.Section, error) {
	builders := []func() (schema.Section, error){
		NewSupportSection,
		sessionstore.NewSection,
		knowledge.NewSection,
		redisstream.NewSection,
	}
	out := make([]schema.Section, 0, len(builders))
	for _, b := range builders {
		s, err := b()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if withAI {
		ge, err := geppettosections.CreateGeppettoSections()
		if err != nil {
			return nil, errors.Wrap(err, "create geppetto sections")
		}
		out = append(out, ge...)
	}
	return out, nil
}

func DecodeConfig(parsed *values.Values) (Config, error) {
	var c Config
	if err := parsed.DecodeSectionInto(SupportSlug, &c.Support); err != nil {
		return c, errors.Wrap(err, "decode support settings")
	}
	if err := parsed.DecodeSectionInto(sessionstore.SectionSlug, &c.Store); err != nil {
		return c, errors.Wrap(err, "decode store settings")
	}
	if err := parsed.DecodeSectionInto(knowledge.SectionSlug, &c.Knowledge); err != nil {
		return c, errors.Wrap(err, "decode knowledge settings")
	}
	if err := parsed.DecodeSectionInto(redisstream.SectionSlug, &c.Redis); err != nil {
		return c, errors.Wrap(err, "decode redis settings")
	}
	return c, nil
}
