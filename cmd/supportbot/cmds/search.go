package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/supportbot/pkg/knowledge"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
)

type SearchCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*SearchCommand)(nil)

type SearchSettings struct {
	Query string `glazed:"query"`
	K     int    `glazed:"k"`
}

func NewSearchCommand() (*SearchCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	ks, err := knowledge.NewSection()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"search",
		cmds.WithShort("Rank knowledge entries against a query"),
		cmds.WithFlags(
			fields.New("k", fields.TypeInteger,
				fields.WithDefault(capability.DefaultSearchK),
				fields.WithHelp("Number of entries to return")),
		),
		cmds.WithArguments(
			fields.New("query", fields.TypeString,
				fields.WithRequired(true),
				fields.WithHelp("Search query")),
		),
		cmds.WithSections(glazedSection, ks),
	)
	return &SearchCommand{CommandDescription: desc}, nil
}

func (c *SearchCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &SearchSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode search settings")
	}
	ks := knowledge.Settings{}
	if err := parsed.DecodeSectionInto(knowledge.SectionSlug, &ks); err != nil {
		return errors.Wrap(err, "decode knowledge settings")
	}
	embedder, err := knowledge.NewEmbedder(ctx, ks)
	if err != nil {
		return err
	}
	index, err := knowledge.OpenIndex(ks)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()
	r, err := knowledge.NewRetriever(embedder, index)
	if err != nil {
		return err
	}

	hits, err := r.Hits(ctx, s.Query, s.K)
	if err != nil {
		return err
	}
	for i, h := range hits {
		row := types.NewRow(
			types.MRP("rank", i+1),
			types.MRP("score", h.Score),
			types.MRP("title", h.Document.Title),
			types.MRP("source", h.Document.Source),
			types.MRP("id", h.Document.ID),
			types.MRP("body", h.Document.Body),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
