package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/supportbot/pkg/knowledge"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type IngestCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*IngestCommand)(nil)

type IngestSettings struct {
	Paths       []string `glazed:"paths"`
	BatchSize   int      `glazed:"batch-size"`
	Concurrency int      `glazed:"concurrency"`
}

func NewIngestCommand() (*IngestCommand, error) {
	ks, err := knowledge.NewSection()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"ingest",
		cmds.WithShort("Load YAML and Markdown knowledge files into the index"),
		cmds.WithLong(`Directories are walked for .yaml, .yml, .md and .markdown files.
Documents keep their id across runs, so ingesting a file again updates it in place.`),
		cmds.WithFlags(
			fields.New("batch-size", fields.TypeInteger,
				fields.WithDefault(32),
				fields.WithHelp("Documents per embedding request")),
			fields.New("concurrency", fields.TypeInteger,
				fields.WithDefault(4),
				fields.WithHelp("Embedding requests in flight")),
		),
		cmds.WithArguments(
			fields.New("paths", fields.TypeStringList,
				fields.WithRequired(true),
				fields.WithHelp("Files or directories to ingest")),
		),
		cmds.WithSections(ks),
	)
	return &IngestCommand{CommandDescription: desc}, nil
}

func (c *IngestCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &IngestSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode ingest settings")
	}
	ks := knowledge.Settings{}
	if err := parsed.DecodeSectionInto(knowledge.SectionSlug, &ks); err != nil {
		return errors.Wrap(err, "decode knowledge settings")
	}

	docs, err := knowledge.LoadPaths(s.Paths...)
	if err != nil {
		return err
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

	n, err := knowledge.Ingest(ctx, embedder, index, docs, knowledge.IngestOptions{
		BatchSize:   s.BatchSize,
		Concurrency: s.Concurrency,
	})
	if err != nil {
		return err
	}
	log.Info().Int("documents", n).Str("embedder", embedder.Name()).Str("index", ks.DB).Msg("ingest finished")
	_, err = fmt.Fprintf(w, "Ingested %d documents into %s (%s)\n", n, ks.DB, embedder.Name())
	return err
}
