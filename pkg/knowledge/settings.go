package knowledge

import (
	"context"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/pkg/errors"
)

const SectionSlug = "knowledge"

type Settings struct {
	DB                  string `glazed:"knowledge-db"`
	Embedder            string `glazed:"embedder"`
	EmbeddingModel      string `glazed:"embedding-model"`
	EmbeddingDimensions int    `glazed:"embedding-dimensions"`
	GeminiAPIKey        string `glazed:"gemini-api-key"`
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Knowledge base configuration",
		schema.WithFields(
			fields.New("knowledge-db", fields.TypeString,
				fields.WithDefault("knowledge.db"),
				fields.WithHelp("SQLite file holding knowledge documents and embeddings")),
			fields.New("embedder", fields.TypeChoice,
				fields.WithChoices("hashing", "gemini"),
				fields.WithDefault("hashing"),
				fields.WithHelp("Embedding backend; the index must be ingested with the same one")),
			fields.New("embedding-model", fields.TypeString,
				fields.WithDefault(DefaultGeminiModel),
				fields.WithHelp("Gemini embedding model")),
			fields.New("embedding-dimensions", fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Vector size (0 picks the embedder default)")),
			fields.New("gemini-api-key", fields.TypeString,
				fields.WithHelp("Gemini API key (defaults to $GOOGLE_API_KEY)")),
		),
	)
}

// NewEmbedder builds the embedder named in s.
func NewEmbedder(ctx context.Context, s Settings) (Embedder, error) {
	switch s.Embedder {
	case "", "hashing":
		return NewHashingEmbedder(s.EmbeddingDimensions)
	case "gemini":
		key := s.GeminiAPIKey
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		return NewGeminiEmbedder(ctx, key, s.EmbeddingModel, s.EmbeddingDimensions)
	default:
		return nil, errors.Errorf("unknown embedder %q", s.Embedder)
	}
}

// OpenIndex opens the SQLite index at s.DB, or an in-memory index when DB is
// ":memory:".
func OpenIndex(s Settings) (Index, error) {
	if s.DB == ":memory:" {
		return NewMemoryIndex(), nil
	}
	dsn, err := SQLiteDSNForFile(s.DB)
	if err != nil {
		return nil, err
	}
	return NewSQLiteIndex(dsn)
}
