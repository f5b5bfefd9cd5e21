package knowledge

import (
	"context"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Retriever answers Search by embedding the query and ranking the index.
type Retriever struct {
	embedder Embedder
	index    Index
}

var _ capability.Searcher = &Retriever{}

func NewRetriever(embedder Embedder, index Index) (*Retriever, error) {
	if embedder == nil || index == nil {
		return nil, errors.New("knowledge: retriever needs an embedder and an index")
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

func (r *Retriever) Search(ctx context.Context, query string, k int) ([]conversation.Item, error) {
	hits, err := r.Hits(ctx, query, k)
	if err != nil {
		return nil, err
	}
	items := make([]conversation.Item, 0, len(hits))
	for _, h := range hits {
		items = append(items, h.Document.Item())
	}
	return items, nil
}

// Hits is Search with scores.
func (r *Retriever) Hits(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = capability.DefaultSearchK
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("knowledge: empty query")
	}
	vecs, err := r.embedder.Embed(ctx, []string{query}, TaskQuery)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	if len(vecs) != 1 {
		return nil, errors.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	hits, err := r.index.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}
	sessionID, _ := capability.SessionFrom(ctx)
	log.Debug().Str("session_id", sessionID).Str("query", query).Int("k", k).Int("hits", len(hits)).Msg("knowledge search")
	return hits, nil
}

type IngestOptions struct {
	BatchSize   int
	Concurrency int
}

// Ingest embeds documents in batches, a few batches at a time, and upserts
// them. It returns the number of documents written.
func Ingest(ctx context.Context, embedder Embedder, index Index, docs []Document, opts IngestOptions) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	batches := make([][]Entry, (len(docs)+opts.BatchSize-1)/opts.BatchSize)
	for b := range batches {
		start := b * opts.BatchSize
		end := start + opts.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		g.Go(func() error {
			chunk := docs[start:end]
			texts := make([]string, 0, len(chunk))
			for _, d := range chunk {
				texts = append(texts, d.Text())
			}
			vecs, err := embedder.Embed(gctx, texts, TaskDocument)
			if err != nil {
				return errors.Wrapf(err, "embed batch %d", b)
			}
			if len(vecs) != len(chunk) {
				return errors.Errorf("embed batch %d: got %d vectors for %d documents", b, len(vecs), len(chunk))
			}
			entries := make([]Entry, 0, len(chunk))
			for i, d := range chunk {
				entries = append(entries, Entry{Document: d, Vector: vecs[i], Model: embedder.Name()})
			}
			batches[b] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, entries := range batches {
		if err := index.Upsert(ctx, entries); err != nil {
			return n, err
		}
		n += len(entries)
	}
	log.Info().Int("documents", n).Str("embedder", embedder.Name()).Msg("knowledge ingested")
	return n, nil
}
