package steps

import (
	"context"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/prompts"
)

// DescribeQuery condenses the conversation into a description of the query.
func (s *Steps) DescribeQuery(ctx context.Context, st *conversation.State) error {
	r, err := s.extract(ctx, prompts.Describe, st, DescriptionSchema)
	if err != nil {
		return err
	}
	st.QueryDescription = r.String("query_description")
	return nil
}

// rawDescription stands in for a description when the model is unavailable.
func rawDescription(st *conversation.State) string {
	return strings.TrimSpace(st.Question + "\n" + st.Conversation())
}

// RefineQuery turns the description into an English search query.
func (s *Steps) RefineQuery(ctx context.Context, st *conversation.State) error {
	r, err := s.extract(ctx, prompts.Refine, st, QuerySchema)
	if err != nil {
		return err
	}
	st.Query = r.String("query")
	return nil
}

// Retrieve replaces the context with the top RetrievalK knowledge items.
func (s *Steps) Retrieve(ctx context.Context, st *conversation.State) error {
	q := st.Query
	if q == "" {
		q = st.QueryDescription
	}
	items, err := s.search.Search(ctx, q, s.cfg.RetrievalK)
	if err != nil {
		return capability.Failure(err, "retrieve")
	}
	st.Context = items
	return nil
}

// FilterRelevance keeps the retrieved items the model marks as relevant and
// sets IsRelevantContentPresent. Kept items are verbatim retrieval results.
func (s *Steps) FilterRelevance(ctx context.Context, st *conversation.State) error {
	st.IsRelevantContentPresent = false
	if len(st.Context) == 0 {
		return nil
	}
	r, err := s.extract(ctx, prompts.Relevance, st, RelevanceSchema)
	if err != nil {
		return err
	}

	keep := make([]conversation.Item, 0, len(st.Context))
	seen := map[int]bool{}
	for _, n := range r.Ints("relevant_items") {
		if n < 1 || n > len(st.Context) || seen[n] {
			continue
		}
		seen[n] = true
		keep = append(keep, st.Context[n-1])
	}
	st.Context = keep
	st.IsRelevantContentPresent = r.Bool("is_relevant_content_present") && len(keep) > 0
	return nil
}
