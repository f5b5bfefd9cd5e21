package steps

import (
	"context"

	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
)

type stateFn func(ctx context.Context, st *conversation.State) error

func always(c workflow.Condition, fn stateFn) func(context.Context, *conversation.State) (workflow.Condition, error) {
	return func(ctx context.Context, st *conversation.State) (workflow.Condition, error) {
		if err := fn(ctx, st); err != nil {
			return "", err
		}
		return c, nil
	}
}

// Nodes binds every step to its graph identity and declared fallback.
func (s *Steps) Nodes() []workflow.Node {
	return []workflow.Node{
		{
			ID:        workflow.StepDecideSufficiency,
			UsesModel: true,
			Run: func(ctx context.Context, st *conversation.State) (workflow.Condition, error) {
				enough, err := s.DecideSufficiency(ctx, st)
				if err != nil {
					return "", err
				}
				if enough {
					return workflow.Enough, nil
				}
				return workflow.NotEnough, nil
			},
			Fallback: func(context.Context, *conversation.State, error) workflow.Condition {
				return workflow.NotEnough
			},
		},
		{
			ID:        workflow.StepAskFollowUp,
			UsesModel: true,
			Run:       always(workflow.Next, s.AskFollowUp),
			Fallback: func(_ context.Context, st *conversation.State, _ error) workflow.Condition {
				s.recordFollowup(st, s.cfg.FollowupFallback)
				return workflow.Next
			},
		},
		{
			ID:  workflow.StepReceiveHumanReply,
			Run: always(workflow.Next, s.ReceiveHumanReply),
		},
		{
			ID:        workflow.StepDescribeQuery,
			UsesModel: true,
			Run:       always(workflow.Next, s.DescribeQuery),
			Fallback: func(_ context.Context, st *conversation.State, _ error) workflow.Condition {
				st.QueryDescription = rawDescription(st)
				return workflow.Next
			},
		},
		{
			ID:        workflow.StepRefineQuery,
			UsesModel: true,
			Run:       always(workflow.Next, s.RefineQuery),
			Fallback: func(_ context.Context, st *conversation.State, _ error) workflow.Condition {
				st.Query = st.QueryDescription
				return workflow.Next
			},
		},
		{
			ID:  workflow.StepRetrieve,
			Run: always(workflow.Next, s.Retrieve),
			Fallback: func(_ context.Context, st *conversation.State, _ error) workflow.Condition {
				st.Context = nil
				return workflow.Next
			},
		},
		{
			ID:        workflow.StepFilterRelevance,
			UsesModel: true,
			Run: func(ctx context.Context, st *conversation.State) (workflow.Condition, error) {
				if err := s.FilterRelevance(ctx, st); err != nil {
					return "", err
				}
				if st.IsRelevantContentPresent {
					return workflow.Relevant, nil
				}
				return workflow.NotRelevant, nil
			},
			Fallback: func(context.Context, *conversation.State, error) workflow.Condition {
				return workflow.NotRelevant
			},
		},
		{
			ID:        workflow.StepAnswer,
			UsesModel: true,
			Run:       always(workflow.Done, s.Answer),
			Fallback: func(_ context.Context, st *conversation.State, _ error) workflow.Condition {
				s.recordAnswer(st, s.cfg.AnswerFallback)
				return workflow.Done
			},
		},
		{
			ID:        workflow.StepEscalate,
			UsesModel: true,
			Run:       always(workflow.Done, s.Escalate),
			Fallback: func(ctx context.Context, st *conversation.State, _ error) workflow.Condition {
				s.escalateFallback(ctx, st)
				return workflow.Done
			},
		},
	}
}
