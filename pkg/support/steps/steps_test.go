package steps

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/capability/capabilitytest"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSteps(t *testing.T, f *capabilitytest.Fake, cfg Config) *Steps {
	t.Helper()
	s, err := New(Deps{
		Generator: f,
		Extractor: f,
		Searcher:  f,
		Tickets:   f,
		Config:    cfg,
		Now:       func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	require.NoError(t, err)
	return s
}

func node(t *testing.T, s *Steps, id workflow.StepID) workflow.Node {
	t.Helper()
	for _, n := range s.Nodes() {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("no node %s", id)
	return workflow.Node{}
}

func stateWithPairs(n int) *conversation.State {
	st := conversation.New()
	st.BeginRun("help")
	for i := 0; i < n; i++ {
		st.Append(conversation.RoleSupport, fmt.Sprintf("question %d?", i+1))
		st.Append(conversation.RoleUser, fmt.Sprintf("answer %d", i+1))
	}
	return st
}

func TestNew_RequiresCapabilities(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestNodes_FormAValidGraph(t *testing.T) {
	s := newSteps(t, capabilitytest.New(), Config{})
	_, err := workflow.NewEngine(workflow.SupportGraph(), s.Nodes())
	require.NoError(t, err)
}

func TestDecideSufficiency_CircuitBreaker(t *testing.T) {
	f := capabilitytest.New().OnExtract(SufficiencySchema.Name, map[string]any{"is_enough": false})
	s := newSteps(t, f, Config{})

	enough, err := s.DecideSufficiency(context.Background(), stateWithPairs(5))
	require.NoError(t, err)
	assert.True(t, enough)
	assert.Equal(t, 0, f.Count(SufficiencySchema.Name))

	enough, err = s.DecideSufficiency(context.Background(), stateWithPairs(4))
	require.NoError(t, err)
	assert.False(t, enough)
	assert.Equal(t, 1, f.Count(SufficiencySchema.Name))
}

func TestDecideSufficiency_ConfigurableLimit(t *testing.T) {
	f := capabilitytest.New().OnExtract(SufficiencySchema.Name, map[string]any{"is_enough": "false"})
	s := newSteps(t, f, Config{MaxClarificationPairs: 2})
	enough, err := s.DecideSufficiency(context.Background(), stateWithPairs(2))
	require.NoError(t, err)
	assert.True(t, enough)
}

func TestDecideSufficiency_FailureFallsBackToNotEnough(t *testing.T) {
	f := capabilitytest.New().OnExtract(SufficiencySchema.Name, map[string]any{"is_enough": "perhaps"})
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)

	_, err := s.DecideSufficiency(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, capability.KindSchemaViolation, capability.KindOf(err))

	n := node(t, s, workflow.StepDecideSufficiency)
	assert.Equal(t, workflow.NotEnough, n.Fallback(context.Background(), st, err))
}

func TestAskFollowUp_RecordsQuestion(t *testing.T) {
	f := capabilitytest.New().OnExtract(FollowupSchema.Name, map[string]any{"question": "Which payment method did you use?"})
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)
	st.SetFinalAnswer("stale")

	require.NoError(t, s.AskFollowUp(context.Background(), st))
	assert.Equal(t, "Which payment method did you use?", st.FollowupQuestion)
	assert.Empty(t, st.FinalAnswer)
	assert.Equal(t, conversation.Turn{Role: conversation.RoleSupport, Text: "Which payment method did you use?"}, st.AdditionalInfo[len(st.AdditionalInfo)-1])
	assert.Equal(t, 1, st.Pairs())
}

func TestAskFollowUp_FallbackIsRecorded(t *testing.T) {
	f := capabilitytest.New().OnExtractErr(FollowupSchema.Name, fmt.Errorf("rate limited"))
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)

	err := s.AskFollowUp(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, capability.KindCapabilityFailure, capability.KindOf(err))

	n := node(t, s, workflow.StepAskFollowUp)
	assert.Equal(t, workflow.Next, n.Fallback(context.Background(), st, err))
	assert.Equal(t, DefaultFollowupFallback, st.FollowupQuestion)
	assert.Equal(t, 1, st.Pairs())
}

func TestReceiveHumanReply(t *testing.T) {
	s := newSteps(t, capabilitytest.New(), Config{})
	st := stateWithPairs(0)

	err := s.ReceiveHumanReply(context.Background(), st)
	require.Error(t, err)
	assert.True(t, errors.Is(err, capability.ErrMissingInput))

	st.PendingReply = "  I can't withdraw money "
	require.NoError(t, s.ReceiveHumanReply(context.Background(), st))
	assert.Empty(t, st.PendingReply)
	assert.Equal(t, "User: help\nUser: I can't withdraw money", st.Transcript())
	assert.Nil(t, node(t, s, workflow.StepReceiveHumanReply).Fallback)
}

func TestDescribeAndRefine(t *testing.T) {
	f := capabilitytest.New().
		OnExtract(DescriptionSchema.Name, map[string]any{"query_description": "User cannot withdraw winnings via UPI"}).
		OnExtract(QuerySchema.Name, map[string]any{"query": "withdrawal via UPI failing"})
	s := newSteps(t, f, Config{})
	st := stateWithPairs(1)

	require.NoError(t, s.DescribeQuery(context.Background(), st))
	require.NoError(t, s.RefineQuery(context.Background(), st))
	assert.Equal(t, "User cannot withdraw winnings via UPI", st.QueryDescription)
	assert.Equal(t, "withdrawal via UPI failing", st.Query)
}

func TestDescribeAndRefine_Fallbacks(t *testing.T) {
	s := newSteps(t, capabilitytest.New(), Config{})
	st := stateWithPairs(0)

	describe := node(t, s, workflow.StepDescribeQuery)
	_, err := describe.Run(context.Background(), st)
	require.Error(t, err)
	describe.Fallback(context.Background(), st, err)
	assert.Equal(t, "help\nUser: help", st.QueryDescription)

	refine := node(t, s, workflow.StepRefineQuery)
	_, err = refine.Run(context.Background(), st)
	require.Error(t, err)
	refine.Fallback(context.Background(), st, err)
	assert.Equal(t, st.QueryDescription, st.Query)
}

func TestRetrieve_ReplacesContextWithTopK(t *testing.T) {
	f := capabilitytest.New().WithItems(
		conversation.Item{Title: "A", Body: "a"},
		conversation.Item{Title: "B", Body: "b"},
		conversation.Item{Title: "C", Body: "c"},
		conversation.Item{Title: "D", Body: "d"},
	)
	s := newSteps(t, f, Config{RetrievalK: 2})
	st := stateWithPairs(0)
	st.Context = []conversation.Item{{Title: "old"}}
	st.Query = "points"

	require.NoError(t, s.Retrieve(context.Background(), st))
	assert.Equal(t, []conversation.Item{{Title: "A", Body: "a"}, {Title: "B", Body: "b"}}, st.Context)
	assert.Equal(t, []int{2}, f.Ks())
	assert.Equal(t, []string{"points"}, f.Queries())
}

func TestRetrieve_FailureEmptiesContext(t *testing.T) {
	f := capabilitytest.New().WithSearchError(fmt.Errorf("index offline"))
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)
	st.Context = []conversation.Item{{Title: "old"}}

	n := node(t, s, workflow.StepRetrieve)
	_, err := n.Run(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, capability.KindCapabilityFailure, capability.KindOf(err))
	assert.Equal(t, workflow.Next, n.Fallback(context.Background(), st, err))
	assert.Empty(t, st.Context)
}

func TestFilterRelevance_KeepsReferencedItems(t *testing.T) {
	f := capabilitytest.New().OnExtract(RelevanceSchema.Name, map[string]any{
		"relevant_items":              []any{float64(3), float64(1), float64(3), float64(9)},
		"is_relevant_content_present": true,
	})
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)
	st.Context = []conversation.Item{{Title: "A"}, {Title: "B"}, {Title: "C"}}

	cond, err := node(t, s, workflow.StepFilterRelevance).Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, workflow.Relevant, cond)
	assert.True(t, st.IsRelevantContentPresent)
	assert.Equal(t, []conversation.Item{{Title: "C"}, {Title: "A"}}, st.Context)
}

func TestFilterRelevance_FlagWithoutItemsIsNotRelevant(t *testing.T) {
	f := capabilitytest.New().OnExtract(RelevanceSchema.Name, map[string]any{"is_relevant_content_present": true})
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)
	st.Context = []conversation.Item{{Title: "A"}}

	require.NoError(t, s.FilterRelevance(context.Background(), st))
	assert.False(t, st.IsRelevantContentPresent)
	assert.Empty(t, st.Context)
}

func TestFilterRelevance_EmptyContextSkipsModel(t *testing.T) {
	f := capabilitytest.New()
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)
	st.IsRelevantContentPresent = true

	cond, err := node(t, s, workflow.StepFilterRelevance).Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, workflow.NotRelevant, cond)
	assert.Empty(t, f.Calls())
}

func TestAnswer(t *testing.T) {
	var seen capability.Prompt
	f := capabilitytest.New().OnGenerate(func(p capability.Prompt) (string, error) {
		seen = p
		return "  - Points are awarded per run.\n", nil
	})
	s := newSteps(t, f, Config{Brand: "Acme"})
	st := stateWithPairs(0)
	st.SetFollowup("stale question")
	st.Context = []conversation.Item{{Title: "Points", Body: "One point per run."}}

	require.NoError(t, s.Answer(context.Background(), st))
	assert.Equal(t, "- Points are awarded per run.", st.FinalAnswer)
	assert.Empty(t, st.FollowupQuestion)
	assert.Contains(t, seen.User, "Points\nOne point per run.")
	assert.Contains(t, seen.System, "Acme")
	assert.Equal(t, conversation.RoleSupport, st.AdditionalInfo[len(st.AdditionalInfo)-1].Role)
}

func TestAnswer_EmptyOutputUsesFallback(t *testing.T) {
	f := capabilitytest.New().OnGenerate(func(capability.Prompt) (string, error) { return " ", nil })
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)

	n := node(t, s, workflow.StepAnswer)
	_, err := n.Run(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, workflow.Done, n.Fallback(context.Background(), st, err))
	assert.Equal(t, DefaultAnswerFallback, st.FinalAnswer)
	assert.Equal(t, DefaultAnswerFallback, st.AdditionalInfo[len(st.AdditionalInfo)-1].Text)
}

func TestEscalate_RaisesTicket(t *testing.T) {
	f := capabilitytest.New().OnExtract(EscalationSchema.Name, map[string]any{
		"reply":    "Humne aapki query aage bhej di hai.",
		"priority": "high",
	})
	s := newSteps(t, f, Config{})
	st := stateWithPairs(1)
	st.QueryDescription = "withdrawal stuck for a week"
	ctx := capability.WithSession(context.Background(), "S1", "R1")

	require.NoError(t, s.Escalate(ctx, st))
	assert.Equal(t, "Humne aapki query aage bhej di hai.", st.FinalAnswer)
	assert.Equal(t, "High", st.Priority)

	tickets := f.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "S1", tickets[0].SessionID)
	assert.Equal(t, "High", tickets[0].Priority)
	assert.Equal(t, "withdrawal stuck for a week", tickets[0].Description)
	assert.Equal(t, st.Transcript(), tickets[0].Transcript)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), tickets[0].CreatedAt)
	assert.NotEmpty(t, tickets[0].ID)
}

func TestEscalate_FallbackStillRaisesTicket(t *testing.T) {
	f := capabilitytest.New().OnExtractErr(EscalationSchema.Name, fmt.Errorf("timeout"))
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)

	n := node(t, s, workflow.StepEscalate)
	_, err := n.Run(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, workflow.Done, n.Fallback(context.Background(), st, err))
	assert.Equal(t, DefaultEscalationMessage, st.FinalAnswer)
	assert.Equal(t, DefaultPriority, st.Priority)
	require.Len(t, f.Tickets(), 1)
}

func TestEscalate_TicketFailureKeepsReply(t *testing.T) {
	f := capabilitytest.New().
		OnExtract(EscalationSchema.Name, map[string]any{"reply": "Raised.", "priority": "Low"}).
		WithRaiseError(fmt.Errorf("queue down"))
	s := newSteps(t, f, Config{})
	st := stateWithPairs(0)

	require.NoError(t, s.Escalate(context.Background(), st))
	assert.Equal(t, "Raised.", st.FinalAnswer)
	assert.Equal(t, 1, f.Count("raise"))
}
