package workflow

import (
	"context"
	"testing"

	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodesFor(ids ...StepID) map[StepID]Node {
	out := map[StepID]Node{}
	for _, id := range ids {
		out[id] = Node{ID: id, Run: func(context.Context, *conversation.State) (Condition, error) { return Next, nil }}
	}
	return out
}

func TestSupportGraph_Validates(t *testing.T) {
	g := SupportGraph()
	require.NoError(t, g.Validate(nodesFor(AllSteps...)))
	assert.Equal(t, AllSteps, g.Steps())
	assert.True(t, g.IsTerminal(StepAnswer))
	assert.True(t, g.IsTerminal(StepEscalate))
	assert.False(t, g.IsTerminal(StepRetrieve))
}

func TestSupportGraph_Transitions(t *testing.T) {
	g := SupportGraph()
	cases := []struct {
		from StepID
		on   Condition
		to   StepID
	}{
		{StepDecideSufficiency, Enough, StepDescribeQuery},
		{StepDecideSufficiency, NotEnough, StepAskFollowUp},
		{StepAskFollowUp, Next, StepReceiveHumanReply},
		{StepReceiveHumanReply, Next, StepDecideSufficiency},
		{StepDescribeQuery, Next, StepRefineQuery},
		{StepRefineQuery, Next, StepRetrieve},
		{StepRetrieve, Next, StepFilterRelevance},
		{StepFilterRelevance, Relevant, StepAnswer},
		{StepFilterRelevance, NotRelevant, StepEscalate},
	}
	for _, c := range cases {
		to, err := g.Next(c.from, c.on)
		require.NoError(t, err)
		assert.Equal(t, c.to, to, "%s/%s", c.from, c.on)
	}
	_, err := g.Next(StepDecideSufficiency, Relevant)
	require.Error(t, err)
}

func TestValidate_MissingTransition(t *testing.T) {
	g := NewGraph(StepDecideSufficiency, StepReceiveHumanReply).
		Step(StepDecideSufficiency, Enough, NotEnough).
		Step(StepReceiveHumanReply, Next).
		Terminal(StepAnswer).
		Edge(StepDecideSufficiency, Enough, StepAnswer).
		Edge(StepReceiveHumanReply, Next, StepDecideSufficiency)
	err := g.Validate(nodesFor(StepDecideSufficiency, StepReceiveHumanReply, StepAnswer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no transition for "not-enough"`)
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]struct {
		graph *Graph
		nodes map[StepID]Node
		msg   string
	}{
		"missing node": {
			graph: SupportGraph(),
			nodes: nodesFor(StepDecideSufficiency),
			msg:   "has no node",
		},
		"unknown step": {
			graph: NewGraph(StepDecideSufficiency, StepReceiveHumanReply).
				Step(StepDecideSufficiency, Next).
				Step(StepReceiveHumanReply, Next).
				Step(StepID("retreive"), Next).
				Terminal(StepAnswer),
			nodes: nodesFor(StepDecideSufficiency, StepReceiveHumanReply, StepAnswer, StepID("retreive")),
			msg:   "not a known step",
		},
		"terminal suspension": {
			graph: NewGraph(StepDecideSufficiency, StepAnswer).
				Step(StepDecideSufficiency, Next).
				Terminal(StepAnswer).
				Edge(StepDecideSufficiency, Next, StepAnswer),
			nodes: nodesFor(StepDecideSufficiency, StepAnswer),
			msg:   "cannot be terminal",
		},
		"terminal with edge": {
			graph: SupportGraph().Edge(StepAnswer, Done, StepDecideSufficiency),
			nodes: nodesFor(AllSteps...),
			msg:   "outgoing transition",
		},
		"undeclared outcome edge": {
			graph: SupportGraph().Edge(StepRetrieve, Relevant, StepAnswer),
			nodes: nodesFor(AllSteps...),
			msg:   "undeclared outcome",
		},
		"unreachable": {
			graph: NewGraph(StepDecideSufficiency, StepReceiveHumanReply).
				Step(StepDecideSufficiency, Next).
				Step(StepReceiveHumanReply, Next).
				Terminal(StepAnswer).
				Edge(StepDecideSufficiency, Next, StepAnswer).
				Edge(StepReceiveHumanReply, Next, StepDecideSufficiency),
			nodes: nodesFor(StepDecideSufficiency, StepReceiveHumanReply, StepAnswer),
			msg:   "unreachable",
		},
		"extra node": {
			graph: SupportGraph(),
			nodes: nodesFor(append([]StepID{StepID("bonus")}, AllSteps...)...),
			msg:   "not part of the graph",
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			err := c.graph.Validate(c.nodes)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestParseStepID(t *testing.T) {
	id, err := ParseStepID("receive-human-reply")
	require.NoError(t, err)
	assert.Equal(t, StepReceiveHumanReply, id)
	_, err = ParseStepID("receive-reply")
	require.Error(t, err)
}
