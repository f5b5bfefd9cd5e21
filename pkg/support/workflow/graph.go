// Package workflow runs the support conversation graph: a closed set of steps
// joined by an explicit transition table, with one suspension point where the
// run waits for the user.
package workflow

import (
	"sort"

	"github.com/pkg/errors"
)

// StepID names a node of the support graph.
type StepID string

const (
	StepDecideSufficiency StepID = "decide-sufficiency"
	StepAskFollowUp       StepID = "ask-follow-up"
	StepReceiveHumanReply StepID = "receive-human-reply"
	StepDescribeQuery     StepID = "describe-query"
	StepRefineQuery       StepID = "refine-query"
	StepRetrieve          StepID = "retrieve"
	StepFilterRelevance   StepID = "filter-relevance"
	StepAnswer            StepID = "answer"
	StepEscalate          StepID = "escalate"
)

// AllSteps lists every StepID in graph order.
var AllSteps = []StepID{
	StepDecideSufficiency,
	StepAskFollowUp,
	StepReceiveHumanReply,
	StepDescribeQuery,
	StepRefineQuery,
	StepRetrieve,
	StepFilterRelevance,
	StepAnswer,
	StepEscalate,
}

// ParseStepID maps a persisted position back onto the enum.
func ParseStepID(s string) (StepID, error) {
	for _, id := range AllSteps {
		if string(id) == s {
			return id, nil
		}
	}
	return "", errors.Errorf("unknown step %q", s)
}

// Condition is the outcome a step reports to the router.
type Condition string

const (
	Next        Condition = "next"
	Enough      Condition = "enough"
	NotEnough   Condition = "not-enough"
	Relevant    Condition = "relevant"
	NotRelevant Condition = "not-relevant"
	Done        Condition = "done"
)

type edge struct {
	from StepID
	on   Condition
}

// Graph is the transition table. Build it with Step, Terminal and Edge, then
// Validate it against the registered nodes.
type Graph struct {
	Entry   StepID
	Suspend StepID

	order       []StepID
	outcomes    map[StepID][]Condition
	terminals   map[StepID]bool
	transitions map[edge]StepID
}

func NewGraph(entry, suspend StepID) *Graph {
	return &Graph{
		Entry:       entry,
		Suspend:     suspend,
		outcomes:    map[StepID][]Condition{},
		terminals:   map[StepID]bool{},
		transitions: map[edge]StepID{},
	}
}

// Step declares id with the outcomes it may report.
func (g *Graph) Step(id StepID, outcomes ...Condition) *Graph {
	if _, ok := g.outcomes[id]; !ok {
		g.order = append(g.order, id)
	}
	g.outcomes[id] = outcomes
	return g
}

// Terminal declares id as an end of the run.
func (g *Graph) Terminal(id StepID) *Graph {
	g.Step(id, Done)
	g.terminals[id] = true
	return g
}

func (g *Graph) Edge(from StepID, on Condition, to StepID) *Graph {
	g.transitions[edge{from: from, on: on}] = to
	return g
}

func (g *Graph) IsTerminal(id StepID) bool {
	return g.terminals[id]
}

// Steps returns the declared steps in declaration order.
func (g *Graph) Steps() []StepID {
	return append([]StepID(nil), g.order...)
}

func (g *Graph) declares(id StepID, c Condition) bool {
	for _, o := range g.outcomes[id] {
		if o == c {
			return true
		}
	}
	return false
}

// Next resolves the transition for (from, on).
func (g *Graph) Next(from StepID, on Condition) (StepID, error) {
	to, ok := g.transitions[edge{from: from, on: on}]
	if !ok {
		return "", errors.Errorf("workflow: no transition from %s on %q", from, on)
	}
	return to, nil
}

// Validate checks the table for exhaustiveness against nodes.
func (g *Graph) Validate(nodes map[StepID]Node) error {
	known := map[StepID]bool{}
	for _, id := range AllSteps {
		known[id] = true
	}
	for _, id := range g.order {
		if !known[id] {
			return errors.Errorf("workflow: step %q is not a known step", id)
		}
	}
	if _, ok := g.outcomes[g.Entry]; !ok {
		return errors.Errorf("workflow: entry step %q is not declared", g.Entry)
	}
	if _, ok := g.outcomes[g.Suspend]; !ok {
		return errors.Errorf("workflow: suspension step %q is not declared", g.Suspend)
	}
	if g.terminals[g.Suspend] {
		return errors.Errorf("workflow: suspension step %q cannot be terminal", g.Suspend)
	}
	if len(g.terminals) == 0 {
		return errors.New("workflow: graph has no terminal step")
	}

	for _, id := range g.order {
		if _, ok := nodes[id]; !ok {
			return errors.Errorf("workflow: step %q has no node", id)
		}
		if g.terminals[id] {
			continue
		}
		if len(g.outcomes[id]) == 0 {
			return errors.Errorf("workflow: step %q declares no outcomes", id)
		}
		for _, c := range g.outcomes[id] {
			to, ok := g.transitions[edge{from: id, on: c}]
			if !ok {
				return errors.Errorf("workflow: step %q has no transition for %q", id, c)
			}
			if _, ok := g.outcomes[to]; !ok {
				return errors.Errorf("workflow: transition %s/%s targets undeclared step %q", id, c, to)
			}
		}
	}
	for id := range nodes {
		if _, ok := g.outcomes[id]; !ok {
			return errors.Errorf("workflow: node %q is not part of the graph", id)
		}
	}

	keys := make([]edge, 0, len(g.transitions))
	for e := range g.transitions {
		keys = append(keys, e)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].on < keys[j].on
	})
	for _, e := range keys {
		if g.terminals[e.from] {
			return errors.Errorf("workflow: terminal step %q has an outgoing transition", e.from)
		}
		if !g.declares(e.from, e.on) {
			return errors.Errorf("workflow: transition %s/%s uses an undeclared outcome", e.from, e.on)
		}
	}

	seen := map[StepID]bool{g.Entry: true}
	queue := []StepID{g.Entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range g.outcomes[cur] {
			to, ok := g.transitions[edge{from: cur, on: c}]
			if ok && !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	for _, id := range g.order {
		if !seen[id] {
			return errors.Errorf("workflow: step %q is unreachable from %q", id, g.Entry)
		}
	}
	return nil
}

// SupportGraph is the conversation topology: clarify until the question can
// be answered, then retrieve and either answer or escalate.
func SupportGraph() *Graph {
	return NewGraph(StepDecideSufficiency, StepReceiveHumanReply).
		Step(StepDecideSufficiency, Enough, NotEnough).
		Step(StepAskFollowUp, Next).
		Step(StepReceiveHumanReply, Next).
		Step(StepDescribeQuery, Next).
		Step(StepRefineQuery, Next).
		Step(StepRetrieve, Next).
		Step(StepFilterRelevance, Relevant, NotRelevant).
		Terminal(StepAnswer).
		Terminal(StepEscalate).
		Edge(StepDecideSufficiency, Enough, StepDescribeQuery).
		Edge(StepDecideSufficiency, NotEnough, StepAskFollowUp).
		Edge(StepAskFollowUp, Next, StepReceiveHumanReply).
		Edge(StepReceiveHumanReply, Next, StepDecideSufficiency).
		Edge(StepDescribeQuery, Next, StepRefineQuery).
		Edge(StepRefineQuery, Next, StepRetrieve).
		Edge(StepRetrieve, Next, StepFilterRelevance).
		Edge(StepFilterRelevance, Relevant, StepAnswer).
		Edge(StepFilterRelevance, NotRelevant, StepEscalate)
}
