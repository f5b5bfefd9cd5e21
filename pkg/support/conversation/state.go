// Package conversation holds the record threaded through every support step.
package conversation

import (
	"strings"
)

type Role string

const (
	RoleUser    Role = "User"
	RoleSupport Role = "Support"
)

// Turn is one message of the transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func (t Turn) String() string {
	return string(t.Role) + ": " + t.Text
}

// Item is one retrieved knowledge entry.
type Item struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (i Item) String() string {
	if i.Title == "" {
		return i.Body
	}
	return i.Title + "\n" + i.Body
}

// RenderItems joins items in the "Title\nBody\n\nTitle\nBody" layout.
func RenderItems(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.String())
	}
	return strings.Join(parts, "\n\n")
}

// State is the mutable record of a session.
//
// AdditionalInfo only ever grows: use Append. Exactly one of FinalAnswer and
// FollowupQuestion is set once a run ends; SetFinalAnswer and SetFollowup keep
// that true.
type State struct {
	Question                 string `json:"question"`
	AdditionalInfo           []Turn `json:"additional_info"`
	Query                    string `json:"query,omitempty"`
	FollowupQuestion         string `json:"followup_question,omitempty"`
	Context                  []Item `json:"context,omitempty"`
	FinalAnswer              string `json:"final_answer,omitempty"`
	QueryDescription         string `json:"query_description,omitempty"`
	IsRelevantContentPresent bool   `json:"is_relevant_content_present"`
	Summary                  string `json:"summary,omitempty"`

	// SummarizedTurns is the number of leading turns folded into Summary.
	SummarizedTurns int `json:"summarized_turns,omitempty"`
	// RunStart is the index of the first turn recorded by the current run.
	RunStart int `json:"run_start"`
	// PendingReply carries the user's answer to a follow-up into receive-human-reply.
	PendingReply string `json:"pending_reply,omitempty"`
	Priority     string `json:"priority,omitempty"`
}

// New returns an empty state.
func New() *State {
	return &State{}
}

// BeginRun resets per-run fields and records question as the opening user turn.
func (s *State) BeginRun(question string) {
	s.Question = question
	s.Query = ""
	s.FollowupQuestion = ""
	s.Context = nil
	s.FinalAnswer = ""
	s.QueryDescription = ""
	s.IsRelevantContentPresent = false
	s.PendingReply = ""
	s.Priority = ""
	s.RunStart = len(s.AdditionalInfo)
	s.Append(RoleUser, question)
}

// Append extends the transcript.
func (s *State) Append(role Role, text string) {
	s.AdditionalInfo = append(s.AdditionalInfo, Turn{Role: role, Text: strings.TrimSpace(text)})
}

func (s *State) SetFollowup(q string) {
	s.FollowupQuestion = q
	s.FinalAnswer = ""
}

func (s *State) SetFinalAnswer(a string) {
	s.FinalAnswer = a
	s.FollowupQuestion = ""
}

// Pairs counts (User, Support) exchanges recorded since the run started: a
// Support turn closes a pair when at least one User turn precedes it.
func (s *State) Pairs() int {
	start := s.RunStart
	if start < 0 || start > len(s.AdditionalInfo) {
		start = 0
	}
	pairs := 0
	open := false
	for _, t := range s.AdditionalInfo[start:] {
		switch t.Role {
		case RoleUser:
			open = true
		case RoleSupport:
			if open {
				pairs++
				open = false
			}
		}
	}
	return pairs
}

// Transcript renders every turn, one per line.
func (s *State) Transcript() string {
	return renderTurns(s.AdditionalInfo)
}

// ActiveTurns returns the turns not yet folded into Summary.
func (s *State) ActiveTurns() []Turn {
	n := s.SummarizedTurns
	if n < 0 {
		n = 0
	}
	if n > len(s.AdditionalInfo) {
		n = len(s.AdditionalInfo)
	}
	return s.AdditionalInfo[n:]
}

// SummaryHeader introduces the rolling summary in Conversation.
const SummaryHeader = "Summary of earlier conversation:\n"

// Conversation is the bounded transcript handed to prompts: the rolling
// summary followed by the active turns.
func (s *State) Conversation() string {
	active := renderTurns(s.ActiveTurns())
	if s.Summary == "" {
		return active
	}
	return SummaryHeader + s.Summary + "\n\n" + active
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := *s
	if s.AdditionalInfo != nil {
		out.AdditionalInfo = append([]Turn(nil), s.AdditionalInfo...)
	}
	if s.Context != nil {
		out.Context = append([]Item(nil), s.Context...)
	}
	return &out
}

func renderTurns(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.String())
	}
	return strings.Join(lines, "\n")
}
