package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/workflow"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter treats every whitespace separated word as one token.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

func longState(turns int) *conversation.State {
	st := conversation.New()
	st.BeginRun("my withdrawal is stuck")
	for i := 0; i < turns; i++ {
		st.Append(conversation.RoleSupport, fmt.Sprintf("question %d about the withdrawal details", i))
		st.Append(conversation.RoleUser, fmt.Sprintf("answer %d with more details about it", i))
	}
	return st
}

func TestMaintain_UnderBudgetDoesNothing(t *testing.T) {
	calls := 0
	gen := capability.GeneratorFunc(func(context.Context, capability.Prompt) (string, error) {
		calls++
		return "summary", nil
	})
	s, err := New(gen, nil, wordCounter{}, Config{MaxTokens: 1000, MaxSummaryTokens: 10})
	require.NoError(t, err)

	st := longState(2)
	changed, err := s.Maintain(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, calls)
	assert.Empty(t, st.Summary)
}

func TestMaintain_FoldsOldestTurnsAndKeepsTranscript(t *testing.T) {
	var seen capability.Prompt
	gen := capability.GeneratorFunc(func(_ context.Context, p capability.Prompt) (string, error) {
		seen = p
		return "user has a stuck withdrawal and answered several questions", nil
	})
	s, err := New(gen, nil, wordCounter{}, Config{MaxTokens: 60, MaxSummaryTokens: 5})
	require.NoError(t, err)

	st := longState(6)
	before := append([]conversation.Turn(nil), st.AdditionalInfo...)

	changed, err := s.Maintain(context.Background(), st)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, "user has a stuck withdrawal", st.Summary)
	assert.Greater(t, st.SummarizedTurns, 0)
	assert.Less(t, st.SummarizedTurns, len(st.AdditionalInfo))
	assert.Equal(t, before, st.AdditionalInfo)
	assert.Contains(t, seen.User, "User: my withdrawal is stuck")
	assert.Contains(t, seen.User, "5 tokens")

	assert.LessOrEqual(t, wordCounter{}.Count(st.Conversation()), 60)
	assert.True(t, strings.HasPrefix(st.Conversation(), "Summary of earlier conversation:\n"))
	last := st.AdditionalInfo[len(st.AdditionalInfo)-1].String()
	assert.True(t, strings.HasSuffix(st.Conversation(), last))
}

func TestMaintain_IncludesPreviousSummary(t *testing.T) {
	var seen capability.Prompt
	gen := capability.GeneratorFunc(func(_ context.Context, p capability.Prompt) (string, error) {
		seen = p
		return "merged", nil
	})
	s, err := New(gen, nil, wordCounter{}, Config{MaxTokens: 40, MaxSummaryTokens: 5})
	require.NoError(t, err)

	st := longState(6)
	st.Summary = "earlier the user verified their account"
	st.SummarizedTurns = 1

	changed, err := s.Maintain(context.Background(), st)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Contains(t, seen.User, "Existing summary:\nearlier the user verified their account")
	assert.NotContains(t, seen.User, "User: my withdrawal is stuck")
	assert.Equal(t, "merged", st.Summary)
	assert.Greater(t, st.SummarizedTurns, 1)
}

func TestMaintain_GeneratorFailureLeavesStateUntouched(t *testing.T) {
	gen := capability.GeneratorFunc(func(context.Context, capability.Prompt) (string, error) {
		return "", errors.New("rate limited")
	})
	s, err := New(gen, nil, wordCounter{}, Config{MaxTokens: 30, MaxSummaryTokens: 5})
	require.NoError(t, err)

	st := longState(6)
	want := st.Clone()
	changed, err := s.Maintain(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, capability.KindCapabilityFailure, capability.KindOf(err))
	assert.False(t, changed)
	assert.Equal(t, want, st)
}

func TestHook_RunsMaintain(t *testing.T) {
	gen := capability.GeneratorFunc(func(context.Context, capability.Prompt) (string, error) {
		return "short", nil
	})
	s, err := New(gen, nil, wordCounter{}, Config{MaxTokens: 30, MaxSummaryTokens: 5})
	require.NoError(t, err)

	st := longState(6)
	require.NoError(t, s.Hook()(context.Background(), &workflow.Run{State: st}))
	assert.Equal(t, "short", st.Summary)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultMaxTokens, c.MaxTokens)
	assert.Equal(t, DefaultMaxSummaryTokens, c.MaxSummaryTokens)

	c = Config{MaxTokens: 100, MaxSummaryTokens: 500}.withDefaults()
	assert.Equal(t, 25, c.MaxSummaryTokens)
}

func TestTokenCounter(t *testing.T) {
	c, err := NewTokenCounter("")
	require.NoError(t, err)

	text := "The quick brown fox jumps over the lazy dog and keeps running."
	n := c.Count(text)
	assert.Greater(t, n, 5)
	assert.Equal(t, 0, c.Count(""))

	short := c.Truncate(text, 3)
	assert.Equal(t, 3, c.Count(short))
	assert.True(t, strings.HasPrefix(text, short))
	assert.Equal(t, text, c.Truncate(text, 1000))
}
