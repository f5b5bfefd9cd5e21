package cmds

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcnksm/go-input"
)

type scriptedChat struct {
	calls   []string
	replies []session.Reply
}

func (s *scriptedChat) next(op, msg string) session.Reply {
	s.calls = append(s.calls, op+":"+msg)
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r
}

func (s *scriptedChat) Start(_ context.Context, msg, _ string) session.Reply {
	return s.next("start", msg)
}

func (s *scriptedChat) Resume(_ context.Context, msg, _ string) session.Reply {
	return s.next("resume", msg)
}

func newLoop(chat *scriptedChat, in string, out *bytes.Buffer) *chatLoop {
	return &chatLoop{
		chat:      chat,
		ui:        &input.UI{Writer: out, Reader: strings.NewReader(in)},
		out:       out,
		render:    plainText,
		sessionID: "s1",
	}
}

func TestChatLoop_FollowsSuspendAndComplete(t *testing.T) {
	chat := &scriptedChat{replies: []session.Reply{
		{Reply: "Which bank?"},
		{Reply: "It takes 24 hours.", Completed: true},
		{Reply: "Upload your PAN.", Completed: true},
	}}
	var out bytes.Buffer
	l := newLoop(chat, "HDFC\nHow do I verify?\n\n", &out)

	require.NoError(t, l.run(context.Background(), "withdrawal stuck"))
	assert.Equal(t, []string{"start:withdrawal stuck", "resume:HDFC", "start:How do I verify?"}, chat.calls)
	assert.Contains(t, out.String(), "Session s1")
	assert.Contains(t, out.String(), "Which bank?")
	assert.Contains(t, out.String(), "Upload your PAN.")
}

func TestChatLoop_ResumeWithoutPendingFallsBackToStart(t *testing.T) {
	chat := &scriptedChat{replies: []session.Reply{
		{Reply: session.ErrorReplyPrefix + "no pending session", Err: capability.ErrNoPendingSession},
		{Reply: "Answer.", Completed: true},
	}}
	var out bytes.Buffer
	l := newLoop(chat, "again\n\n", &out)
	l.pending = true

	require.NoError(t, l.run(context.Background(), "hello"))
	assert.Equal(t, []string{"resume:hello", "start:again"}, chat.calls)
}

func TestChatLoop_FailedResumeKeepsPending(t *testing.T) {
	chat := &scriptedChat{replies: []session.Reply{
		{Reply: "Which bank?"},
		{Reply: session.ErrorReplyPrefix + "load session: db locked", Err: assert.AnError},
		{Reply: "Done.", Completed: true},
	}}
	var out bytes.Buffer
	l := newLoop(chat, "HDFC\nHDFC\n\n", &out)

	require.NoError(t, l.run(context.Background(), "stuck"))
	assert.Equal(t, []string{"start:stuck", "resume:HDFC", "resume:HDFC"}, chat.calls)
	assert.False(t, l.pending)
}
