package steps

import (
	"context"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/prompts"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DecideSufficiency reports whether the conversation holds enough information
// to answer. Once the run reaches MaxClarificationPairs exchanges it answers
// true without asking the model.
func (s *Steps) DecideSufficiency(ctx context.Context, st *conversation.State) (bool, error) {
	if pairs := st.Pairs(); pairs >= s.cfg.MaxClarificationPairs {
		sessionID, _ := capability.SessionFrom(ctx)
		log.Debug().
			Str("session_id", sessionID).
			Int("pairs", pairs).
			Int("limit", s.cfg.MaxClarificationPairs).
			Msg("clarification limit reached, proceeding with available information")
		return true, nil
	}
	r, err := s.extract(ctx, prompts.Sufficiency, st, SufficiencySchema)
	if err != nil {
		return false, err
	}
	return r.Bool("is_enough"), nil
}

// AskFollowUp asks the model for one clarifying question and records it.
func (s *Steps) AskFollowUp(ctx context.Context, st *conversation.State) error {
	r, err := s.extract(ctx, prompts.Followup, st, FollowupSchema)
	if err != nil {
		return err
	}
	s.recordFollowup(st, r.String("question"))
	return nil
}

func (s *Steps) recordFollowup(st *conversation.State, q string) {
	st.SetFollowup(q)
	st.Append(conversation.RoleSupport, q)
}

// ReceiveHumanReply moves the reply injected on resume into the transcript.
func (s *Steps) ReceiveHumanReply(_ context.Context, st *conversation.State) error {
	reply := strings.TrimSpace(st.PendingReply)
	if reply == "" {
		return errors.Wrap(capability.ErrMissingInput, "receive human reply")
	}
	st.Append(conversation.RoleUser, reply)
	st.PendingReply = ""
	return nil
}
