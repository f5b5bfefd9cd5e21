package steps

import (
	"context"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/go-go-golems/supportbot/pkg/support/prompts"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Answer generates a reply grounded in the filtered context.
func (s *Steps) Answer(ctx context.Context, st *conversation.State) error {
	p, err := s.prompts.Render(prompts.Answer, s.data(st, nil))
	if err != nil {
		return err
	}
	text, err := s.gen.Generate(ctx, p)
	if err != nil {
		return capability.Failure(err, "answer")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return capability.Failure(errors.New("empty answer"), "answer")
	}
	s.recordAnswer(st, text)
	return nil
}

func (s *Steps) recordAnswer(st *conversation.State, text string) {
	st.SetFinalAnswer(text)
	st.Append(conversation.RoleSupport, text)
}

// Escalate hands the query to the human queue with a priority and replies
// with the escalation statement in the user's language.
func (s *Steps) Escalate(ctx context.Context, st *conversation.State) error {
	r, err := s.extract(ctx, prompts.Escalation, st, EscalationSchema)
	if err != nil {
		return err
	}
	st.SetFinalAnswer(r.String("reply"))
	st.Priority = r.String("priority")
	s.raise(ctx, st)
	return nil
}

func (s *Steps) escalateFallback(ctx context.Context, st *conversation.State) {
	st.SetFinalAnswer(s.cfg.EscalationMessage)
	st.Priority = DefaultPriority
	s.raise(ctx, st)
}

// raise files a ticket. A queue failure is logged; the user still gets the
// escalation reply.
func (s *Steps) raise(ctx context.Context, st *conversation.State) {
	if s.tickets == nil {
		return
	}
	sessionID, _ := capability.SessionFrom(ctx)
	desc := st.QueryDescription
	if desc == "" {
		desc = rawDescription(st)
	}
	t := capability.Ticket{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Priority:    st.Priority,
		Description: desc,
		Transcript:  st.Transcript(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tickets.Raise(ctx, t); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("ticket_id", t.ID).Msg("failed to raise escalation ticket")
		return
	}
	log.Info().Str("session_id", sessionID).Str("ticket_id", t.ID).Str("priority", t.Priority).Msg("escalation ticket raised")
}
