// Package sessionstore persists support session checkpoints and escalation
// tickets. SQLite, Redis and in-memory backends share the Store interface.
package sessionstore

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
)

// Store is a checkpoint store that can also list what it holds and act as
// the human escalation queue.
type Store interface {
	capability.Checkpointer
	capability.TicketQueue
	List(ctx context.Context, q ListQuery) ([]*capability.Checkpoint, error)
	Tickets(ctx context.Context, q TicketQuery) ([]capability.Ticket, error)
	Close() error
}

// ListQuery filters sessions; results are ordered by last update, newest first.
type ListQuery struct {
	Status capability.CheckpointStatus
	Limit  int
}

// TicketQuery filters tickets; results are ordered newest first.
type TicketQuery struct {
	SessionID string
	Priority  string
	Limit     int
}

const defaultLimit = 200

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func validateCheckpoint(prefix string, cp *capability.Checkpoint) error {
	if cp == nil {
		return errors.Errorf("%s: checkpoint is nil", prefix)
	}
	if strings.TrimSpace(cp.SessionID) == "" {
		return errors.Errorf("%s: session id is empty", prefix)
	}
	return nil
}

func validateTicket(prefix string, t capability.Ticket) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.Errorf("%s: ticket id is empty", prefix)
	}
	return nil
}

func ticketMatches(t capability.Ticket, q TicketQuery) bool {
	if q.SessionID != "" && t.SessionID != q.SessionID {
		return false
	}
	if q.Priority != "" && !strings.EqualFold(t.Priority, q.Priority) {
		return false
	}
	return true
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
