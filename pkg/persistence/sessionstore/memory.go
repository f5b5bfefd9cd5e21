package sessionstore

import (
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
)

type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*capability.Checkpoint
	tickets  []capability.Ticket
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: map[string]*capability.Checkpoint{}}
}

func (s *InMemoryStore) Load(ctx context.Context, sessionID string) (*capability.Checkpoint, bool, error) {
	if ctx == nil {
		return nil, false, errors.New("memory session store: ctx is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cp.Clone(), true, nil
}

func (s *InMemoryStore) Save(ctx context.Context, cp *capability.Checkpoint) error {
	if ctx == nil {
		return errors.New("memory session store: ctx is nil")
	}
	if err := validateCheckpoint("memory session store", cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cp.SessionID] = cp.Clone()
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, q ListQuery) ([]*capability.Checkpoint, error) {
	if ctx == nil {
		return nil, errors.New("memory session store: ctx is nil")
	}
	s.mu.Lock()
	out := make([]*capability.Checkpoint, 0, len(s.sessions))
	for _, cp := range s.sessions {
		if q.Status != "" && cp.Status != q.Status {
			continue
		}
		out = append(out, cp.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit := limitOrDefault(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Raise(ctx context.Context, t capability.Ticket) error {
	if ctx == nil {
		return errors.New("memory session store: ctx is nil")
	}
	if err := validateTicket("memory session store", t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, t)
	return nil
}

func (s *InMemoryStore) Tickets(ctx context.Context, q TicketQuery) ([]capability.Ticket, error) {
	if ctx == nil {
		return nil, errors.New("memory session store: ctx is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := limitOrDefault(q.Limit)
	out := []capability.Ticket{}
	for i := len(s.tickets) - 1; i >= 0 && len(out) < limit; i-- {
		if ticketMatches(s.tickets[i], q) {
			out = append(out, s.tickets[i])
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
