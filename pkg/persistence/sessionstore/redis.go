package sessionstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "supportbot:"

// RedisStore keeps each checkpoint as a JSON value under <prefix>session:<id>,
// a sorted set of session ids by update time, and tickets in a list.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = &RedisStore{}

func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis session store: client is nil")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + "session:" + id }
func (s *RedisStore) indexKey() string           { return s.prefix + "sessions" }
func (s *RedisStore) ticketsKey() string         { return s.prefix + "tickets" }

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*capability.Checkpoint, bool, error) {
	if ctx == nil {
		return nil, false, errors.New("redis session store: ctx is nil")
	}
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis session store: get")
	}
	var cp capability.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, false, errors.Wrap(err, "redis session store: unmarshal")
	}
	return &cp, true, nil
}

func (s *RedisStore) Save(ctx context.Context, cp *capability.Checkpoint) error {
	if ctx == nil {
		return errors.New("redis session store: ctx is nil")
	}
	if err := validateCheckpoint("redis session store", cp); err != nil {
		return err
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "redis session store: marshal")
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.sessionKey(cp.SessionID), raw, 0)
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(toMs(cp.UpdatedAt)), Member: cp.SessionID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis session store: save")
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, q ListQuery) ([]*capability.Checkpoint, error) {
	if ctx == nil {
		return nil, errors.New("redis session store: ctx is nil")
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis session store: list ids")
	}
	limit := limitOrDefault(q.Limit)
	out := []*capability.Checkpoint{}
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		cp, ok, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || (q.Status != "" && cp.Status != q.Status) {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisStore) Raise(ctx context.Context, t capability.Ticket) error {
	if ctx == nil {
		return errors.New("redis session store: ctx is nil")
	}
	if err := validateTicket("redis session store", t); err != nil {
		return err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "redis session store: marshal ticket")
	}
	if err := s.client.LPush(ctx, s.ticketsKey(), raw).Err(); err != nil {
		return errors.Wrap(err, "redis session store: push ticket")
	}
	return nil
}

func (s *RedisStore) Tickets(ctx context.Context, q TicketQuery) ([]capability.Ticket, error) {
	if ctx == nil {
		return nil, errors.New("redis session store: ctx is nil")
	}
	raws, err := s.client.LRange(ctx, s.ticketsKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis session store: list tickets")
	}
	limit := limitOrDefault(q.Limit)
	out := []capability.Ticket{}
	for _, raw := range raws {
		if len(out) >= limit {
			break
		}
		var t capability.Ticket
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, errors.Wrap(err, "redis session store: unmarshal ticket")
		}
		if ticketMatches(t, q) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
