package sessionstore

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const SectionSlug = "store"

// Settings selects and configures the session store backend.
type Settings struct {
	Driver      string `glazed:"store-driver"`
	DB          string `glazed:"store-db"`
	RedisAddr   string `glazed:"store-redis-addr"`
	RedisPrefix string `glazed:"store-redis-prefix"`
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Session store configuration",
		schema.WithFields(
			fields.New("store-driver", fields.TypeChoice,
				fields.WithChoices("sqlite", "memory", "redis"),
				fields.WithDefault("sqlite"),
				fields.WithHelp("Session store backend")),
			fields.New("store-db", fields.TypeString,
				fields.WithDefault("supportbot.db"),
				fields.WithHelp("SQLite database file for sessions and escalation tickets")),
			fields.New("store-redis-addr", fields.TypeString,
				fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address when store-driver=redis")),
			fields.New("store-redis-prefix", fields.TypeString,
				fields.WithDefault(DefaultRedisPrefix),
				fields.WithHelp("Key prefix for Redis session keys")),
		),
	)
}

// Open builds the store named by s.Driver.
func Open(s Settings) (Store, error) {
	switch s.Driver {
	case "", "sqlite":
		dsn, err := SQLiteDSNForFile(s.DB)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case "memory":
		return NewInMemoryStore(), nil
	case "redis":
		return NewRedisStore(redis.NewClient(&redis.Options{Addr: s.RedisAddr}), s.RedisPrefix)
	default:
		return nil, errors.Errorf("unknown session store driver %q", s.Driver)
	}
}
