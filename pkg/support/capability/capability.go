// Package capability declares the collaborators the support workflow consumes:
// text generation, schema-constrained extraction, knowledge search, checkpoint
// storage and the human escalation queue. The workflow never constructs these
// itself; they are injected at process start.
package capability

import (
	"context"
	"time"

	"github.com/go-go-golems/supportbot/pkg/support/conversation"
)

// DefaultSearchK is the number of knowledge items retrieved when a caller
// does not ask for a specific count.
const DefaultSearchK = 3

// Prompt is a rendered system/user prompt pair.
type Prompt struct {
	System string
	User   string
}

// Generator produces free-form text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Extractor produces a record constrained to schema s. Output that cannot be
// coerced to the schema fails with ErrSchemaViolation.
type Extractor interface {
	ExtractStructured(ctx context.Context, p Prompt, s Schema) (Record, error)
}

// Searcher runs a nearest-neighbour lookup over the knowledge base. Results are
// ordered best first. k <= 0 means DefaultSearchK.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]conversation.Item, error)
}

// CheckpointStatus tells whether a persisted run is waiting for the user or finished.
type CheckpointStatus string

const (
	StatusRunning   CheckpointStatus = "running"
	StatusSuspended CheckpointStatus = "suspended"
	StatusCompleted CheckpointStatus = "completed"
)

// Checkpoint is the persisted record of one session: the full conversation
// state plus the graph position the next run resumes from.
type Checkpoint struct {
	SessionID string             `json:"session_id"`
	State     conversation.State `json:"state"`
	Position  string             `json:"position"`
	Status    CheckpointStatus   `json:"status"`
	Runs      int                `json:"runs"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = *c.State.Clone()
	return &out
}

// Checkpointer is a durable store keyed by session id. Load on an unknown id
// returns (nil, false, nil).
type Checkpointer interface {
	Load(ctx context.Context, sessionID string) (*Checkpoint, bool, error)
	Save(ctx context.Context, cp *Checkpoint) error
}

// Ticket is a query handed over to the human support queue.
type Ticket struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Priority    string    `json:"priority"`
	Description string    `json:"description"`
	Transcript  string    `json:"transcript"`
	CreatedAt   time.Time `json:"created_at"`
}

// TicketQueue receives escalated queries.
type TicketQueue interface {
	Raise(ctx context.Context, t Ticket) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, p Prompt, s Schema) (Record, error)

func (f ExtractorFunc) ExtractStructured(ctx context.Context, p Prompt, s Schema) (Record, error) {
	return f(ctx, p, s)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, k int) ([]conversation.Item, error)

func (f SearcherFunc) Search(ctx context.Context, query string, k int) ([]conversation.Item, error) {
	return f(ctx, query, k)
}

// TicketQueueFunc adapts a function to TicketQueue.
type TicketQueueFunc func(ctx context.Context, t Ticket) error

func (f TicketQueueFunc) Raise(ctx context.Context, t Ticket) error {
	return f(ctx, t)
}
