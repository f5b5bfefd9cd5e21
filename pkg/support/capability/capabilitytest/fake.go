// Package capabilitytest provides a scripted, deterministic implementation of
// every capability port for tests.
package capabilitytest

import (
	"context"
	"sync"

	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/pkg/errors"
)

// ExtractFunc answers one extraction call.
type ExtractFunc func(p capability.Prompt) (map[string]any, error)

// Fake implements Generator, Extractor, Searcher and TicketQueue. Extraction
// responses are scripted per schema name and coerced like a real extractor.
type Fake struct {
	mu sync.Mutex

	extract   map[string]ExtractFunc
	answer    func(p capability.Prompt) (string, error)
	items     []conversation.Item
	searchErr error
	raiseErr  error

	calls   []string
	queries []string
	ks      []int
	tickets []capability.Ticket
}

var (
	_ capability.Generator   = &Fake{}
	_ capability.Extractor   = &Fake{}
	_ capability.Searcher    = &Fake{}
	_ capability.TicketQueue = &Fake{}
)

func New() *Fake {
	return &Fake{extract: map[string]ExtractFunc{}}
}

// OnExtract makes every call for schema return raw.
func (f *Fake) OnExtract(schema string, raw map[string]any) *Fake {
	return f.OnExtractFunc(schema, func(capability.Prompt) (map[string]any, error) { return raw, nil })
}

func (f *Fake) OnExtractErr(schema string, err error) *Fake {
	return f.OnExtractFunc(schema, func(capability.Prompt) (map[string]any, error) { return nil, err })
}

func (f *Fake) OnExtractFunc(schema string, fn ExtractFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extract[schema] = fn
	return f
}

func (f *Fake) OnGenerate(fn func(p capability.Prompt) (string, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = fn
	return f
}

func (f *Fake) WithItems(items ...conversation.Item) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
	return f
}

func (f *Fake) WithSearchError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchErr = err
	return f
}

func (f *Fake) WithRaiseError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raiseErr = err
	return f
}

func (f *Fake) ExtractStructured(_ context.Context, p capability.Prompt, s capability.Schema) (capability.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, s.Name)
	fn, ok := f.extract[s.Name]
	f.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("capabilitytest: no scripted response for %s", s.Name)
	}
	raw, err := fn(p)
	if err != nil {
		return nil, err
	}
	return s.Coerce(raw)
}

func (f *Fake) Generate(_ context.Context, p capability.Prompt) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "generate")
	fn := f.answer
	f.mu.Unlock()
	if fn == nil {
		return "", errors.New("capabilitytest: no scripted generation")
	}
	return fn(p)
}

func (f *Fake) Search(_ context.Context, query string, k int) ([]conversation.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "search")
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k <= 0 {
		k = capability.DefaultSearchK
	}
	n := len(f.items)
	if n > k {
		n = k
	}
	return append([]conversation.Item(nil), f.items[:n]...), nil
}

func (f *Fake) Raise(_ context.Context, t capability.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "raise")
	if f.raiseErr != nil {
		return f.raiseErr
	}
	f.tickets = append(f.tickets, t)
	return nil
}

// Calls returns the call log: schema names, "generate", "search", "raise".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) Count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *Fake) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *Fake) Ks() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.ks...)
}

func (f *Fake) Tickets() []capability.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capability.Ticket(nil), f.tickets...)
}
