// Package prompts holds the templates used by the support steps. The
// built-in set is embedded; a YAML file can override individual entries.
package prompts

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/go-go-golems/glazed/pkg/helpers/templating"
	"github.com/go-go-golems/supportbot/pkg/support/capability"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	Sufficiency = "sufficiency"
	Followup    = "followup"
	Describe    = "describe"
	Refine      = "refine"
	Relevance   = "relevance"
	Answer      = "answer"
	Escalation  = "escalation"
	Summary     = "summary"
)

var required = []string{Sufficiency, Followup, Describe, Refine, Relevance, Answer, Escalation, Summary}

//go:embed prompts.yaml
var defaultPrompts []byte

// Template is one system/user pair as written in YAML.
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Data is the value every template is executed against.
type Data struct {
	Brand             string
	Question          string
	Conversation      string
	Description       string
	Context           string
	Items             string
	EscalationMessage string
	Summary           string
	MaxSummaryTokens  int
	Format            string
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

type Set struct {
	compiled map[string]compiled
}

// Default returns the embedded prompt set.
func Default() (*Set, error) {
	return build(nil)
}

// LoadFile returns the embedded set with entries from path replacing the
// built-in ones of the same name.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open prompts file")
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func Load(r io.Reader) (*Set, error) {
	overrides := map[string]Template{}
	if err := yaml.NewDecoder(r).Decode(&overrides); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode prompts")
	}
	return build(overrides)
}

func build(overrides map[string]Template) (*Set, error) {
	base := map[string]Template{}
	if err := yaml.Unmarshal(defaultPrompts, &base); err != nil {
		return nil, errors.Wrap(err, "decode embedded prompts")
	}
	for k, v := range overrides {
		b := base[k]
		if strings.TrimSpace(v.System) != "" {
			b.System = v.System
		}
		if strings.TrimSpace(v.User) != "" {
			b.User = v.User
		}
		base[k] = b
	}

	s := &Set{compiled: map[string]compiled{}}
	for _, name := range required {
		if _, ok := base[name]; !ok {
			return nil, errors.Errorf("prompt %q is not defined", name)
		}
	}
	names := make([]string, 0, len(base))
	for k := range base {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		t := base[name]
		sys, err := templating.CreateTemplate(name + "-system").Parse(t.System)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s system prompt", name)
		}
		usr, err := templating.CreateTemplate(name + "-user").Parse(t.User)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s user prompt", name)
		}
		s.compiled[name] = compiled{system: sys, user: usr}
	}
	return s, nil
}

// Render executes the named template pair.
func (s *Set) Render(name string, data Data) (capability.Prompt, error) {
	c, ok := s.compiled[name]
	if !ok {
		return capability.Prompt{}, errors.Errorf("unknown prompt %q", name)
	}
	var sys, usr bytes.Buffer
	if err := c.system.Execute(&sys, data); err != nil {
		return capability.Prompt{}, errors.Wrapf(err, "render %s system prompt", name)
	}
	if err := c.user.Execute(&usr, data); err != nil {
		return capability.Prompt{}, errors.Wrapf(err, "render %s user prompt", name)
	}
	return capability.Prompt{
		System: strings.TrimSpace(sys.String()),
		User:   strings.TrimSpace(usr.String()),
	}, nil
}
