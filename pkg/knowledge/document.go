// Package knowledge holds the support knowledge base: documents loaded from
// YAML or Markdown, their embeddings, and the cosine-ranked index the
// retrieve step searches.
package knowledge

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-go-golems/supportbot/pkg/support/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Document struct {
	ID     string   `yaml:"id,omitempty" json:"id"`
	Title  string   `yaml:"title" json:"title"`
	Body   string   `yaml:"body" json:"body"`
	Source string   `yaml:"source,omitempty" json:"source,omitempty"`
	Tags   []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Item is the view of the document handed to the workflow.
func (d Document) Item() conversation.Item {
	return conversation.Item{Title: d.Title, Body: d.Body}
}

// Text is what gets embedded.
func (d Document) Text() string {
	if d.Title == "" {
		return d.Body
	}
	return d.Title + "\n" + d.Body
}

var docNamespace = uuid.MustParse("6f1c1a0e-3c1b-4f43-9d0e-8f7d2b8f0a11")

// normalize trims fields and derives a stable ID from source and title so
// re-ingesting a file updates documents in place.
func (d Document) normalize() Document {
	d.Title = strings.TrimSpace(d.Title)
	d.Body = strings.TrimSpace(d.Body)
	d.Source = strings.TrimSpace(d.Source)
	if strings.TrimSpace(d.ID) == "" {
		key := d.Source + "#" + d.Title
		if d.Title == "" {
			key += "#" + d.Body
		}
		d.ID = uuid.NewSHA1(docNamespace, []byte(key)).String()
	}
	return d
}

type yamlFile struct {
	Documents []Document `yaml:"documents"`
}

// ParseYAML accepts either a top-level list of documents or a mapping with a
// documents key.
func ParseYAML(data []byte, source string) ([]Document, error) {
	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		var f yamlFile
		if err2 := yaml.Unmarshal(data, &f); err2 != nil {
			return nil, errors.Wrapf(err, "parse %s", source)
		}
		docs = f.Documents
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Source == "" {
			d.Source = source
		}
		d = d.normalize()
		if d.Body == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseMarkdown splits a file into one document per "## " section. Text before
// the first section becomes a document titled by the "# " heading, or the file
// name when there is none.
func ParseMarkdown(data []byte, source string) ([]Document, error) {
	title := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	var (
		out     []Document
		current = Document{Title: title, Source: source}
		body    strings.Builder
		inFence bool
	)
	flush := func() {
		current.Body = body.String()
		current = current.normalize()
		if current.Body != "" {
			out = append(out, current)
		}
		body.Reset()
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		switch {
		case !inFence && strings.HasPrefix(line, "# ") && len(out) == 0 && body.Len() == 0:
			current.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			continue
		case !inFence && strings.HasPrefix(line, "## "):
			flush()
			current = Document{Title: strings.TrimSpace(strings.TrimPrefix(line, "## ")), Source: source}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}
	flush()
	return out, nil
}

// LoadFile parses one knowledge file by extension.
func LoadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data, path)
	case ".md", ".markdown":
		return ParseMarkdown(data, path)
	default:
		return nil, errors.Errorf("unsupported knowledge file %s", path)
	}
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".md", ".markdown":
		return true
	}
	return false
}

// LoadPaths loads files and walks directories, skipping unsupported files
// found while walking.
func LoadPaths(paths ...string) ([]Document, error) {
	files := []string{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)

	out := []Document{}
	for _, f := range files {
		docs, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}
