package capability

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type FieldType string

const (
	FieldBool     FieldType = "boolean"
	FieldString   FieldType = "string"
	FieldEnum     FieldType = "enum"
	FieldIntegers FieldType = "integers"
)

// Field is one property of an extraction schema. Required string fields must
// be non-empty.
type Field struct {
	Name        string
	Description string
	Type        FieldType
	Values      []string
	Optional    bool
}

// Schema declares the record an Extractor must produce.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// Record is a coerced extraction result.
type Record map[string]any

func (r Record) Bool(name string) bool {
	v, _ := r[name].(bool)
	return v
}

func (r Record) String(name string) string {
	v, _ := r[name].(string)
	return v
}

func (r Record) Ints(name string) []int {
	v, _ := r[name].([]int)
	return v
}

func violation(s Schema, format string, args ...interface{}) error {
	return errors.Wrapf(ErrSchemaViolation, "%s: %s", s.Name, fmt.Sprintf(format, args...))
}

// Coerce checks raw against the schema and converts loosely typed values
// ("true", "High", "2") into their declared types. Unknown keys are dropped.
func (s Schema) Coerce(raw map[string]any) (Record, error) {
	out := Record{}
	for _, f := range s.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			if f.Optional {
				continue
			}
			return nil, violation(s, "missing field %q", f.Name)
		}
		cv, err := coerceField(f, v)
		if err != nil {
			return nil, violation(s, "field %q: %s", f.Name, err.Error())
		}
		out[f.Name] = cv
	}
	return out, nil
}

func coerceField(f Field, v any) (any, error) {
	switch f.Type {
	case FieldBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case float64:
			if x == 0 || x == 1 {
				return x == 1, nil
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "yes", "1":
				return true, nil
			case "false", "no", "0":
				return false, nil
			}
		}
		return nil, fmt.Errorf("cannot coerce %v to boolean", v)
	case FieldString:
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case float64, bool:
			s = fmt.Sprint(x)
		default:
			return nil, fmt.Errorf("cannot coerce %T to string", v)
		}
		s = strings.TrimSpace(s)
		if s == "" && !f.Optional {
			return nil, fmt.Errorf("empty string")
		}
		return s, nil
	case FieldEnum:
		x, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %T to enum", v)
		}
		for _, allowed := range f.Values {
			if strings.EqualFold(strings.TrimSpace(x), allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %s", x, strings.Join(f.Values, ", "))
	case FieldIntegers:
		return coerceInts(v)
	default:
		return nil, fmt.Errorf("unknown field type %q", f.Type)
	}
}

func coerceInts(v any) ([]int, error) {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case float64, int:
		items = []any{x}
	case string:
		for _, part := range strings.FieldsFunc(x, func(r rune) bool { return r == ',' || r == ' ' }) {
			items = append(items, part)
		}
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer list", v)
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		switch n := it.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			out = append(out, int(n))
		case int:
			out = append(out, n)
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", n)
			}
			out = append(out, i)
		default:
			return nil, fmt.Errorf("cannot coerce %T to integer", it)
		}
	}
	return out, nil
}

// ParseRecord pulls the first JSON object out of model text, tolerating
// surrounding prose and markdown fences, and coerces it to s.
func ParseRecord(s Schema, text string) (Record, error) {
	t := strings.TrimSpace(text)
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end < start {
		return nil, violation(s, "output is not a JSON object")
	}
	raw := map[string]any{}
	if err := json.Unmarshal([]byte(t[start:end+1]), &raw); err != nil {
		return nil, violation(s, "unmarshal output: %s", err.Error())
	}
	return s.Coerce(raw)
}

// Instructions renders the output format appended to extraction prompts.
func (s Schema) Instructions() string {
	props := map[string]any{}
	required := []string{}
	for _, f := range s.Fields {
		p := map[string]any{"description": f.Description}
		switch f.Type {
		case FieldEnum:
			p["type"] = "string"
			p["enum"] = f.Values
		case FieldIntegers:
			p["type"] = "array"
			p["items"] = map[string]string{"type": "integer"}
		default:
			p["type"] = string(f.Type)
		}
		props[f.Name] = p
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"title":      s.Name,
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return "Respond with a single JSON object that conforms to the JSON schema below. " +
		"Output only the JSON object, with no prose and no markdown fences.\n" + string(b)
}
