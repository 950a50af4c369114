package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	// ErrUnmappedField is returned when a query references a field that has no mapping.
	ErrUnmappedField = errors.New("no field mapping can be found")
	// ErrInvalidMapping is returned by Build for inconsistent definitions.
	ErrInvalidMapping = errors.New("invalid mapping")
)

// Mapping is an immutable set of field definitions.
type Mapping struct {
	fields map[string]Field
	nested []string // sorted, longest first
}

// Field returns the definition of name.
func (m *Mapping) Field(name string) (Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Resolve returns the field for name. Unmapped fields are an error unless
// unmappedAsText is set, in which case they resolve as text fields.
func (m *Mapping) Resolve(name string, unmappedAsText bool) (Field, error) {
	if f, ok := m.fields[name]; ok && f.Type != Nested && f.Type != Object {
		return f, nil
	}
	if unmappedAsText {
		return Field{Name: name, Type: Text, Nested: m.NestedPathOf(name)}, nil
	}
	return Field{}, fmt.Errorf("%w for the field with name [%s]", ErrUnmappedField, name)
}

// Fields returns all leaf fields sorted by name.
func (m *Mapping) Fields() []Field {
	out := make([]Field, 0, len(m.fields))
	for _, f := range m.fields {
		if f.Type == Nested || f.Type == Object {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsNested reports whether path is a nested object path.
func (m *Mapping) IsNested(path string) bool {
	f, ok := m.fields[path]
	return ok && f.Type == Nested
}

// NestedPaths returns the nested object paths, longest first.
func (m *Mapping) NestedPaths() []string {
	return append([]string(nil), m.nested...)
}

// NestedPathOf returns the innermost nested path containing name, or "".
func (m *Mapping) NestedPathOf(name string) string {
	for _, p := range m.nested {
		if strings.HasPrefix(name, p+".") {
			return p
		}
	}
	return ""
}

// Builder accumulates field definitions. The zero value is not usable; call NewBuilder.
type Builder struct {
	fields map[string]Type
	errs   []error
}

// NewBuilder creates an empty mapping builder.
func NewBuilder() *Builder {
	return &Builder{fields: make(map[string]Type)}
}

// Add defines field name with type t. Names are dotted paths.
func (b *Builder) Add(name string, t Type) *Builder {
	switch {
	case name == "":
		b.errs = append(b.errs, fmt.Errorf("%w: empty field name", ErrInvalidMapping))
	case !t.Valid():
		b.errs = append(b.errs, fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidMapping, name, t))
	default:
		if prev, ok := b.fields[name]; ok && prev != t {
			b.errs = append(b.errs, fmt.Errorf("%w: field %q defined as both %s and %s", ErrInvalidMapping, name, prev, t))
			return b
		}
		b.fields[name] = t
	}
	return b
}

// Keyword defines a keyword field.
func (b *Builder) Keyword(name string) *Builder { return b.Add(name, Keyword) }

// Text defines a text field.
func (b *Builder) Text(name string) *Builder { return b.Add(name, Text) }

// Long defines a long field.
func (b *Builder) Long(name string) *Builder { return b.Add(name, Long) }

// Double defines a double field.
func (b *Builder) Double(name string) *Builder { return b.Add(name, Double) }

// Date defines a date field.
func (b *Builder) Date(name string) *Builder { return b.Add(name, Date) }

// IP defines an ip field.
func (b *Builder) IP(name string) *Builder { return b.Add(name, IP) }

// Boolean defines a boolean field.
func (b *Builder) Boolean(name string) *Builder { return b.Add(name, Boolean) }

// Nested defines a nested object path.
func (b *Builder) Nested(path string) *Builder { return b.Add(path, Nested) }

// Build validates the definitions and returns the immutable mapping.
func (b *Builder) Build() (*Mapping, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	m := &Mapping{fields: make(map[string]Field, len(b.fields))}
	for name, t := range b.fields {
		if t == Nested {
			m.nested = append(m.nested, name)
		}
	}
	sort.Slice(m.nested, func(i, j int) bool {
		if len(m.nested[i]) != len(m.nested[j]) {
			return len(m.nested[i]) > len(m.nested[j])
		}
		return m.nested[i] < m.nested[j]
	})

	for name, t := range b.fields {
		// A leaf field cannot also be an object path.
		if t != Nested && t != Object {
			for other, ot := range b.fields {
				if strings.HasPrefix(other, name+".") && ot != Nested && ot != Object {
					return nil, fmt.Errorf("%w: field %q of type %s has sub-field %q", ErrInvalidMapping, name, t, other)
				}
			}
		}
		f := Field{Name: name, Type: t}
		if t == Nested {
			f.Nested = name
		} else {
			f.Nested = m.NestedPathOf(name)
		}
		m.fields[name] = f
	}
	return m, nil
}

type mappingJSON struct {
	Type       string                 `json:"type"`
	Properties map[string]mappingJSON `json:"properties"`
}

// Parse reads an Elasticsearch-style mapping document:
//
//	{"properties": {"title": {"type": "text"}, "tags": {"type": "nested", "properties": {...}}}}
//
// An outer "mappings" object is accepted as well.
func Parse(data []byte) (*Mapping, error) {
	var wrapped struct {
		Mappings   *mappingJSON           `json:"mappings"`
		Properties map[string]mappingJSON `json:"properties"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMapping, err)
	}
	props := wrapped.Properties
	if wrapped.Mappings != nil {
		props = wrapped.Mappings.Properties
	}

	b := NewBuilder()
	addProperties(b, "", props)
	return b.Build()
}

func addProperties(b *Builder, prefix string, props map[string]mappingJSON) {
	for name, def := range props {
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		t := Type(def.Type)
		if t == "" {
			t = Object
		}
		b.Add(full, t)
		if len(def.Properties) > 0 {
			addProperties(b, full, def.Properties)
		}
	}
}
