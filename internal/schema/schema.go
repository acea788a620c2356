// Package schema loads the setting-definition document, validates its
// shape, caches it for a bounded time, and degrades to an embedded
// fallback document when loading or validation fails.
package schema

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Type is the value kind of one setting.
type Type string

const (
	// TypeBoolean holds true/false.
	TypeBoolean Type = "boolean"
	// TypeText holds a single-line string.
	TypeText Type = "text"
	// TypeLongText holds a multi-line string.
	TypeLongText Type = "longtext"
	// TypeNumber holds a finite numeric value.
	TypeNumber Type = "number"
	// TypeJSON holds an arbitrary serializable object.
	TypeJSON Type = "json"
	// TypeEnum holds one of a fixed set of string values.
	TypeEnum Type = "enum"
)

// Known reports whether t is one of the six recognized kinds.
func (t Type) Known() bool {
	switch t {
	case TypeBoolean, TypeText, TypeLongText, TypeNumber, TypeJSON, TypeEnum:
		return true
	default:
		return false
	}
}

// Definition is the schema-declared shape of one setting: its type,
// default value, constraints, and optional UI metadata. Immutable after
// load.
type Definition struct {
	Type        Type              `json:"type"`
	Value       any               `json:"value"`
	Description string            `json:"description"`
	DisplayName string            `json:"displayName,omitempty"`
	Category    string            `json:"category,omitempty"`
	Order       int               `json:"order,omitempty"`
	HelpText    string            `json:"helpText,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	MaxLength   *int              `json:"maxLength,omitempty"`
	Min         *float64          `json:"min,omitempty"`
	Max         *float64          `json:"max,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// Map is a validated schema document. It preserves the document's key
// order for category tie-breaking.
type Map struct {
	defs map[string]Definition
	keys []string
}

// Get returns the definition for key.
func (m Map) Get(key string) (Definition, bool) {
	d, ok := m.defs[key]
	return d, ok
}

// Has reports whether key is defined.
func (m Map) Has(key string) bool {
	_, ok := m.defs[key]
	return ok
}

// Keys returns every defined key in document order.
func (m Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of defined settings.
func (m Map) Len() int {
	return len(m.defs)
}

// Categories returns the distinct category names, sorted alphabetically.
// Settings without a category fall under the empty string.
func (m Map) Categories() []string {
	seen := make(map[string]struct{})

	for _, d := range m.defs {
		seen[d.Category] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}

	sort.Strings(out)

	return out
}

// Keyed couples a definition with its key for ordered listings.
type Keyed struct {
	Key        string
	Definition Definition
}

// CategorySettings returns the settings of one category sorted by Order
// ascending; ties keep the document order.
func (m Map) CategorySettings(category string) []Keyed {
	var out []Keyed

	for _, k := range m.keys {
		d := m.defs[k]
		if d.Category == category {
			out = append(out, Keyed{Key: k, Definition: d})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Definition.Order < out[j].Definition.Order
	})

	return out
}

// DisplayName returns the definition's display name, or derives one from
// the key: underscores become spaces and each word is capitalized.
func DisplayName(key string, def Definition) string {
	if def.DisplayName != "" {
		return def.DisplayName
	}

	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}

		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	return strings.Join(words, " ")
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (Map, error) {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return Map{}, errors.Wrap(ErrInvalidDocument, "schema document is not an object")
	}

	m := Map{defs: make(map[string]Definition, len(raw)), keys: documentKeyOrder(data)}

	for key, entry := range raw {
		var def Definition

		if err := json.Unmarshal(entry, &def); err != nil {
			return Map{}, errors.Wrapf(ErrInvalidDocument, "setting %q is not an object: %v", key, err)
		}

		if err := validateDefinition(key, def); err != nil {
			return Map{}, err
		}

		m.defs[key] = def
	}

	return m, nil
}

// documentKeyOrder walks the top-level object tokens to recover the key
// order json.Unmarshal discards. Duplicate keys keep their first
// position only, matching the single entry the decoded map holds.
func documentKeyOrder(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))

	if _, err := dec.Token(); err != nil { // opening brace
		return nil
	}

	var keys []string
	seen := make(map[string]struct{})

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}

		key, ok := tok.(string)
		if !ok {
			return keys
		}

		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}

	return keys
}

func validateDefinition(key string, def Definition) error {
	if def.Type == "" {
		return errors.Wrapf(ErrInvalidDocument, "setting %q is missing type", key)
	}

	if !def.Type.Known() {
		return errors.Wrapf(ErrInvalidDocument, "setting %q has unrecognized type %q", key, def.Type)
	}

	if def.Value == nil {
		return errors.Wrapf(ErrInvalidDocument, "setting %q is missing value", key)
	}

	if def.Description == "" {
		return errors.Wrapf(ErrInvalidDocument, "setting %q is missing description", key)
	}

	switch def.Type {
	case TypeEnum:
		return validateEnumDefinition(key, def)
	case TypeNumber:
		return validateNumberDefinition(key, def)
	default:
		return nil
	}
}

func validateEnumDefinition(key string, def Definition) error {
	if len(def.Options) == 0 {
		return errors.Wrapf(ErrInvalidDocument, "enum setting %q has no options", key)
	}

	value, ok := def.Value.(string)
	if !ok {
		return errors.Wrapf(ErrInvalidDocument, "enum setting %q default value must be a string", key)
	}

	if _, ok := def.Options[value]; !ok {
		return errors.Wrapf(ErrInvalidDocument, "enum setting %q default %q is not an option", key, value)
	}

	return nil
}

func validateNumberDefinition(key string, def Definition) error {
	value, ok := def.Value.(float64)
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.Wrapf(ErrInvalidDocument, "number setting %q default is not numeric", key)
	}

	if def.Min != nil && value < *def.Min {
		return errors.Wrapf(ErrInvalidDocument, "number setting %q default %v is below min %v", key, value, *def.Min)
	}

	if def.Max != nil && value > *def.Max {
		return errors.Wrapf(ErrInvalidDocument, "number setting %q default %v is above max %v", key, value, *def.Max)
	}

	return nil
}
