package store

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/prefstore/prefstore/internal/schema"
)

// validateValue checks a caller-supplied value against its definition's
// type and constraints. Shared by the update and import paths. Unknown
// definition types are rejected at schema load and never reach here.
func validateValue(key string, def schema.Definition, value any) error {
	switch def.Type {
	case schema.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return errors.Wrapf(ErrInvalidValue, "setting %q requires a boolean value", key)
		}

		return nil
	case schema.TypeText, schema.TypeLongText:
		return validateText(key, def, value)
	case schema.TypeNumber:
		return validateNumber(key, def, value)
	case schema.TypeJSON:
		return validateJSON(key, value)
	case schema.TypeEnum:
		return validateEnum(key, def, value)
	default:
		return errors.Wrapf(ErrInvalidValue, "setting %q has unvalidatable type %q", key, def.Type)
	}
}

func validateText(key string, def schema.Definition, value any) error {
	s, ok := value.(string)
	if !ok {
		return errors.Wrapf(ErrInvalidValue, "setting %q requires a string value", key)
	}

	// Length is counted in characters, not bytes, so multi-byte input
	// is not penalized.
	if def.MaxLength != nil && utf8.RuneCountInString(s) > *def.MaxLength {
		return errors.Wrapf(ErrInvalidValue,
			"value for %q exceeds maximum length %d", key, *def.MaxLength)
	}

	return nil
}

func validateNumber(key string, def schema.Definition, value any) error {
	n, ok := toFloat(value)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return errors.Wrapf(ErrInvalidValue, "setting %q requires a finite numeric value", key)
	}

	if def.Min != nil && n < *def.Min {
		return errors.Wrapf(ErrInvalidValue,
			"value %v for %q is below minimum %v", n, key, *def.Min)
	}

	if def.Max != nil && n > *def.Max {
		return errors.Wrapf(ErrInvalidValue,
			"value %v for %q is above maximum %v", n, key, *def.Max)
	}

	return nil
}

// validateJSON requires a non-null object whose value survives a JSON
// round trip; circular references are rejected by the marshal step.
func validateJSON(key string, value any) error {
	if value == nil {
		return errors.Wrapf(ErrInvalidValue, "setting %q requires a non-null object", key)
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return errors.Wrapf(ErrInvalidValue, "setting %q requires a non-null object", key)
		}

		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Map && rv.Kind() != reflect.Struct {
		return errors.Wrapf(ErrInvalidValue, "setting %q requires an object value", key)
	}

	if _, err := json.Marshal(value); err != nil {
		return errors.Wrapf(ErrInvalidValue, "value for %q is not serializable: %v", key, err)
	}

	return nil
}

func validateEnum(key string, def schema.Definition, value any) error {
	s, ok := value.(string)
	if !ok {
		return errors.Wrapf(ErrInvalidValue, "setting %q requires a string value", key)
	}

	if _, ok := def.Options[s]; !ok {
		return errors.Wrapf(ErrInvalidValue,
			"invalid value %q for %q, valid options: %s", s, key, optionKeys(def.Options))
	}

	return nil
}

func optionKeys(options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return strings.Join(keys, ", ")
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
