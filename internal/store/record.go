package store

import (
	"encoding/json"

	"github.com/prefstore/prefstore/internal/schema"
)

// Record couples a setting's current value with the full definition it
// was created from, so validation metadata travels with every read.
type Record struct {
	Key        string            `json:"key"`
	Value      any               `json:"value"`
	Definition schema.Definition `json:"definition"`
}

// copyRecord returns a defensive copy; composite values and definition
// maps are duplicated so callers can never corrupt store state.
func copyRecord(rec Record) Record {
	rec.Value = copyValue(rec.Value)
	rec.Definition = copyDefinition(rec.Definition)

	return rec
}

// copyValue duplicates composite values through a JSON round trip.
// Primitives are immutable and returned as-is. Values reach this point
// validated, so a marshal failure cannot occur after an update; the
// original is returned if it somehow does.
func copyValue(v any) any {
	switch v.(type) {
	case nil, bool, string, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return v
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}

	return out
}

func copyDefinition(def schema.Definition) schema.Definition {
	if def.MaxLength != nil {
		v := *def.MaxLength
		def.MaxLength = &v
	}

	if def.Min != nil {
		v := *def.Min
		def.Min = &v
	}

	if def.Max != nil {
		v := *def.Max
		def.Max = &v
	}

	if def.Options != nil {
		opts := make(map[string]string, len(def.Options))
		for k, v := range def.Options {
			opts[k] = v
		}

		def.Options = opts
	}

	return def
}
