package store

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ExportVersion is written into every exported document.
const ExportVersion = "1.0"

// Document is the export format: version, an ISO-8601 timestamp, and the
// full record set. Import accepts the same shape; only Settings is
// required there.
type Document struct {
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Settings  map[string]Record `json:"settings" validate:"required"`
}

// importDocument mirrors Document with raw entries, so malformed entries
// skip individually instead of failing the whole parse.
type importDocument struct {
	Version   string                     `json:"version"`
	Timestamp string                     `json:"timestamp"`
	Settings  map[string]json.RawMessage `json:"settings" validate:"required"`
}

// importEntry is the part of an incoming record import cares about; the
// definition always comes from the current schema, never the document.
type importEntry struct {
	Value any `json:"value"`
}

// ImportResult reports what an import kept and what it skipped.
type ImportResult struct {
	TotalImported int               `json:"totalImported"`
	Keys          []string          `json:"keys"`
	Skipped       map[string]string `json:"skipped,omitempty"`
}

var docValidator = validator.New() //nolint:gochecknoglobals

func parseImportDocument(data []byte) (importDocument, error) {
	var doc importDocument

	if err := json.Unmarshal(data, &doc); err != nil {
		return importDocument{}, errors.Wrapf(ErrInvalidImport, "parse failed: %v", err)
	}

	if err := docValidator.Struct(doc); err != nil {
		return importDocument{}, errors.Wrapf(ErrInvalidImport, "missing settings field: %v", err)
	}

	return doc, nil
}
