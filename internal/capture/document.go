package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

// Document is one parsed analyzer result: a JSON tree kept both as raw
// bytes (for path navigation) and as a decoded Go value (for deep
// comparison). The harness never interprets the tree's shape; that is
// the caller's business.
type Document struct {
	raw   []byte
	value any
}

// ParseDocument validates raw as exactly one JSON document. A zero exit
// code with unparsable stdout means the analyzer misbehaved, so the
// error carries the json package's own message to point at the problem.
func ParseDocument(raw []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty output: expected one JSON document")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Anything after the first document breaks the one-document contract,
	// whether or not it happens to be valid JSON itself.
	switch err := dec.Decode(new(any)); {
	case err == nil:
		return nil, errors.New("trailing data after JSON document")
	case !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("trailing data after JSON document: %w", err)
	}

	return &Document{raw: trimmed, value: v}, nil
}

// Get navigates the document by gjson path, e.g. "issues.0.severity".
func (d *Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d.raw, path)
}

// Value returns the decoded Go value: map[string]any for objects,
// []any for arrays, and the usual scalar mappings.
func (d *Document) Value() any {
	return d.value
}

// Raw returns the document's raw bytes. Callers must not modify them.
func (d *Document) Raw() []byte {
	return d.raw
}

// Len returns the size of the raw document in bytes.
func (d *Document) Len() int {
	return len(d.raw)
}
