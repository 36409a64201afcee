// Package storage holds the persistence backends: the remote document
// store (SQLite or Redis) and the local chart snapshot cache.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("storage: document not found")

// Document is one entry of a collection listing.
type Document struct {
	ID   string
	Data []byte
}

// DocumentStore is a JSON document database keyed by collection and id.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Set(ctx context.Context, collection, id string, data []byte) error
	// List returns every document in collection ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)
	// ArrayUnion adds values to the array field, creating the document
	// if needed. Values already present are not duplicated.
	ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error
	// ArrayRemove removes values from the array field. Removing from a
	// missing document is a no-op.
	ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error
	Close() error
}

// unionField rewrites body so that field contains every value exactly once.
// A nil body starts a new document.
func unionField(body []byte, field string, values []string) ([]byte, error) {
	doc, current, err := decodeArrayField(body, field)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(current)+len(values))
	out := make([]string, 0, len(current)+len(values))
	for _, v := range append(current, values...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	doc[field] = out
	return json.Marshal(doc)
}

// removeField rewrites body with values dropped from field.
func removeField(body []byte, field string, values []string) ([]byte, error) {
	doc, current, err := decodeArrayField(body, field)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(values))
	for _, v := range values {
		drop[v] = struct{}{}
	}
	out := make([]string, 0, len(current))
	for _, v := range current {
		if _, ok := drop[v]; !ok {
			out = append(out, v)
		}
	}

	doc[field] = out
	return json.Marshal(doc)
}

func decodeArrayField(body []byte, field string) (map[string]any, []string, error) {
	doc := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, nil, fmt.Errorf("decode document: %w", err)
		}
	}

	raw, ok := doc[field]
	if !ok || raw == nil {
		return doc, nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("field %q is not an array", field)
	}

	current := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, nil, fmt.Errorf("field %q holds a non-string element", field)
		}
		current = append(current, s)
	}
	return doc, current, nil
}
