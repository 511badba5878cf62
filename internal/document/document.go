// Package document defines the path-addressed document store the discussion
// core is written against, plus the field transforms shared by every backend.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

// Fields is the body of a document. Values must be JSON encodable, or one of
// the transform sentinels below.
type Fields map[string]any

// Snapshot is a document read from the store.
type Snapshot struct {
	ID         string
	Path       string
	Data       Fields
	CreateTime time.Time
	UpdateTime time.Time
}

// DataTo decodes the document body into v.
func (s *Snapshot) DataTo(v any) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return nil
}

// Store is a path-addressed document store. Collections are implicit: a
// document lives in the collection named by its path minus the last segment.
// Deleting a document never touches documents nested under it.
type Store interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	// Set creates or overwrites the document at path.
	Set(ctx context.Context, path string, data Fields) error
	// Add creates a document with a generated id inside collection.
	Add(ctx context.Context, collection string, data Fields) (string, error)
	// Update merges updates into an existing document.
	Update(ctx context.Context, path string, updates Fields) error
	Delete(ctx context.Context, path string) error
	// List returns the documents of a collection ordered by creation time.
	List(ctx context.Context, collection string) ([]*Snapshot, error)
	Count(ctx context.Context, collection string) (int, error)
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when written.
var ServerTimestamp = serverTimestamp{}

type arrayUnion struct{ values []string }
type arrayRemove struct{ values []string }
type increment struct{ delta int }

// ArrayUnion adds the values to a string-set field.
func ArrayUnion(values ...string) any { return arrayUnion{values: values} }

// ArrayRemove removes the values from a string-set field.
func ArrayRemove(values ...string) any { return arrayRemove{values: values} }

// Increment adds delta to a numeric field, treating a missing field as 0.
func Increment(delta int) any { return increment{delta: delta} }

// Join builds a path out of a collection and a document id.
func Join(collection, id string) string {
	return collection + "/" + id
}

// Split returns the collection and the id of a document path.
func Split(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Apply merges updates into base and resolves transform sentinels. base is not
// modified; the result is normalized to plain JSON values.
func Apply(base, updates Fields, now time.Time) (Fields, error) {
	out := make(Fields, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		switch t := v.(type) {
		case serverTimestamp:
			out[k] = now.UTC()
		case arrayUnion:
			set := stringSet(out[k])
			for _, value := range t.values {
				if !contains(set, value) {
					set = append(set, value)
				}
			}
			out[k] = set
		case arrayRemove:
			set := stringSet(out[k])
			kept := set[:0]
			for _, value := range set {
				if !contains(t.values, value) {
					kept = append(kept, value)
				}
			}
			out[k] = kept
		case increment:
			out[k] = number(out[k]) + float64(t.delta)
		default:
			out[k] = v
		}
	}
	return Normalize(out)
}

// Normalize round-trips fields through JSON so every backend hands out the
// same value shapes.
func Normalize(data Fields) (Fields, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if out == nil {
		out = Fields{}
	}
	return out, nil
}

// Encode resolves sentinels of a fresh document and returns its JSON body.
func Encode(data Fields, now time.Time) ([]byte, Fields, error) {
	fields, err := Apply(nil, data, now)
	if err != nil {
		return nil, nil, err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	return raw, fields, nil
}

// Decode parses a JSON body stored by Encode.
func Decode(raw []byte) (Fields, error) {
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if out == nil {
		out = Fields{}
	}
	return out, nil
}

func stringSet(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && !contains(out, s) {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func contains(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
