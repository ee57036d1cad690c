package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Namespace string

const (
	Profiles         Namespace = "profiles"
	CodebaseAnalyses Namespace = "codebase_analyses"
	StudyPlans       Namespace = "study_plans"
)

// Entry is one stored document as raw JSON.
type Entry struct {
	Key      string
	Document json.RawMessage
}

// Decode unmarshals the entry's document into out.
func (e Entry) Decode(out any) error {
	if err := json.Unmarshal(e.Document, out); err != nil {
		return fmt.Errorf("failed to decode document %q: %w", e.Key, err)
	}
	return nil
}

// ContentStore persists whole JSON documents under a namespace and key. Every read reflects
// the latest durable state and writes replace documents atomically.
type ContentStore interface {
	// Put writes doc under (ns, key), replacing any existing document.
	Put(ctx context.Context, ns Namespace, key string, doc any) error
	// Get decodes the document at (ns, key) into out. Missing documents yield *NotFoundError.
	Get(ctx context.Context, ns Namespace, key string, out any) error
	// List returns every document in ns ordered by key.
	List(ctx context.Context, ns Namespace) ([]Entry, error)
	// FindByField returns the first document in ns whose field equals value. It scans the
	// namespace; callers must not assume an index.
	FindByField(ctx context.Context, ns Namespace, field, value string) (*Entry, error)
	// Name identifies the backend in health output.
	Name() string
	Close() error
}

type NotFoundError struct {
	Namespace Namespace
	Key       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %s/%s not found", e.Namespace, e.Key)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidateKey rejects keys that cannot be used as a single path or object name segment.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("empty document key")
	case key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0):
		return fmt.Errorf("invalid document key %q", key)
	}
	return nil
}

func validateNamespace(ns Namespace) error {
	switch ns {
	case Profiles, CodebaseAnalyses, StudyPlans:
		return nil
	}
	return fmt.Errorf("unknown namespace %q", ns)
}

// findByField scans entries in order for the first document whose field equals value.
// Field may be a dotted path into nested objects.
func findByField(entries []Entry, field, value string) *Entry {
	path := strings.Split(field, ".")
	for i := range entries {
		var doc map[string]any
		if err := json.Unmarshal(entries[i].Document, &doc); err != nil {
			continue
		}
		if v, ok := lookup(doc, path); ok && v == value {
			return &entries[i]
		}
	}
	return nil
}

func lookup(doc map[string]any, path []string) (string, bool) {
	var cur any = doc
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[p]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
