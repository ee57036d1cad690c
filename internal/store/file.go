package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gwi.com/onboarding-backend/internal/platform/logger"
)

const fileExt = ".json"

// FileStore keeps each document in <root>/<namespace>/<key>.json.
type FileStore struct {
	root string
	log  *logger.Logger
}

func NewFileStore(root string, log *logger.Logger) (*FileStore, error) {
	for _, ns := range []Namespace{Profiles, CodebaseAnalyses, StudyPlans} {
		if err := os.MkdirAll(filepath.Join(root, string(ns)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return &FileStore{root: root, log: log.With("service", "FileStore")}, nil
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(ns Namespace, key string) string {
	return filepath.Join(s.root, string(ns), key+fileExt)
}

// Put writes to a temporary file in the target directory and renames it into place, so
// concurrent readers see either the previous document or the new one.
func (s *FileStore) Put(ctx context.Context, ns Namespace, key string, doc any) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", ns, key, err)
	}

	dir := filepath.Join(s.root, string(ns))
	tmp, err := os.CreateTemp(dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write document %s/%s: %w", ns, key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync document %s/%s: %w", ns, key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close document %s/%s: %w", ns, key, err)
	}
	if err := os.Rename(tmpName, s.path(ns, key)); err != nil {
		cleanup()
		return fmt.Errorf("failed to publish document %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, ns Namespace, key string, out any) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return &NotFoundError{Namespace: ns, Key: key}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path(ns, key))
	if errors.Is(err, os.ErrNotExist) {
		return &NotFoundError{Namespace: ns, Key: key}
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s/%s: %w", ns, key, err)
	}
	return Entry{Key: key, Document: data}.Decode(out)
}

func (s *FileStore) List(ctx context.Context, ns Namespace) ([]Entry, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, string(ns))
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", ns, err)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := f.Name()
		if f.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			// Removed between ReadDir and ReadFile, or unreadable.
			s.log.Warn("skipping unreadable document", "namespace", ns, "file", name, "error", err)
			continue
		}
		if !json.Valid(data) {
			s.log.Warn("skipping corrupt document", "namespace", ns, "file", name)
			continue
		}
		entries = append(entries, Entry{Key: strings.TrimSuffix(name, fileExt), Document: data})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *FileStore) FindByField(ctx context.Context, ns Namespace, field, value string) (*Entry, error) {
	entries, err := s.List(ctx, ns)
	if err != nil {
		return nil, err
	}
	return findByField(entries, field, value), nil
}
