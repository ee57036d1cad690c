// Package codebase reads a repository checkout into a Snapshot: the source files worth
// showing to a model, their imports and declarations, and the dependency graph between them.
package codebase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"gwi.com/onboarding-backend/internal/platform/logger"
)

var (
	DefaultInclude = []string{"*.go", "*.py", "*.js", "*.ts", "*.jsx", "*.tsx", "*.java", "*.rb", "*.rs", "README*"}
	DefaultExclude = []string{"**/node_modules/**", "**/vendor/**", "**/__pycache__/**", "**/.git/**", "**/dist/**", "**/build/**", "*.min.js"}
)

const (
	DefaultMaxFileBytes = 100_000
	DefaultMaxFiles     = 500
)

var ErrLocalDisabled = errors.New("local repository paths are disabled")

type Options struct {
	// Include and Exclude are doublestar globs. A pattern without a slash matches the base name
	// at any depth. Exclude wins.
	Include      []string
	Exclude      []string
	MaxFileBytes int64
	MaxFiles     int
	GitHubToken  string
	AllowLocal   bool
}

func (o Options) withDefaults() Options {
	if len(o.Include) == 0 {
		o.Include = DefaultInclude
	}
	if o.Exclude == nil {
		o.Exclude = DefaultExclude
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = DefaultMaxFileBytes
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxFiles
	}
	return o
}

// cloneFunc checks out url into dir and returns the commit it checked out.
type cloneFunc func(ctx context.Context, url, dir, token string) (string, error)

type Reader struct {
	opts  Options
	clone cloneFunc
	log   *logger.Logger
}

func NewReader(opts Options, log *logger.Logger) *Reader {
	return &Reader{opts: opts.withDefaults(), clone: shallowClone, log: log.With("component", "codebase.Reader")}
}

// Read clones repoURL into a temporary directory, or reads it in place when it names a local
// directory and local paths are allowed, and builds its snapshot. The clone is removed before
// Read returns.
func (r *Reader) Read(ctx context.Context, repoURL string) (*Snapshot, error) {
	if dir, ok := localPath(repoURL); ok {
		if !r.opts.AllowLocal {
			return nil, ErrLocalDisabled
		}
		commit := headCommit(dir)
		return r.snapshot(dir, repoURL, commit)
	}

	tmp, err := os.MkdirTemp("", "onboarding-clone-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			r.log.Warn("failed to remove clone directory", "dir", tmp, "error", err)
		}
	}()

	commit, err := r.clone(ctx, repoURL, tmp, r.opts.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}
	r.log.Debug("cloned repository", "repo_url", repoURL, "commit", commit)
	return r.snapshot(tmp, repoURL, commit)
}

func (r *Reader) snapshot(root, repoURL, commit string) (*Snapshot, error) {
	files, skipped, err := collect(root, r.opts)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(repoURL, commit, modulePath(root), files)
	snap.Skipped = skipped
	r.log.Info("read repository", "repo_url", repoURL, "commit", commit, "files", len(files), "skipped", skipped)
	return snap, nil
}

func shallowClone(ctx context.Context, url, dir, token string) (string, error) {
	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if token != "" && strings.HasPrefix(url, "https://") {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

// headCommit returns the checked out commit of a local repository, or "" when dir is not one.
func headCommit(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

func localPath(repoURL string) (string, bool) {
	p := strings.TrimPrefix(repoURL, "file://")
	if p == repoURL && !filepath.IsAbs(p) {
		return "", false
	}
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return p, true
}

// collect walks root and returns the matching files sorted by path, along with the number of
// matching files dropped for size or for exceeding MaxFiles.
func collect(root string, opts Options) ([]File, int, error) {
	var (
		files   []File
		skipped int
	)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			// a directory is skipped when any file inside it would be excluded
			if d.Name() == ".git" || matchAny(opts.Exclude, rel+"/x") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matchAny(opts.Exclude, rel) || !matchAny(opts.Include, rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > opts.MaxFileBytes || len(files) >= opts.MaxFiles {
			skipped++
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: rel, Size: info.Size(), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read repository files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, skipped, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		name := rel
		if !strings.Contains(p, "/") {
			name = path.Base(rel)
		}
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
