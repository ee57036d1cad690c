package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// nameID derives a stable UUID (v5) from parts, so identifiers can be recomputed from the
// inputs and timestamp that produced them.
func nameID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "|")))
}

func planID(profileID, repoURL string, at time.Time) string {
	return nameID(profileID, repoURL, at.UTC().Format(time.RFC3339Nano)).String()
}

func analysisID(repoURL string, at time.Time) string {
	suffix := nameID(repoURL, at.UTC().Format(time.RFC3339Nano)).String()[:8]
	return fmt.Sprintf("%s_%s_%s", repoSlug(repoURL), at.UTC().Format("20060102T150405"), suffix)
}

// CanonicalRepoURL trims whitespace, trailing slashes and a .git suffix.
func CanonicalRepoURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return strings.TrimRight(s, "/")
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// repoParts returns the owner and repository segments of a repository URL.
func repoParts(repoURL string) []string {
	path := repoURL
	if u, err := url.Parse(repoURL); err == nil && u.Host != "" {
		path = u.Host + "/" + u.Path
	}
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return parts
}

// repoSlug turns https://github.com/owner/repo into owner_repo.
func repoSlug(repoURL string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(strings.Join(repoParts(repoURL), "_")), "_"), "_")
	if slug == "" {
		return "repo"
	}
	return slug
}

// RepoName returns owner/repo for display.
func RepoName(repoURL string) string {
	if parts := repoParts(repoURL); len(parts) > 0 {
		return strings.Join(parts, "/")
	}
	return repoURL
}

func slugify(s string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "item"
	}
	return slug
}
