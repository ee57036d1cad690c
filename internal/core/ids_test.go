package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanIDIsDerived(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := planID("abc123", "https://github.com/acme/api", at)
	assert.Equal(t, a, planID("abc123", "https://github.com/acme/api", at))
	assert.Equal(t, a, planID("abc123", "https://github.com/acme/api", at.In(time.FixedZone("x", 3600))))
	assert.NotEqual(t, a, planID("abc123", "https://github.com/acme/api", at.Add(time.Nanosecond)))
	assert.NotEqual(t, a, planID("abc124", "https://github.com/acme/api", at))
}

func TestAnalysisIDFormat(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 4, 5, 0, time.UTC)
	id := analysisID(CanonicalRepoURL("https://github.com/Acme/Job-Queue.git/"), at)
	assert.Regexp(t, regexp.MustCompile(`^acme_job_queue_20260301T100405_[0-9a-f]{8}$`), id)
}

func TestRepoNames(t *testing.T) {
	tests := []struct {
		in, name, slug string
	}{
		{"https://github.com/acme/api", "acme/api", "acme_api"},
		{"repo://X", "X", "x"},
		{"git@example", "git@example", "git_example"},
		{"", "", "repo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, RepoName(tt.in), tt.in)
		assert.Equal(t, tt.slug, repoSlug(tt.in), tt.in)
	}
}

func TestCanonicalRepoURL(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/api", CanonicalRepoURL("  https://github.com/acme/api.git/ "))
	assert.Equal(t, "repo://X", CanonicalRepoURL("repo://X"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "getting-started", slugify("Getting Started!"))
	assert.Equal(t, "item", slugify("???"))
}
