package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"STORE_BACKEND", "LLM_PROVIDER", "XAI_API_KEY", "GEMINI_API_KEY", "LLM_TIMEOUT", "ANALYSIS_LEVELS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	warnings, err := LoadConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
	assert.Equal(t, StoreFile, AppConfig.StoreBackend)
	assert.Equal(t, ProviderNone, AppConfig.LLMProvider)
	assert.Equal(t, 60*time.Second, AppConfig.LLMTimeout)
	assert.Equal(t, 3.0, AppConfig.SeniorYearsThreshold)
	assert.Equal(t, []string{"junior", "senior"}, AppConfig.AnalysisLevels)
}

func TestLoadConfigPicksGrokWhenKeyPresent(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("XAI_API_KEY", "xai-test")
	t.Setenv("LLM_TIMEOUT", "15")
	t.Setenv("ANALYSIS_LEVELS", "Junior, senior ,staff")

	_, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderGrok, AppConfig.LLMProvider)
	assert.Equal(t, 15*time.Second, AppConfig.LLMTimeout)
	assert.Equal(t, []string{"junior", "senior", "staff"}, AppConfig.AnalysisLevels)
}

func TestLoadConfigRepositorySource(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("REPO_INCLUDE", "*.go, cmd/**/Makefile ,")
	t.Setenv("REPO_EXCLUDE", "")
	t.Setenv("REPO_MAX_FILE_BYTES", "2048")
	t.Setenv("REPO_ALLOW_LOCAL", "true")

	_, err := LoadConfig()
	require.NoError(t, err)
	src := AppConfig.Source
	assert.True(t, src.Enabled)
	assert.Equal(t, "ghp_test", src.GitHubToken)
	assert.Equal(t, []string{"*.go", "cmd/**/Makefile"}, src.Include)
	assert.Nil(t, src.Exclude)
	assert.EqualValues(t, 2048, src.MaxFileBytes)
	assert.Equal(t, 500, src.MaxFiles)
	assert.True(t, src.AllowLocal)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		StoreBackend:     StoreFile,
		LLMProvider:      ProviderNone,
		LLMTimeout:       time.Second,
		LLMMaxAttempts:   1,
		ProfileIDLength:  12,
		MinResumeChars:   50,
		MaxUploadBytes:   1024,
		DefaultPlanWeeks: 4,
		MaxPlanWeeks:     12,
		AnalysisLevels:   []string{"junior"},
		Source:           SourceConfig{MaxFileBytes: 100_000, MaxFiles: 500},
	}
	_, err := base.Validate()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown store", func(c *Config) { c.StoreBackend = "mongo" }},
		{"s3 without bucket", func(c *Config) { c.StoreBackend = StoreS3 }},
		{"unknown provider", func(c *Config) { c.LLMProvider = "claude" }},
		{"zero timeout", func(c *Config) { c.LLMTimeout = 0 }},
		{"short ids", func(c *Config) { c.ProfileIDLength = 4 }},
		{"default weeks above max", func(c *Config) { c.DefaultPlanWeeks = 20 }},
		{"no levels", func(c *Config) { c.AnalysisLevels = nil }},
		{"zero file size cap", func(c *Config) { c.Source.MaxFileBytes = 0 }},
		{"negative file count cap", func(c *Config) { c.Source.MaxFiles = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			_, err := c.Validate()
			assert.Error(t, err)
		})
	}
}

func TestParseRepos(t *testing.T) {
	data := []byte(`
repositories:
  - url: https://github.com/facebook/rocksdb
    levels: [Junior, senior]
  - url: https://github.com/facebook/rocksdb
  - url: "  "
  - url: https://github.com/pallets/flask
levels:
  - name: Staff
    min_years: 8
    prompt: Focus on cross-team architecture.
`)
	list, err := ParseRepos(data)
	require.NoError(t, err)
	require.Len(t, list.Repositories, 2)
	assert.Equal(t, []string{"junior", "senior"}, list.Repositories[0].Levels)
	assert.Equal(t, "https://github.com/pallets/flask", list.Repositories[1].URL)
	require.Len(t, list.Levels, 1)
	assert.Equal(t, "staff", list.Levels[0].Name)
	assert.Equal(t, 8.0, list.Levels[0].MinYears)
}

func TestParseReposRejectsNamelessLevel(t *testing.T) {
	_, err := ParseRepos([]byte("levels:\n  - min_years: 2\n"))
	assert.Error(t, err)
}

func TestLoadReposMissingFile(t *testing.T) {
	list, err := LoadRepos(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, list.Repositories)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
