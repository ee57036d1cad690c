package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RepoList is the content of REPOS_FILE: the repositories analyzed on schedule and any
// experience levels beyond the built-in junior/senior pair.
type RepoList struct {
	Repositories []RepoEntry `yaml:"repositories"`
	Levels       []LevelDef  `yaml:"levels"`
}

type RepoEntry struct {
	URL    string   `yaml:"url"`
	Levels []string `yaml:"levels"`
}

type LevelDef struct {
	Name     string  `yaml:"name"`
	MinYears float64 `yaml:"min_years"`
	Prompt   string  `yaml:"prompt"`
}

// LoadRepos parses the repository list at path. A missing file yields an empty list.
func LoadRepos(path string) (*RepoList, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &RepoList{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read repos file %s: %w", path, err)
	}
	return ParseRepos(data)
}

func ParseRepos(data []byte) (*RepoList, error) {
	var list RepoList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse repos file: %w", err)
	}

	seen := make(map[string]bool, len(list.Repositories))
	repos := list.Repositories[:0]
	for _, r := range list.Repositories {
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		for i, lvl := range r.Levels {
			r.Levels[i] = strings.ToLower(strings.TrimSpace(lvl))
		}
		repos = append(repos, r)
	}
	list.Repositories = repos

	for i, lvl := range list.Levels {
		name := strings.ToLower(strings.TrimSpace(lvl.Name))
		if name == "" {
			return nil, fmt.Errorf("level #%d has no name", i+1)
		}
		if lvl.MinYears < 0 {
			return nil, fmt.Errorf("level %q has negative min_years", name)
		}
		list.Levels[i].Name = name
	}
	return &list, nil
}
