package codebase

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gwi.com/onboarding-backend/internal/store"
)

// Snapshot is a parsed view of one repository checkout.
type Snapshot struct {
	RepoURL string
	Commit  string
	Module  string
	Files   []File
	// Skipped counts matching files dropped by the size or count limits.
	Skipped int
	// Deps maps a file path to the repository files it imports.
	Deps map[string][]string
	// External counts files importing each package from outside the repository.
	External map[string]int
}

func newSnapshot(repoURL, commit, module string, files []File) *Snapshot {
	s := &Snapshot{
		RepoURL:  repoURL,
		Commit:   commit,
		Module:   module,
		Files:    files,
		Deps:     make(map[string][]string),
		External: make(map[string]int),
	}
	byPath := make(map[string]*File, len(files))
	byDir := make(map[string][]string)
	for i := range s.Files {
		f := &s.Files[i]
		parseFile(f)
		byPath[f.Path] = f
		if f.Language == LangGo && !strings.HasSuffix(f.Path, "_test.go") {
			byDir[path.Dir(f.Path)] = append(byDir[path.Dir(f.Path)], f.Path)
		}
	}
	for i := range s.Files {
		f := &s.Files[i]
		seen := map[string]bool{}
		for _, imp := range f.Imports {
			targets := resolve(f, imp, module, byPath, byDir)
			if len(targets) == 0 {
				if isExternal(f.Language, imp) {
					s.External[imp]++
				}
				continue
			}
			for _, t := range targets {
				if t != f.Path && !seen[t] {
					seen[t] = true
					s.Deps[f.Path] = append(s.Deps[f.Path], t)
				}
			}
		}
	}
	return s
}

var keyNames = []string{"main", "index", "app", "core", "init", "__main__", "server", "readme"}

// KeyFiles returns up to n files most useful for explaining the repository: entry points and
// well-known names first, then the most imported files, then the largest.
func (s *Snapshot) KeyFiles(n int) []File {
	importedBy := make(map[string]int)
	for _, targets := range s.Deps {
		for _, t := range targets {
			importedBy[t]++
		}
	}
	rank := func(f File) int {
		base := strings.ToLower(strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path)))
		for i, k := range keyNames {
			if base == k {
				return i
			}
		}
		return len(keyNames)
	}
	files := make([]File, 0, len(s.Files))
	for _, f := range s.Files {
		if !strings.HasSuffix(f.Path, "_test.go") {
			files = append(files, f)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		ri, rj := rank(files[i]), rank(files[j])
		if ri != rj {
			return ri < rj
		}
		if importedBy[files[i].Path] != importedBy[files[j].Path] {
			return importedBy[files[i].Path] > importedBy[files[j].Path]
		}
		if files[i].Size != files[j].Size {
			return files[i].Size > files[j].Size
		}
		return files[i].Path < files[j].Path
	})
	if len(files) > n {
		files = files[:n]
	}
	return files
}

// Summary describes the layout of the repository in a few lines of plain text.
func (s *Snapshot) Summary() string {
	var types, funcs int
	langs := make(map[string]int)
	dirs := make(map[string]int)
	for _, f := range s.Files {
		types += len(f.Types)
		funcs += len(f.Functions)
		langs[f.Language]++
		dirs[path.Dir(f.Path)]++
	}

	var b strings.Builder
	b.WriteString("Codebase structure:\n")
	fmt.Fprintf(&b, "- %d files analyzed (%s)\n", len(s.Files), countList(langs, 0))
	fmt.Fprintf(&b, "- %d types or classes\n", types)
	fmt.Fprintf(&b, "- %d functions\n", funcs)
	if s.Module != "" {
		fmt.Fprintf(&b, "- Go module %s\n", s.Module)
	}
	if len(dirs) > 0 {
		b.WriteString("\nMain directories:\n")
		b.WriteString(countList(dirs, 10))
		b.WriteString("\n")
	}
	if len(s.External) > 0 {
		b.WriteString("\nMost used external packages: ")
		b.WriteString(countList(s.External, 15))
		b.WriteString("\n")
	}
	return b.String()
}

// countList renders "key N" pairs by descending count, keeping at most limit (0 keeps all).
func countList(counts map[string]int, limit int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

// KnowledgeGraph links every file to the types and functions it declares and to the
// repository files it imports.
func (s *Snapshot) KnowledgeGraph() store.KnowledgeGraph {
	g := store.KnowledgeGraph{Nodes: []store.GraphNode{}, Edges: []store.GraphEdge{}}
	for _, f := range s.Files {
		fileID := "file:" + f.Path
		g.Nodes = append(g.Nodes, store.GraphNode{ID: fileID, Label: path.Base(f.Path), Type: "file", FilePath: f.Path})
		for _, t := range f.Types {
			id := "class:" + f.Path + "::" + t
			g.Nodes = append(g.Nodes, store.GraphNode{ID: id, Label: t, Type: "class", FilePath: f.Path})
			g.Edges = append(g.Edges, store.GraphEdge{Source: fileID, Target: id, Relationship: "contains"})
		}
		for _, fn := range f.Functions {
			id := "function:" + f.Path + "::" + fn
			g.Nodes = append(g.Nodes, store.GraphNode{ID: id, Label: fn, Type: "function", FilePath: f.Path})
			g.Edges = append(g.Edges, store.GraphEdge{Source: fileID, Target: id, Relationship: "contains"})
		}
		for _, dep := range s.Deps[f.Path] {
			g.Edges = append(g.Edges, store.GraphEdge{Source: fileID, Target: "file:" + dep, Relationship: "imports"})
		}
	}
	return g
}

// Source records what a snapshot covered, for storing next to the analysis.
func (s *Snapshot) Source(keyFiles []File) store.SourceInfo {
	paths := make([]string, len(keyFiles))
	for i, f := range keyFiles {
		paths[i] = f.Path
	}
	return store.SourceInfo{Commit: s.Commit, FilesAnalyzed: len(s.Files), FilesSkipped: s.Skipped, KeyFiles: paths}
}
