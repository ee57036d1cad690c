package codebase

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/modfile"
)

const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangOther      = "other"
)

// File is one collected source file and the declarations found in it.
type File struct {
	Path      string   `json:"path"`
	Size      int64    `json:"size"`
	Language  string   `json:"language"`
	Content   string   `json:"-"`
	Imports   []string `json:"imports"`
	Types     []string `json:"types"`
	Functions []string `json:"functions"`
}

func languageOf(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".go":
		return LangGo
	case ".py":
		return LangPython
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript
	case ".ts", ".tsx":
		return LangTypeScript
	default:
		return LangOther
	}
}

// parseFile fills Language, Imports, Types and Functions. Files that do not parse keep an
// empty structure.
func parseFile(f *File) {
	f.Language = languageOf(f.Path)
	switch f.Language {
	case LangGo:
		parseGo(f)
	case LangPython:
		f.Imports = submatches(pyImport, f.Content)
		f.Types = submatches(pyClass, f.Content)
		f.Functions = submatches(pyFunc, f.Content)
	case LangJavaScript, LangTypeScript:
		f.Imports = submatches(jsImport, f.Content)
		f.Types = submatches(jsClass, f.Content)
		f.Functions = submatches(jsFunc, f.Content)
	}
	f.Imports = uniq(f.Imports)
	f.Types = uniq(f.Types)
	f.Functions = uniq(f.Functions)
}

func parseGo(f *File) {
	fset := token.NewFileSet()
	af, err := parser.ParseFile(fset, f.Path, f.Content, parser.SkipObjectResolution)
	if err != nil {
		return
	}
	for _, imp := range af.Imports {
		f.Imports = append(f.Imports, strings.Trim(imp.Path.Value, "\"`"))
	}
	for _, decl := range af.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				f.Types = append(f.Types, spec.(*ast.TypeSpec).Name.Name)
			}
		case *ast.FuncDecl:
			name := d.Name.Name
			if recv := receiverName(d); recv != "" {
				name = recv + "." + name
			}
			f.Functions = append(f.Functions, name)
		}
	}
}

func receiverName(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return ""
	}
	t := d.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch x := t.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.IndexExpr:
		if id, ok := x.X.(*ast.Ident); ok {
			return id.Name
		}
	case *ast.IndexListExpr:
		if id, ok := x.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

var (
	pyImport = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
	pyClass  = regexp.MustCompile(`(?m)^class\s+(\w+)`)
	pyFunc   = regexp.MustCompile(`(?m)^(?:async\s+)?def\s+(\w+)`)

	jsImport = regexp.MustCompile(`(?m)(?:^\s*import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]|require\(\s*['"]([^'"]+)['"]\s*\))`)
	jsClass  = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`)
	jsFunc   = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)|^\s*(?:export\s+)?(?:const|let)\s+(\w+)\s*=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`)
)

// submatches returns the first non-empty group of every match, deduplicated in order.
func submatches(re *regexp.Regexp, s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
			break
		}
	}
	return out
}

func uniq(s []string) []string {
	out := make([]string, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// modulePath returns the Go module path declared in root/go.mod, or "".
func modulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

var jsExtensions = []string{"", ".ts", ".tsx", ".js", ".jsx", "/index.ts", "/index.tsx", "/index.js", "/index.jsx"}

// resolve maps an import of from to the repository files it refers to. It returns nil for
// imports outside the repository.
func resolve(from *File, imp, module string, byPath map[string]*File, byDir map[string][]string) []string {
	switch from.Language {
	case LangGo:
		if module == "" || (imp != module && !strings.HasPrefix(imp, module+"/")) {
			return nil
		}
		dir := strings.TrimPrefix(strings.TrimPrefix(imp, module), "/")
		if dir == "" {
			dir = "."
		}
		return byDir[dir]
	case LangPython:
		rel := strings.ReplaceAll(strings.TrimLeft(imp, "."), ".", "/")
		bases := []string{rel}
		if strings.HasPrefix(imp, ".") || !strings.Contains(imp, ".") {
			bases = append(bases, path.Join(path.Dir(from.Path), rel))
		}
		for _, b := range bases {
			for _, cand := range []string{b + ".py", b + "/__init__.py"} {
				if _, ok := byPath[cand]; ok {
					return []string{cand}
				}
			}
		}
	case LangJavaScript, LangTypeScript:
		if !strings.HasPrefix(imp, "./") && !strings.HasPrefix(imp, "../") {
			return nil
		}
		base := path.Join(path.Dir(from.Path), imp)
		for _, ext := range jsExtensions {
			if _, ok := byPath[base+ext]; ok {
				return []string{base + ext}
			}
		}
	}
	return nil
}

// isExternal reports whether an unresolved import names a third-party package rather than a
// language builtin or a relative path.
func isExternal(lang, imp string) bool {
	switch lang {
	case LangGo:
		first, _, _ := strings.Cut(imp, "/")
		return strings.Contains(first, ".")
	case LangJavaScript, LangTypeScript:
		return !strings.HasPrefix(imp, ".") && !strings.HasPrefix(imp, "node:")
	case LangPython:
		return !strings.HasPrefix(imp, ".")
	}
	return false
}
