// Package depgraph builds a best-effort file-level dependency graph from
// source text using per-language import regexes, the same "pattern over
// full parse" tradeoff the teacher's crawler makes when extracting links
// from HTML rather than running a browser DOM.
package depgraph

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// Edge is one file-to-file (or file-to-package) dependency.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// File is one unit of source handed to the graph builder.
type File struct {
	Path     string
	Language string
	Content  string
}

var importPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`(?m)^\s*(?:_|\.| *[A-Za-z0-9_]*)?\s*"([^"]+)"`),
	"python":     regexp.MustCompile(`(?m)^\s*(?:from\s+([.\w]+)\s+import|import\s+([.\w]+))`),
	"javascript": regexp.MustCompile(`(?m)(?:import[^'"]*from\s*|require\()\s*['"]([^'"]+)['"]`),
	"typescript": regexp.MustCompile(`(?m)(?:import[^'"]*from\s*|require\()\s*['"]([^'"]+)['"]`),
}

// goImportBlock captures the whole `import (...)` block so individual
// quoted paths inside it are picked up by importPatterns["go"].
var goImportBlock = regexp.MustCompile(`(?s)import\s*\(([^)]*)\)`)

// Build resolves import statements in each file into edges pointing at other
// files in the same set when the import plausibly refers to one of them
// (relative paths, or a suffix match on package path for Go-style imports),
// and drops anything that only resolves to an external/stdlib package.
func Build(files []File) []Edge {
	byBase := make(map[string]string, len(files))
	for _, f := range files {
		byBase[path.Base(f.Path)] = f.Path
		byBase[strings.TrimSuffix(f.Path, path.Ext(f.Path))] = f.Path
	}

	seen := make(map[Edge]struct{})
	var edges []Edge

	for _, f := range files {
		for _, raw := range rawImports(f) {
			target := resolve(f.Path, raw, byBase)
			if target == "" || target == f.Path {
				continue
			}
			e := Edge{From: f.Path, To: target}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

func rawImports(f File) []string {
	var raw []string
	switch f.Language {
	case "go":
		content := f.Content
		for _, block := range goImportBlock.FindAllStringSubmatch(content, -1) {
			for _, m := range importPatterns["go"].FindAllStringSubmatch(block[1], -1) {
				raw = append(raw, m[1])
			}
		}
		for _, m := range regexp.MustCompile(`(?m)^\s*import\s+"([^"]+)"`).FindAllStringSubmatch(content, -1) {
			raw = append(raw, m[1])
		}
	default:
		pat, ok := importPatterns[f.Language]
		if !ok {
			return nil
		}
		for _, m := range pat.FindAllStringSubmatch(f.Content, -1) {
			for _, g := range m[1:] {
				if g != "" {
					raw = append(raw, g)
					break
				}
			}
		}
	}
	return raw
}

// resolve maps an import string to a file path in the same set, or "" if it
// looks like a third-party/stdlib import with nothing local to point at.
func resolve(from, imp string, byBase map[string]string) string {
	imp = strings.Trim(imp, "'\"")
	if strings.HasPrefix(imp, ".") && !strings.HasPrefix(imp, "./") && !strings.HasPrefix(imp, "../") && imp != "." && imp != ".." {
		// Python relative module: the first dot is the current package, each further dot one level up.
		rest := strings.TrimLeft(imp, ".")
		ups := len(imp) - len(rest) - 1
		imp = "./" + strings.Repeat("../", ups) + strings.ReplaceAll(rest, ".", "/")
	}
	if strings.HasPrefix(imp, ".") {
		dir := path.Dir(from)
		joined := path.Clean(path.Join(dir, imp))
		for _, ext := range []string{"", ".go", ".py", ".js", ".ts", ".tsx", ".jsx"} {
			if target, ok := byBase[path.Base(joined)+ext]; ok {
				return target
			}
			if target, ok := byBase[joined+ext]; ok {
				return target
			}
		}
		return ""
	}

	base := path.Base(imp)
	if target, ok := byBase[base]; ok {
		return target
	}
	return ""
}
