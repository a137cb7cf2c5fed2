package retrieval

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// tokenize lowercases s and splits it into [a-z0-9_]+ runs, the shared token
// definition used both for hash-embedding shingles and the lexical overlap
// score in hybrid reranking. Must stay identical between the two call sites
// or the rerank score stops being reproducible.
func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}
