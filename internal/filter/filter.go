// Package filter screens confession text against a banned-pattern set.
// It is pure and stateless: normalization plus regex matching, with no
// knowledge of the transactional logic around it.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// leetMap substitutes common digit/symbol stand-ins before matching, so
// obfuscations like "b4d w0rd" normalize back to letters.
var leetMap = []struct {
	from string
	to   string
}{
	{"4", "a"}, {"@", "a"},
	{"3", "e"},
	{"1", "i"}, {"!", "i"},
	{"0", "o"},
	{"5", "s"}, {"$", "s"},
	{"7", "t"},
	{"8", "b"},
}

var nonLetters = regexp.MustCompile(`[^a-z]`)

// defaultPatterns is the fixed banned set: profanity, slurs, and the
// evasive-spacing variants the normalizer exposes.
var defaultPatterns = []string{
	`ch[u]*t[i]*y[a]*`, `bkch[o]*d`, `mdrch[o]*d`, `b[h]*nch[o]*d`,
	`f[u]*ck`, `sh[i]*t`, `b[i]*tch`, `wh[o]*re`, `r[a]*pe`, `sl[u]*t`,
	`p[u]*ss[y]*`, `d[i]*ck`, `p[e]*n[i]*s`, `v[a]*g[i]*n[a]`,
}

// Filter holds the compiled pattern set.
type Filter struct {
	patterns []*regexp.Regexp
}

// New compiles the default banned set plus any extra patterns from
// configuration. Extra patterns are case-insensitive regular expressions.
func New(extraPatterns ...string) (*Filter, error) {
	raw := make([]string, 0, len(defaultPatterns)+len(extraPatterns))
	raw = append(raw, defaultPatterns...)
	raw = append(raw, extraPatterns...)

	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile banned pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Filter{patterns: patterns}, nil
}

// Clean reports whether the content passes the banned-pattern screen.
// Patterns are tested against the normalized text, the raw text, and the
// lower-cased raw text, so both obfuscated and plain forms are caught.
func (f *Filter) Clean(content string) bool {
	normalized := Normalize(content)
	lowered := strings.ToLower(content)
	for _, re := range f.patterns {
		if re.MatchString(normalized) || re.MatchString(content) || re.MatchString(lowered) {
			return false
		}
	}
	return true
}

// Normalize lower-cases, maps leetspeak stand-ins to letters, and strips
// everything that is not an ASCII letter.
func Normalize(content string) string {
	s := strings.ToLower(content)
	for _, sub := range leetMap {
		s = strings.ReplaceAll(s, sub.from, sub.to)
	}
	return nonLetters.ReplaceAllString(s, "")
}
