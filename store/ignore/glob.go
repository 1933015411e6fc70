// Package ignore implements glob-pattern matching for the filesystem
// driver's ignore list, translating shell-style globs to anchored regular
// expressions the same way the teacher's fs/filter package does.
package ignore

import (
	"errors"
	"regexp"
	"strings"
)

// GlobToRegexp converts a glob pattern into a compiled, anchored regular
// expression. Patterns starting with "/" anchor to the start of the
// matched path; otherwise the match may begin at any path-segment boundary
// ("(^|/)"), mirroring rsync/.gitignore-style glob semantics.
//
//   - "*"   matches any run of characters except "/"
//   - "**"  matches any run of characters including "/"
//   - "**/" matches zero or more leading directories
//   - "?"   matches any single character except "/"
//   - "[...]" is passed through to the regexp engine as a character class
//   - "{a,b,c}" expands to an alternation "(a|b|c)"
//
// ignoreCase, when true, compiles the pattern case-insensitively.
func GlobToRegexp(glob string, ignoreCase bool) (*regexp.Regexp, error) {
	var prefix, suffix string
	if strings.HasPrefix(glob, "/") {
		glob = glob[1:]
		prefix, suffix = "^", "$"
	} else {
		prefix, suffix = "(^|/)", "$"
	}

	body, err := globBodyToRegexp(glob)
	if err != nil {
		return nil, err
	}

	pattern := prefix + body + suffix
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// globBodyToRegexp walks glob left to right emitting the regexp-escaped
// equivalent, handling "*", "**", "?", "[...]", and "{...,...}".
func globBodyToRegexp(glob string) (string, error) {
	var out strings.Builder
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '\\':
			if i+1 < len(runes) {
				out.WriteString(regexp.QuoteMeta(string(runes[i+1])))
				i++
			} else {
				out.WriteString(`\\`)
			}
		case '*':
			stars := 1
			for i+1 < len(runes) && runes[i+1] == '*' {
				stars++
				i++
			}
			if stars > 2 {
				return "", errors.New("glob: too many stars")
			}
			if stars == 2 {
				if i+1 < len(runes) && runes[i+1] == '/' {
					// "**/" also matches zero directories, so
					// "**/x/**" matches "x/..." at the top level.
					out.WriteString("(.*/)?")
					i++
				} else {
					out.WriteString(".*")
				}
			} else {
				out.WriteString("[^/]*")
			}
		case '?':
			out.WriteString("[^/]")
		case '[':
			classEnd := findClassEnd(runes, i)
			if classEnd < 0 {
				return "", errors.New("glob: mismatched '[' and ']'")
			}
			out.WriteString(string(runes[i : classEnd+1]))
			i = classEnd
		case ']':
			return "", errors.New("glob: mismatched ']'")
		case '{':
			end := findMatching(runes, i, '{', '}')
			if end < 0 {
				return "", errors.New("glob: mismatched '{' and '}'")
			}
			inner := string(runes[i+1 : end])
			parts := strings.Split(inner, ",")
			escaped := make([]string, len(parts))
			for j, p := range parts {
				sub, err := globBodyToRegexp(p)
				if err != nil {
					return "", err
				}
				escaped[j] = sub
			}
			out.WriteString("(" + strings.Join(escaped, "|") + ")")
			i = end
		case '}':
			return "", errors.New("glob: mismatched '{' and '}'")
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return out.String(), nil
}

// findClassEnd returns the index of the ']' closing the '[' at start,
// respecting a leading '^' or ']' as literal per shell glob convention.
func findClassEnd(runes []rune, start int) int {
	i := start + 1
	if i < len(runes) && runes[i] == '^' {
		i++
	}
	if i < len(runes) && runes[i] == ']' {
		i++
	}
	for ; i < len(runes); i++ {
		if runes[i] == ']' {
			return i
		}
	}
	return -1
}

func findMatching(runes []rune, start int, open, close rune) int {
	depth := 0
	for i := start; i < len(runes); i++ {
		switch runes[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Matcher holds a compiled set of ignore globs.
type Matcher struct {
	patterns []*regexp.Regexp
}

// DefaultPatterns mirrors the filesystem driver's built-in ignore list.
var DefaultPatterns = []string{"**/node_modules/**", "**/.git/**"}

// New compiles patterns into a Matcher. A pattern that fails to compile is
// skipped rather than erroring the whole matcher — "a malformed ignore
// configuration is treated as no ignore rules" (robustness over
// strictness), so only the offending pattern is dropped, not the set.
func New(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		re, err := GlobToRegexp(p, false)
		if err != nil {
			continue
		}
		m.patterns = append(m.patterns, re)
	}
	return m
}

// Match reports whether path (using "/" separators) matches any configured
// pattern.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
