package layers

import (
	"regexp"
	"strings"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// PathFilter matches slash-separated relative paths against compiled
// include and exclude glob patterns.
//
// Pattern syntax: '*' matches within one path segment, '**' matches across
// segments, '?' matches a single character. A pattern ending in '/' matches
// the named directory and its entire subtree.
type PathFilter struct {
	includes []*pattern
	excludes []*pattern
}

type pattern struct {
	source string
	re     *regexp.Regexp
}

// CompileFilter compiles include and exclude patterns into a filter.
// Malformed patterns are input errors.
func CompileFilter(includes, excludes []string) (*PathFilter, error) {
	f := &PathFilter{}
	for _, p := range includes {
		compiled, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, compiled)
	}
	for _, p := range excludes {
		compiled, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		f.excludes = append(f.excludes, compiled)
	}
	return f, nil
}

// Excluded reports whether the path matches any exclude pattern.
func (f *PathFilter) Excluded(rel string) bool {
	for _, p := range f.excludes {
		if p.re.MatchString(rel) {
			return true
		}
	}
	return false
}

// Included reports whether the path passes the include patterns. An empty
// include set admits everything.
func (f *PathFilter) Included(rel string) bool {
	if len(f.includes) == 0 {
		return true
	}
	for _, p := range f.includes {
		if p.re.MatchString(rel) {
			return true
		}
	}
	return false
}

func compilePattern(glob string) (*pattern, error) {
	if glob == "" {
		return nil, errors.New(errors.CategoryInput, "filter", "empty filter pattern")
	}
	subtree := strings.HasSuffix(glob, "/")
	body := strings.TrimSuffix(glob, "/")

	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '*':
			if i+1 < len(body) && body[i+1] == '*' {
				sb.WriteString(".*")
				i++
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if subtree {
		// Match the directory itself and anything beneath it.
		sb.WriteString("(/.*)?")
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, errors.Wrap(errors.CategoryInput, "filter", "invalid filter pattern: "+glob, err)
	}
	return &pattern{source: glob, re: re}, nil
}
