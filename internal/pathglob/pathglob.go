// Package pathglob expands shell-style file patterns such as
// `tests/expand/**/*.rs`. `*` stops at path separators while a `**`
// component matches zero or more directories; `?`, `[...]` and `{a,b}`
// behave as in a shell.
package pathglob

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

const metaChars = "*?[{\\"

// Expand returns the regular files matching pattern, sorted. Relative
// patterns are resolved against base and yield paths relative to base. A
// pattern whose static prefix does not exist matches nothing.
func Expand(base, pattern string) ([]string, error) {
	slashed := path.Clean(filepath.ToSlash(pattern))

	var matchers []glob.Glob
	for _, variant := range variants(slashed) {
		matcher, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, matcher)
	}

	prefix := staticPrefix(slashed)
	root := filepath.FromSlash(prefix)
	absolute := path.IsAbs(slashed)
	if !absolute {
		root = filepath.Join(base, root)
	}

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if prefix == slashed {
		if info.Mode().IsRegular() {
			return []string{filepath.FromSlash(slashed)}, nil
		}
		return nil, nil
	}
	if !info.IsDir() {
		return nil, nil
	}

	var matches []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		candidate := p
		if !absolute {
			candidate, err = filepath.Rel(base, p)
			if err != nil {
				return err
			}
		}
		candidate = filepath.ToSlash(candidate)
		for _, matcher := range matchers {
			if matcher.Match(candidate) {
				matches = append(matches, filepath.FromSlash(candidate))
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

// variants spells out the zero-directory reading of every `**` component.
// The glob library requires `a/**/b` to cross at least one directory, so
// `a/**/b` also yields `a/b` and a leading `**/b` also yields `b`.
func variants(pattern string) []string {
	parts := strings.Split(pattern, "/")
	result := [][]string{nil}
	for i, part := range parts {
		var next [][]string
		for _, prefix := range result {
			with := append(append([]string(nil), prefix...), part)
			next = append(next, with)
			if part == "**" && i < len(parts)-1 {
				next = append(next, append([]string(nil), prefix...))
			}
		}
		result = next
	}

	seen := make(map[string]bool, len(result))
	out := make([]string, 0, len(result))
	for _, components := range result {
		variant := strings.Join(components, "/")
		if strings.HasPrefix(pattern, "/") && !strings.HasPrefix(variant, "/") {
			variant = "/" + variant
		}
		if !seen[variant] {
			seen[variant] = true
			out = append(out, variant)
		}
	}
	return out
}

// HasMeta reports whether pattern contains glob syntax.
func HasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, metaChars)
}

// staticPrefix returns the leading path components of pattern that contain
// no glob syntax.
func staticPrefix(pattern string) string {
	parts := strings.Split(pattern, "/")
	static := make([]string, 0, len(parts))
	for _, part := range parts {
		if HasMeta(part) {
			break
		}
		static = append(static, part)
	}
	if len(static) == len(parts) {
		return pattern
	}
	prefix := strings.Join(static, "/")
	if prefix == "" && strings.HasPrefix(pattern, "/") {
		return "/"
	}
	if prefix == "" {
		return "."
	}
	return prefix
}
