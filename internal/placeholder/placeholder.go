// Package placeholder expands @name and @{name} references against layered
// secret sources.
package placeholder

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Lookup returns the value of name and whether it was found.
type Lookup func(name string) (string, bool)

// Resolve replaces every @name and @{name} in text with lookup(name).
// A reference preceded by another @ is an escape: @@name yields @name.
// Unresolved references are kept verbatim.
func Resolve(text string, lookup Lookup) string {
	if !strings.Contains(text, "@") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] != '@' {
			b.WriteByte(text[i])
			i++
			continue
		}

		if i+1 < len(text) && text[i+1] == '@' {
			if _, end, ok := reference(text, i+2); ok {
				b.WriteString(text[i+1 : end])
				i = end
				continue
			}
			b.WriteString("@@")
			i += 2
			continue
		}

		name, end, ok := reference(text, i+1)
		if !ok {
			b.WriteByte('@')
			i++
			continue
		}
		if v, found := lookup(name); found {
			b.WriteString(v)
		} else {
			b.WriteString(text[i:end])
		}
		i = end
	}
	return b.String()
}

// ResolveMap resolves every value of m into a new map.
func ResolveMap(m map[string]string, lookup Lookup) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Resolve(v, lookup)
	}
	return out
}

// reference scans a name or {name} starting at i. Names start with a letter
// and continue with letters, digits or underscores.
func reference(text string, i int) (name string, end int, ok bool) {
	if i >= len(text) {
		return "", i, false
	}
	if text[i] == '{' {
		j := scanName(text, i+1)
		if j == i+1 || j >= len(text) || text[j] != '}' {
			return "", i, false
		}
		return text[i+1 : j], j + 1, true
	}
	j := scanName(text, i)
	if j == i {
		return "", i, false
	}
	return text[i:j], j, true
}

func scanName(text string, i int) int {
	if i >= len(text) || !isLetter(text[i]) {
		return i
	}
	j := i + 1
	for j < len(text) && (isLetter(text[j]) || isDigit(text[j]) || text[j] == '_') {
		j++
	}
	return j
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// Map looks names up in m.
func Map(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// Chain consults lookups in order; the first hit wins.
func Chain(lookups ...Lookup) Lookup {
	return func(name string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(name); ok {
				return v, true
			}
		}
		return "", false
	}
}

// Dotenv reads a dotenv file. A missing file yields an empty lookup.
func Dotenv(path string) (Lookup, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Map(nil), nil
		}
		return nil, fmt.Errorf("failed to read dotenv %s: %w", path, err)
	}
	return Map(values), nil
}
