// Package canonical normalizes request option sets into the stable form
// used for job params, dedup keys and reproducible wire requests.
package canonical

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize reduces an option set to present, non-empty values with every
// value coerced to its canonical string form. Booleans keep only "true"
// (false means "omit"), integers lose leading zeros, nil and empty values
// are elided. Unknown keys pass through unchanged. The result depends only
// on the semantic content of the input: Canonicalize(Canonicalize(x)) and
// any key ordering of x produce identical maps.
func Canonicalize(options map[string]any) map[string]string {
	out := make(map[string]string, len(options))
	for key, value := range options {
		str, ok := coerce(value)
		if !ok {
			continue
		}
		out[key] = str
	}
	return out
}

func coerce(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case bool:
		if !v {
			return "", false
		}
		return "true", true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		// JSON numbers decode as float64; integral values canonicalize
		// without a fraction.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return coerce(float64(v))
	default:
		s := fmt.Sprint(v)
		if s == "" {
			return "", false
		}
		return s, true
	}
}

// Keys returns the canonical (lexicographic) key order of a params map.
func Keys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Key encodes a canonicalized params map into one byte-stable string,
// suitable as a cache or dedup key.
func Key(params map[string]string) string {
	var b strings.Builder
	for i, key := range Keys(params) {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	return b.String()
}
