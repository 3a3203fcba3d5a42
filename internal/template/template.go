// Package template implements {token} substitution against run variables.
// Tokens without a matching variable are left verbatim, which lets a later
// state (or the user) spot the missing value instead of silently getting "".
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Substitute replaces every {name} occurrence in s with the stringified value
// of vars[name]. Unknown names stay untouched, braces and all. Braces that do
// not wrap a well-formed name are copied through unchanged.
func Substitute(s string, vars map[string]any) string {
	if !strings.ContainsRune(s, '{') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		open += i
		b.WriteString(s[i:open])

		close := strings.IndexByte(s[open:], '}')
		if close < 0 {
			b.WriteString(s[open:])
			break
		}
		close += open

		name := s[open+1 : close]
		if val, ok := vars[name]; ok && validName(name) {
			b.WriteString(FormatValue(val))
		} else {
			b.WriteString(s[open : close+1])
		}
		i = close + 1
	}
	return b.String()
}

// SubstituteParams applies Substitute to every value of a parameter map,
// producing the argument map handed to a tool handler.
func SubstituteParams(params map[string]string, vars map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = Substitute(v, vars)
	}
	return out
}

// FormatValue stringifies a variable for interpolation and for transition
// matching. Numbers render without a trailing fraction when they are whole,
// maps and slices render as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case error:
		return val.Error()
	default:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", val)
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
