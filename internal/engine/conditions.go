package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/parley-sh/parley/internal/template"
)

// conditionRe matches the comparison form of the condition mini-language:
// a variable name, one of six operators, and a literal.
var conditionRe = regexp.MustCompile(`^(\S+)\s*(==|!=|>=|<=|>|<)\s*(.+)$`)

// EvaluateCondition evaluates a condition against run variables. Only two
// forms exist: a bare variable name (truthiness) and a single comparison
// `<var> <op> <literal>`. Anything else evaluates to false.
func EvaluateCondition(cond string, vars map[string]any) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return false
	}

	if m := conditionRe.FindStringSubmatch(cond); m != nil {
		return evaluateComparison(vars[m[1]], m[2], strings.TrimSpace(m[3]))
	}

	// Bare variable truthiness. A name with spaces or operators is malformed.
	if strings.ContainsAny(cond, " \t") {
		return false
	}
	v, ok := vars[cond]
	if !ok {
		return false
	}
	return truthy(v)
}

func evaluateComparison(value any, op, literal string) bool {
	litNum, litIsNum := parseNumber(literal)
	valNum, valIsNum := asNumber(value)

	switch op {
	case ">", "<", ">=", "<=":
		// Ordering requires numbers on both sides.
		if !litIsNum || !valIsNum {
			return false
		}
		switch op {
		case ">":
			return valNum > litNum
		case "<":
			return valNum < litNum
		case ">=":
			return valNum >= litNum
		default:
			return valNum <= litNum
		}
	case "==", "!=":
		eq := looseEqual(value, valNum, valIsNum, literal, litNum, litIsNum)
		if op == "==" {
			return eq
		}
		return !eq
	}
	return false
}

// looseEqual compares numerically when both sides are numbers, otherwise by
// string form. Quoted literals compare as their unquoted text.
func looseEqual(value any, valNum float64, valIsNum bool, literal string, litNum float64, litIsNum bool) bool {
	if valIsNum && litIsNum {
		return valNum == litNum
	}
	if unquoted, ok := unquote(literal); ok {
		return template.FormatValue(value) == unquoted
	}
	if b, err := strconv.ParseBool(literal); err == nil {
		if vb, ok := value.(bool); ok {
			return vb == b
		}
	}
	return template.FormatValue(value) == literal
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}
