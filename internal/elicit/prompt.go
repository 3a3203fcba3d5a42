// Package elicit implements the elicitation subsystem: prompt formatting,
// response validation and transformation, native delivery through an abstract
// channel, and a fallback pending-request registry for clients that cannot
// answer elicitations in-band.
package elicit

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/parley-sh/parley/internal/template"
	"github.com/parley-sh/parley/pkg/schema"
)

// FormatPrompt renders the user-facing prompt for an elicitation: variable
// tokens substituted, then type-specific guidance appended.
func FormatPrompt(spec *schema.ElicitationSpec, vars map[string]any) string {
	prompt := template.Substitute(spec.Prompt, vars)

	switch spec.Type {
	case schema.ElicitSelect:
		var b strings.Builder
		b.WriteString(prompt)
		for i, opt := range spec.Options {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, opt))
		}
		return b.String()
	case schema.ElicitConfirm:
		return prompt + " (yes/no)"
	case schema.ElicitNumber:
		switch {
		case spec.Min != nil && spec.Max != nil:
			return fmt.Sprintf("%s (between %s and %s)", prompt, formatBound(*spec.Min), formatBound(*spec.Max))
		case spec.Min != nil:
			return fmt.Sprintf("%s (minimum %s)", prompt, formatBound(*spec.Min))
		case spec.Max != nil:
			return fmt.Sprintf("%s (maximum %s)", prompt, formatBound(*spec.Max))
		}
		return prompt
	default:
		if spec.Pattern != "" {
			return fmt.Sprintf("%s (must match %s)", prompt, spec.Pattern)
		}
		return prompt
	}
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ValidateResponse checks a raw response against the elicitation spec.
// Returns ok and, when invalid, a human-readable reason.
func ValidateResponse(raw any, spec *schema.ElicitationSpec) (bool, string) {
	switch spec.Type {
	case schema.ElicitText:
		s, ok := raw.(string)
		if !ok {
			return false, "expected a text value"
		}
		if spec.Required && strings.TrimSpace(s) == "" {
			return false, "a value is required"
		}
		if spec.Pattern != "" {
			// The whole value must match, not just a substring.
			re, err := regexp.Compile("^(?:" + spec.Pattern + ")$")
			if err != nil {
				return false, fmt.Sprintf("invalid pattern %q", spec.Pattern)
			}
			if !re.MatchString(s) {
				return false, fmt.Sprintf("value does not match pattern %s", spec.Pattern)
			}
		}
		return true, ""

	case schema.ElicitNumber:
		n, ok := toNumber(raw)
		if !ok {
			return false, "expected a number"
		}
		if spec.Min != nil && n < *spec.Min {
			return false, fmt.Sprintf("value must be at least %s", formatBound(*spec.Min))
		}
		if spec.Max != nil && n > *spec.Max {
			return false, fmt.Sprintf("value must be at most %s", formatBound(*spec.Max))
		}
		return true, ""

	case schema.ElicitConfirm:
		if _, ok := toBool(raw); !ok {
			return false, "expected yes or no"
		}
		return true, ""

	case schema.ElicitSelect:
		if len(spec.Options) == 0 {
			return false, "no options configured"
		}
		if _, ok := toOption(raw, spec.Options); !ok {
			return false, fmt.Sprintf("expected one of: %s", strings.Join(spec.Options, ", "))
		}
		return true, ""

	default:
		return false, fmt.Sprintf("unknown elicitation type %q", spec.Type)
	}
}

// TransformResponse converts a validated raw response into its typed value:
// text to string, number to float64, confirm to bool, select to the chosen
// option string.
func TransformResponse(raw any, spec *schema.ElicitationSpec) (any, error) {
	if ok, reason := ValidateResponse(raw, spec); !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid elicitation response: %s", reason)
	}

	switch spec.Type {
	case schema.ElicitText:
		return raw.(string), nil
	case schema.ElicitNumber:
		n, _ := toNumber(raw)
		return n, nil
	case schema.ElicitConfirm:
		b, _ := toBool(raw)
		return b, nil
	case schema.ElicitSelect:
		opt, _ := toOption(raw, spec.Options)
		return opt, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown elicitation type %q", spec.Type)
	}
}

// RequestedSchema builds the JSON-Schema-shaped payload a native elicitation
// request carries: a single "value" property typed per the spec.
func RequestedSchema(spec *schema.ElicitationSpec) map[string]any {
	prop := map[string]any{}
	switch spec.Type {
	case schema.ElicitNumber:
		prop["type"] = "number"
		if spec.Min != nil {
			prop["minimum"] = *spec.Min
		}
		if spec.Max != nil {
			prop["maximum"] = *spec.Max
		}
	case schema.ElicitConfirm:
		prop["type"] = "boolean"
	case schema.ElicitSelect:
		prop["type"] = "string"
		opts := make([]any, len(spec.Options))
		for i, o := range spec.Options {
			opts[i] = o
		}
		prop["enum"] = opts
	default:
		prop["type"] = "string"
		if spec.Pattern != "" {
			prop["pattern"] = spec.Pattern
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": prop},
	}
	if spec.Required {
		out["required"] = []any{"value"}
	}
	return out
}

// Instructions returns human-readable answering guidance for a spec, used by
// the out-of-band surface where no client UI renders the request.
func Instructions(spec *schema.ElicitationSpec) string {
	switch spec.Type {
	case schema.ElicitNumber:
		return "Answer with a number."
	case schema.ElicitConfirm:
		return "Answer yes or no (y, n, true, and false also work)."
	case schema.ElicitSelect:
		return "Answer with one of the listed options, or its 1-based number."
	default:
		return "Answer with free-form text."
	}
}

// ValidationRules describes the checks an answer must pass, one rule per
// entry, in the order they are applied.
func ValidationRules(spec *schema.ElicitationSpec) []string {
	var rules []string
	switch spec.Type {
	case schema.ElicitText:
		rules = append(rules, "must be text")
		if spec.Required {
			rules = append(rules, "must not be blank")
		}
		if spec.Pattern != "" {
			rules = append(rules, fmt.Sprintf("must match pattern %s", spec.Pattern))
		}
	case schema.ElicitNumber:
		rules = append(rules, "must be a number")
		if spec.Min != nil {
			rules = append(rules, fmt.Sprintf("must be at least %s", formatBound(*spec.Min)))
		}
		if spec.Max != nil {
			rules = append(rules, fmt.Sprintf("must be at most %s", formatBound(*spec.Max)))
		}
	case schema.ElicitConfirm:
		rules = append(rules, "must be yes, no, y, n, true, or false (case-insensitive)")
	case schema.ElicitSelect:
		rules = append(rules, fmt.Sprintf("must be one of: %s", strings.Join(spec.Options, ", ")),
			"a 1-based option number is also accepted")
	}
	return rules
}

// toNumber converts a raw response to a finite float64. ParseFloat accepts
// "Inf" and "NaN", which are not usable values here, so those are rejected.
func toNumber(raw any) (float64, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func toBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y", "true":
			return true, true
		case "no", "n", "false":
			return false, true
		}
	}
	return false, false
}

// toOption resolves a raw select response to one of the configured options:
// an exact option value or a 1-based numeric index.
func toOption(raw any, options []string) (string, bool) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, opt := range options {
			if s == opt {
				return opt, true
			}
		}
		if idx, err := strconv.Atoi(s); err == nil {
			if idx >= 1 && idx <= len(options) {
				return options[idx-1], true
			}
		}
	case float64:
		idx := int(v)
		if float64(idx) == v && idx >= 1 && idx <= len(options) {
			return options[idx-1], true
		}
	case int:
		if v >= 1 && v <= len(options) {
			return options[v-1], true
		}
	}
	return "", false
}
