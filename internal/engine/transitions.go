package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/parley-sh/parley/internal/template"
	"github.com/parley-sh/parley/pkg/schema"
)

// TransitionDefault is the trigger key that always wins when present.
const TransitionDefault = "default"

// ResolveTransition picks the next state for a state's produced result.
// Priority: the "default" key when present, then an exact match on the
// stringified result, then /regex/ keys, then keys with * wildcards
// (anchored at both ends). Returns ok=false when nothing matches, which
// halts the run at this state.
func ResolveTransition(state *schema.State, result any) (string, bool) {
	if len(state.Transitions) == 0 {
		return "", false
	}

	if target, ok := state.Transitions[TransitionDefault]; ok {
		return target, true
	}

	key := template.FormatValue(result)
	if target, ok := state.Transitions[key]; ok {
		return target, true
	}

	// Pattern keys are tried in sorted order so resolution is deterministic
	// regardless of map iteration.
	triggers := make([]string, 0, len(state.Transitions))
	for trigger := range state.Transitions {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)

	for _, trigger := range triggers {
		if isRegexTrigger(trigger) {
			re, err := regexp.Compile(trigger[1 : len(trigger)-1])
			if err != nil {
				continue
			}
			if re.MatchString(key) {
				return state.Transitions[trigger], true
			}
		}
	}

	for _, trigger := range triggers {
		if !strings.Contains(trigger, "*") || isRegexTrigger(trigger) {
			continue
		}
		if re, err := regexp.Compile(wildcardToRegex(trigger)); err == nil && re.MatchString(key) {
			return state.Transitions[trigger], true
		}
	}

	return "", false
}

func isRegexTrigger(trigger string) bool {
	return len(trigger) > 2 && strings.HasPrefix(trigger, "/") && strings.HasSuffix(trigger, "/")
}

// wildcardToRegex converts a * glob into an anchored regular expression.
func wildcardToRegex(pattern string) string {
	parts := strings.Split(pattern, "*")
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = regexp.QuoteMeta(part)
	}
	return "^" + strings.Join(escaped, ".*") + "$"
}
