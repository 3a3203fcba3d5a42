package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parley-sh/parley/pkg/schema"
)

func stateWithTransitions(transitions map[string]string) *schema.State {
	return &schema.State{Type: schema.StateTypeResponse, Transitions: transitions}
}

func TestResolveTransition_DefaultAlwaysWins(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"default": "next",
		"yes":     "approved",
	})

	target, ok := ResolveTransition(state, "yes")
	assert.True(t, ok)
	assert.Equal(t, "next", target)
}

func TestResolveTransition_ExactMatch(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"yes": "approved",
		"no":  "denied",
	})

	target, ok := ResolveTransition(state, "yes")
	assert.True(t, ok)
	assert.Equal(t, "approved", target)

	target, ok = ResolveTransition(state, "no")
	assert.True(t, ok)
	assert.Equal(t, "denied", target)
}

func TestResolveTransition_ExactMatchOnNumber(t *testing.T) {
	state := stateWithTransitions(map[string]string{"42": "answer"})

	// A whole float stringifies without a fraction.
	target, ok := ResolveTransition(state, float64(42))
	assert.True(t, ok)
	assert.Equal(t, "answer", target)
}

func TestResolveTransition_ExactMatchOnBool(t *testing.T) {
	state := stateWithTransitions(map[string]string{"true": "on", "false": "off"})

	target, ok := ResolveTransition(state, true)
	assert.True(t, ok)
	assert.Equal(t, "on", target)
}

func TestResolveTransition_Regex(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"/^err/": "failed",
		"ok":     "done",
	})

	target, ok := ResolveTransition(state, "error: boom")
	assert.True(t, ok)
	assert.Equal(t, "failed", target)

	_, ok = ResolveTransition(state, "fine")
	assert.False(t, ok)
}

func TestResolveTransition_ExactBeatsRegex(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"/e.*/": "by_regex",
		"error": "by_exact",
	})

	target, ok := ResolveTransition(state, "error")
	assert.True(t, ok)
	assert.Equal(t, "by_exact", target)
}

func TestResolveTransition_Wildcard(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"error*": "failed",
		"*_done": "finished",
	})

	target, ok := ResolveTransition(state, "error code 7")
	assert.True(t, ok)
	assert.Equal(t, "failed", target)

	target, ok = ResolveTransition(state, "upload_done")
	assert.True(t, ok)
	assert.Equal(t, "finished", target)

	// Anchored at both ends: a wildcard pattern is not a substring match.
	_, ok = ResolveTransition(state, "an error happened")
	assert.False(t, ok)
}

func TestResolveTransition_RegexBeatsWildcard(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"/^e.*/": "by_regex",
		"e*":     "by_wildcard",
	})

	target, ok := ResolveTransition(state, "everything")
	assert.True(t, ok)
	assert.Equal(t, "by_regex", target)
}

func TestResolveTransition_NoTransitions(t *testing.T) {
	state := stateWithTransitions(nil)
	_, ok := ResolveTransition(state, "anything")
	assert.False(t, ok)
}

func TestResolveTransition_NoMatch(t *testing.T) {
	state := stateWithTransitions(map[string]string{"yes": "approved"})
	_, ok := ResolveTransition(state, "maybe")
	assert.False(t, ok)
}

func TestResolveTransition_InvalidRegexSkipped(t *testing.T) {
	state := stateWithTransitions(map[string]string{
		"/[unclosed/": "broken",
		"x*":          "wild",
	})

	target, ok := ResolveTransition(state, "xyz")
	assert.True(t, ok)
	assert.Equal(t, "wild", target)
}

func TestResolveTransition_DeterministicPatternOrder(t *testing.T) {
	// Both regexes match; the lexicographically smaller trigger wins.
	state := stateWithTransitions(map[string]string{
		"/a.*/": "first",
		"/ab.*/": "second",
	})

	target, ok := ResolveTransition(state, "abc")
	assert.True(t, ok)
	assert.Equal(t, "first", target)
}
