package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	wf := &schema.Workflow{
		Name:    "greeter",
		Initial: "greet",
		States: map[string]*schema.State{
			"greet": {
				Type:        schema.StateTypeResponse,
				Template:    "Hello!",
				Transitions: map[string]string{"default": "check"},
			},
			"check": {
				Type:      schema.StateTypeConditional,
				Condition: "mood == happy",
				OnTrue:    "done",
				OnFalse:   "greet",
			},
			"done": {
				Type:     schema.StateTypeResponse,
				Template: "Bye.",
			},
		},
	}

	out := RenderMermaid(wf)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% greeter")
	assert.Contains(t, out, "__start((start)) --> greet")
	assert.Contains(t, out, `check{"check"}`)
	assert.Contains(t, out, `greet["greet"]`)
	assert.Contains(t, out, "greet -->|default| check")
	assert.Contains(t, out, "check -->|true| done")
	assert.Contains(t, out, "check -->|false| greet")
}

func TestRenderMermaid_ShapesByKind(t *testing.T) {
	wf := &schema.Workflow{
		Initial: "fan",
		States: map[string]*schema.State{
			"fan": {
				Type:     schema.StateTypeParallel,
				Branches: []string{"ask", "draft"},
			},
			"ask": {
				Type:        schema.StateTypeElicitation,
				Elicitation: &schema.ElicitationSpec{Type: schema.ElicitText, Prompt: "?"},
			},
			"draft": {
				Type:     schema.StateTypeSampling,
				Sampling: &schema.SamplingSpec{Prompt: "write"},
			},
			"again": {
				Type:      schema.StateTypeLoop,
				Condition: "n < 3",
				Body:      "ask",
			},
		},
	}

	out := RenderMermaid(wf)

	assert.Contains(t, out, `fan[["fan"]]`)
	assert.Contains(t, out, `ask(["ask"])`)
	assert.Contains(t, out, `draft{{"draft"}}`)
	assert.Contains(t, out, `again[["again"]]`)
	assert.Contains(t, out, "fan -->|branch| ask")
	assert.Contains(t, out, "fan -->|branch| draft")
	assert.Contains(t, out, "again -->|body| ask")
}

func TestRenderMermaid_Deterministic(t *testing.T) {
	wf := &schema.Workflow{
		Initial: "a",
		States: map[string]*schema.State{
			"a": {Type: schema.StateTypeResponse, Transitions: map[string]string{
				"x": "b", "default": "b", "*": "c",
			}},
			"b": {Type: schema.StateTypeResponse},
			"c": {Type: schema.StateTypeResponse},
		},
	}

	first := RenderMermaid(wf)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, RenderMermaid(wf))
	}
}

func TestSafeID(t *testing.T) {
	assert.Equal(t, "brew_tea", safeID("brew-tea"))
	assert.Equal(t, "a_b_c", safeID("a.b c"))
}
