package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/pkg/schema"
)

func greeterWorkflow() *schema.Workflow {
	return &schema.Workflow{
		Name:    "greeter",
		Initial: "greet",
		States: map[string]*schema.State{
			"greet": {
				Type:        schema.StateTypeResponse,
				Template:    "Hello {name}!",
				Transitions: map[string]string{"default": "done"},
			},
			"done": {
				Type:     schema.StateTypeResponse,
				Template: "Bye.",
			},
		},
	}
}

func TestLibrary_DefineAndGet(t *testing.T) {
	lib := newWorkflowLibrary()

	require.NoError(t, lib.Define("greeter", greeterWorkflow()))

	wf, err := lib.Get("greeter")
	require.NoError(t, err)
	assert.Equal(t, "greet", wf.Initial)
}

func TestLibrary_DefineReplaces(t *testing.T) {
	lib := newWorkflowLibrary()
	require.NoError(t, lib.Define("greeter", greeterWorkflow()))

	updated := greeterWorkflow()
	updated.Initial = "done"
	require.NoError(t, lib.Define("greeter", updated))

	wf, err := lib.Get("greeter")
	require.NoError(t, err)
	assert.Equal(t, "done", wf.Initial)
}

func TestLibrary_DefineRejectsInvalid(t *testing.T) {
	lib := newWorkflowLibrary()

	broken := greeterWorkflow()
	broken.States["greet"].Transitions["default"] = "nowhere"

	err := lib.Define("greeter", broken)
	require.Error(t, err)

	_, err = lib.Get("greeter")
	assert.Error(t, err)
}

func TestLibrary_DefineEmptyName(t *testing.T) {
	lib := newWorkflowLibrary()
	assert.Error(t, lib.Define("", greeterWorkflow()))
}

func TestLibrary_GetMissing(t *testing.T) {
	lib := newWorkflowLibrary()

	_, err := lib.Get("nope")
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestLibrary_ListSorted(t *testing.T) {
	lib := newWorkflowLibrary()
	require.NoError(t, lib.Define("zeta", greeterWorkflow()))
	require.NoError(t, lib.Define("alpha", greeterWorkflow()))

	entries := lib.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "zeta", entries[1].Name)
	assert.Equal(t, 2, entries[0].States)
}
