package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/pkg/schema"
)

const validYAML = `
name: greeter
initial: greet
maxSteps: 10
states:
  greet:
    type: response
    template: "Hello {name}!"
    transitions:
      default: ask
  ask:
    type: elicitation
    elicitation:
      type: select
      prompt: "Pick one:"
      options: [tea, coffee]
    transitions:
      tea: brew_tea
      coffee: brew_coffee
  brew_tea:
    type: response
    template: "Tea it is."
  brew_coffee:
    type: tool
    tool: brew
    params:
      kind: coffee
`

const validJSON = `{
  "initial": "go",
  "states": {
    "go": {
      "type": "sampling",
      "sampling": {"prompt": "say hi", "temperature": 0.7, "max_tokens": 100}
    }
  }
}`

func TestParseWorkflow_YAML(t *testing.T) {
	wf, err := ParseWorkflow([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "greeter", wf.Name)
	assert.Equal(t, "greet", wf.Initial)
	assert.Equal(t, 10, wf.MaxSteps)
	require.Len(t, wf.States, 4)

	ask := wf.States["ask"]
	require.NotNil(t, ask.Elicitation)
	assert.Equal(t, schema.ElicitSelect, ask.Elicitation.Type)
	assert.Equal(t, []string{"tea", "coffee"}, ask.Elicitation.Options)
	assert.Equal(t, "brew_tea", ask.Transitions["tea"])

	brew := wf.States["brew_coffee"]
	assert.Equal(t, schema.StateTypeTool, brew.Type)
	assert.Equal(t, "coffee", brew.Params["kind"])
}

func TestParseWorkflow_JSON(t *testing.T) {
	wf, err := ParseWorkflow([]byte(validJSON))
	require.NoError(t, err)

	st := wf.States["go"]
	require.NotNil(t, st.Sampling)
	assert.Equal(t, "say hi", st.Sampling.Prompt)
	require.NotNil(t, st.Sampling.Temperature)
	assert.Equal(t, 0.7, *st.Sampling.Temperature)
	require.NotNil(t, st.Sampling.MaxTokens)
	assert.Equal(t, 100, *st.Sampling.MaxTokens)
}

func TestParseWorkflow_MissingInitial(t *testing.T) {
	_, err := ParseWorkflow([]byte(`states: {a: {type: response}}`))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestParseWorkflow_UnknownStateType(t *testing.T) {
	doc := `
initial: a
states:
  a:
    type: teleport
`
	_, err := ParseWorkflow([]byte(doc))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestParseWorkflow_UnknownField(t *testing.T) {
	doc := `
initial: a
surprise: true
states:
  a:
    type: response
`
	_, err := ParseWorkflow([]byte(doc))
	assert.Error(t, err)
}

func TestParseWorkflow_EmptyStates(t *testing.T) {
	_, err := ParseWorkflow([]byte(`{"initial": "a", "states": {}}`))
	assert.Error(t, err)
}

func TestParseWorkflow_NotYAML(t *testing.T) {
	_, err := ParseWorkflow([]byte("{{{"))
	assert.Error(t, err)
}

func TestParseWorkflow_ViolationNamesLocation(t *testing.T) {
	doc := `{"initial": "a", "states": {"a": {"type": "elicitation", "elicitation": {"type": "text"}}}}`
	_, err := ParseWorkflow([]byte(doc))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	violations, ok := flowErr.Details["violations"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "states/a")
}

func TestLoadWorkflowFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	wf, err := LoadWorkflowFile(path)
	require.NoError(t, err)
	assert.Equal(t, "greet", wf.Initial)
}

func TestLoadWorkflowFile_Missing(t *testing.T) {
	_, err := LoadWorkflowFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}
