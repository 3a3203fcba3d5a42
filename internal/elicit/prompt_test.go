package elicit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/pkg/schema"
)

func f64(v float64) *float64 { return &v }

func TestFormatPrompt_TextSubstitution(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitText, Prompt: "Hi {name}, what's your email?"}
	out := FormatPrompt(spec, map[string]any{"name": "Ada"})
	assert.Equal(t, "Hi Ada, what's your email?", out)
}

func TestFormatPrompt_SelectNumbersOptions(t *testing.T) {
	spec := &schema.ElicitationSpec{
		Type:    schema.ElicitSelect,
		Prompt:  "Pick a size:",
		Options: []string{"small", "medium", "large"},
	}
	out := FormatPrompt(spec, nil)
	assert.Equal(t, "Pick a size:\n  1. small\n  2. medium\n  3. large", out)
}

func TestFormatPrompt_Confirm(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitConfirm, Prompt: "Proceed?"}
	assert.Equal(t, "Proceed? (yes/no)", FormatPrompt(spec, nil))
}

func TestFormatPrompt_NumberBounds(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitNumber, Prompt: "Your age?", Min: f64(18), Max: f64(120)}
	assert.Equal(t, "Your age? (between 18 and 120)", FormatPrompt(spec, nil))

	spec = &schema.ElicitationSpec{Type: schema.ElicitNumber, Prompt: "Quantity?", Min: f64(1)}
	assert.Equal(t, "Quantity? (minimum 1)", FormatPrompt(spec, nil))
}

func TestFormatPrompt_TextPatternHint(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitText, Prompt: "Your email?", Pattern: `^\w+@\w+$`}
	assert.Equal(t, `Your email? (must match ^\w+@\w+$)`, FormatPrompt(spec, nil))
}

func TestValidateResponse_Text(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitText}

	ok, _ := ValidateResponse("anything", spec)
	assert.True(t, ok)

	ok, reason := ValidateResponse(42, spec)
	assert.False(t, ok)
	assert.Contains(t, reason, "text")
}

func TestValidateResponse_TextRequired(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitText, Required: true}

	ok, _ := ValidateResponse("  ", spec)
	assert.False(t, ok)

	ok, _ = ValidateResponse("value", spec)
	assert.True(t, ok)
}

func TestValidateResponse_TextPattern(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitText, Pattern: `^\w+@\w+\.\w+$`}

	ok, _ := ValidateResponse("ada@example.com", spec)
	assert.True(t, ok)

	ok, reason := ValidateResponse("not-an-email", spec)
	assert.False(t, ok)
	assert.Contains(t, reason, "pattern")
}

func TestValidateResponse_TextPatternMatchesWholeValue(t *testing.T) {
	// An unanchored pattern must still match the full value, not a substring.
	spec := &schema.ElicitationSpec{Type: schema.ElicitText, Pattern: `[a-z]+`}

	ok, _ := ValidateResponse("abc", spec)
	assert.True(t, ok)

	ok, reason := ValidateResponse("123abc456", spec)
	assert.False(t, ok)
	assert.Contains(t, reason, "pattern")
}

func TestValidateResponse_NumberBounds(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitNumber, Min: f64(1), Max: f64(10)}

	ok, _ := ValidateResponse(float64(5), spec)
	assert.True(t, ok)

	ok, _ = ValidateResponse("7", spec)
	assert.True(t, ok)

	ok, reason := ValidateResponse(float64(0), spec)
	assert.False(t, ok)
	assert.Contains(t, reason, "at least")

	ok, reason = ValidateResponse(float64(11), spec)
	assert.False(t, ok)
	assert.Contains(t, reason, "at most")

	ok, _ = ValidateResponse("not a number", spec)
	assert.False(t, ok)
}

func TestValidateResponse_NumberRejectsNonFinite(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitNumber, Min: f64(0)}

	for _, raw := range []any{"Inf", "-Inf", "+Inf", "NaN", "nan", math.Inf(1), math.NaN()} {
		ok, reason := ValidateResponse(raw, spec)
		assert.False(t, ok, "expected %v to be rejected", raw)
		assert.Contains(t, reason, "number")
	}
}

func TestValidateResponse_Confirm(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitConfirm}

	for _, raw := range []any{true, false, "yes", "No", "y", "n", "TRUE", "false"} {
		ok, _ := ValidateResponse(raw, spec)
		assert.True(t, ok, "expected %v to validate", raw)
	}

	ok, _ := ValidateResponse("maybe", spec)
	assert.False(t, ok)
}

func TestValidateResponse_Select(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitSelect, Options: []string{"red", "green", "blue"}}

	ok, _ := ValidateResponse("green", spec)
	assert.True(t, ok)

	ok, _ = ValidateResponse("2", spec)
	assert.True(t, ok)

	ok, _ = ValidateResponse(float64(3), spec)
	assert.True(t, ok)

	ok, reason := ValidateResponse("purple", spec)
	assert.False(t, ok)
	assert.Contains(t, reason, "red, green, blue")

	ok, _ = ValidateResponse("0", spec)
	assert.False(t, ok)

	ok, _ = ValidateResponse("4", spec)
	assert.False(t, ok)
}

func TestTransformResponse_Types(t *testing.T) {
	tests := []struct {
		name string
		spec *schema.ElicitationSpec
		raw  any
		want any
	}{
		{"text", &schema.ElicitationSpec{Type: schema.ElicitText}, "hello", "hello"},
		{"number from string", &schema.ElicitationSpec{Type: schema.ElicitNumber}, "3.5", 3.5},
		{"number from float", &schema.ElicitationSpec{Type: schema.ElicitNumber}, float64(7), float64(7)},
		{"confirm from string", &schema.ElicitationSpec{Type: schema.ElicitConfirm}, "yes", true},
		{"confirm from bool", &schema.ElicitationSpec{Type: schema.ElicitConfirm}, false, false},
		{"select by value", &schema.ElicitationSpec{Type: schema.ElicitSelect, Options: []string{"a", "b"}}, "b", "b"},
		{"select by index", &schema.ElicitationSpec{Type: schema.ElicitSelect, Options: []string{"a", "b"}}, "1", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TransformResponse(tt.raw, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransformResponse_Invalid(t *testing.T) {
	spec := &schema.ElicitationSpec{Type: schema.ElicitNumber, Min: f64(0)}

	_, err := TransformResponse("oops", spec)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestValidationRules(t *testing.T) {
	rules := ValidationRules(&schema.ElicitationSpec{Type: schema.ElicitNumber, Min: f64(1), Max: f64(9)})
	assert.Equal(t, []string{"must be a number", "must be at least 1", "must be at most 9"}, rules)

	rules = ValidationRules(&schema.ElicitationSpec{Type: schema.ElicitText, Required: true, Pattern: "^a"})
	assert.Equal(t, []string{"must be text", "must not be blank", "must match pattern ^a"}, rules)

	rules = ValidationRules(&schema.ElicitationSpec{Type: schema.ElicitSelect, Options: []string{"x", "y"}})
	require.Len(t, rules, 2)
	assert.Contains(t, rules[0], "x, y")
}

func TestInstructions(t *testing.T) {
	assert.Contains(t, Instructions(&schema.ElicitationSpec{Type: schema.ElicitConfirm}), "yes or no")
	assert.Contains(t, Instructions(&schema.ElicitationSpec{Type: schema.ElicitSelect}), "1-based")
	assert.Contains(t, Instructions(&schema.ElicitationSpec{Type: schema.ElicitText}), "text")
}

func TestRequestedSchema(t *testing.T) {
	number := RequestedSchema(&schema.ElicitationSpec{Type: schema.ElicitNumber, Min: f64(1), Max: f64(9)})
	props := number["properties"].(map[string]any)
	value := props["value"].(map[string]any)
	assert.Equal(t, "number", value["type"])
	assert.Equal(t, float64(1), value["minimum"])
	assert.Equal(t, float64(9), value["maximum"])

	sel := RequestedSchema(&schema.ElicitationSpec{Type: schema.ElicitSelect, Options: []string{"x", "y"}})
	value = sel["properties"].(map[string]any)["value"].(map[string]any)
	assert.Equal(t, []any{"x", "y"}, value["enum"])

	confirm := RequestedSchema(&schema.ElicitationSpec{Type: schema.ElicitConfirm})
	value = confirm["properties"].(map[string]any)["value"].(map[string]any)
	assert.Equal(t, "boolean", value["type"])

	text := RequestedSchema(&schema.ElicitationSpec{Type: schema.ElicitText, Pattern: "^a", Required: true})
	value = text["properties"].(map[string]any)["value"].(map[string]any)
	assert.Equal(t, "string", value["type"])
	assert.Equal(t, "^a", value["pattern"])
	assert.Equal(t, []any{"value"}, text["required"])
}
