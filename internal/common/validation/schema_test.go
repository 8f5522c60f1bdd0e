package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["records"],
  "properties": {
    "records": {"type": "array", "minItems": 1},
    "mode": {"enum": ["raw", "encoded", "auto"]}
  }
}`

func TestSchema_Valid(t *testing.T) {
	s := MustCompile(testSchema)
	res := s.ValidateJSON([]byte(`{"records":[{"gender":"Male"}],"mode":"raw"}`))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestSchema_Violations(t *testing.T) {
	s := MustCompile(testSchema)

	res := s.ValidateInput(map[string]interface{}{"mode": "xml"})
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 2)

	fields := []string{res.Errors[0].Field, res.Errors[1].Field}
	assert.ElementsMatch(t, []string{"(root)", "mode"}, fields)
	assert.Contains(t, res.Error(), "records")
}

func TestSchema_MalformedJSON(t *testing.T) {
	res := MustCompile(testSchema).ValidateJSON([]byte(`{"records":`))
	require.False(t, res.Valid)
	assert.Equal(t, "INVALID_JSON", res.Errors[0].Code)
}

func TestCompile_BadSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}
