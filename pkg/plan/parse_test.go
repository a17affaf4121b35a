package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawPlan(t *testing.T) {
	raw, err := ParseRawPlan([]byte(`{
		"steps": [
			{"actionId": "greet", "description": "say hi", "parameters": {"name": "Ada"}},
			{"actionId": "report", "parameters": {"query": ["Q", ["select", ["*"]], ["from", "users"]], "limit": 9007199254740993}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, raw.Steps, 2)
	assert.Equal(t, "say hi", raw.Steps[0].Description)
	assert.Equal(t, json.Number("9007199254740993"), raw.Steps[1].Parameters["limit"])

	out := mustResolve(t, raw, testContext())
	assert.False(t, out.HasErrors())
	assert.Equal(t, int64(9007199254740993), out.Steps[1].(*BoundStep).Parameters["limit"])
}

func TestParseRawPlan_Rejects(t *testing.T) {
	for _, doc := range []string{`null`, `{}`, `{"steps": null}`} {
		_, err := ParseRawPlan([]byte(doc))
		assert.ErrorIs(t, err, ErrNilPlan, doc)
	}
	for _, doc := range []string{``, `[`, `{"steps": {}}`, `{"steps": []} {"steps": []}`} {
		_, err := ParseRawPlan([]byte(doc))
		assert.Error(t, err, doc)
	}

	raw, err := ParseRawPlan([]byte(`{"steps": []}`))
	require.NoError(t, err)
	assert.Empty(t, raw.Steps)
}
