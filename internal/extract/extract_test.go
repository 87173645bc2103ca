package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Score float64  `json:"compliance_score"`
	Items []string `json:"items"`
}

func TestDecodeLabeledFence(t *testing.T) {
	raw := "Here is my assessment:\n```json\n{\"compliance_score\": 0.9, \"items\": [\"a\"]}\n```\nLet me know."
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 0.9, got.Score)
	assert.Equal(t, []string{"a"}, got.Items)
}

func TestDecodePlainFence(t *testing.T) {
	raw := "```\n{\"compliance_score\": 0.5, \"items\": []}\n```"
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 0.5, got.Score)
}

func TestDecodeFenceWithLanguageTag(t *testing.T) {
	raw := "```javascript\n{\"compliance_score\": 0.25, \"items\": []}\n```"
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 0.25, got.Score)
}

func TestDecodeBraceScanInsideProse(t *testing.T) {
	raw := `Sure! The result is {"compliance_score": 0.7, "items": ["x", "y"]} as requested.`
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 0.7, got.Score)
	assert.Len(t, got.Items, 2)
}

func TestDecodeBraceScanSkipsObjectsWithoutMarker(t *testing.T) {
	raw := `{"unrelated": true} and then {"compliance_score": 0.3, "items": []}`
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 0.3, got.Score)
}

func TestDecodeBraceScanHandlesBracesInStrings(t *testing.T) {
	raw := `{"compliance_score": 0.4, "items": ["curly } brace", "escaped \" quote"]}`
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 0.4, got.Score)
	assert.Equal(t, "curly } brace", got.Items[0])
}

func TestDecodeWholeText(t *testing.T) {
	raw := `{"compliance_score": 1.5, "items": []}`
	var got payload
	require.True(t, Decode(raw, "compliance_score", &got))
	assert.Equal(t, 1.5, got.Score) // clamping is the caller's job
}

func TestDecodeTotalOverGarbage(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"no json here at all",
		"```json\n{\"compliance_score\": 0.2, \"items\": [\"trunc", // truncated fence
		"{\"compliance_score\": ",                                  // truncated object
		"{{{{",
		"```",
		strings.Repeat("{\"a\":", 50),
	}
	for _, raw := range inputs {
		var got payload
		ok := Decode(raw, "compliance_score", &got)
		assert.False(t, ok, "input %q should not decode", raw)
		assert.Zero(t, got.Score, "input %q must leave out untouched", raw)
		assert.Nil(t, got.Items, "input %q must leave out untouched", raw)
	}
}

func TestDecodeFailedCandidateDoesNotLeakPartialFill(t *testing.T) {
	// Valid JSON whose score field decodes fine before the items field
	// type-mismatches. The failed attempt must not leave the score behind.
	raw := "```json\n{\"compliance_score\": 0.9, \"items\": \"oops\"}\n```"
	var got payload
	require.False(t, Decode(raw, "compliance_score", &got))
	assert.Zero(t, got.Score)
	assert.Nil(t, got.Items)
}

func TestDecodeNilAndNonPointer(t *testing.T) {
	assert.False(t, Decode(`{"a":1}`, "", nil))
	var got payload
	assert.False(t, Decode(`{"a":1}`, "", got)) //nolint:govet // non-pointer on purpose
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-3))
	assert.Equal(t, 1.0, Clamp01(42))
	assert.Equal(t, 0.5, Clamp01(0.5))
	assert.Equal(t, 100.0, ClampRange(250, 0, 100))
	assert.Equal(t, 0.0, ClampRange(-1, 0, 100))
}
