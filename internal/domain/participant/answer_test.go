package participant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswerValue(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKind  AnswerKind
		wantValid bool
	}{
		{"scale number", `{"type":"scale","value":4}`, KindScale, true},
		{"scale numeric string", `{"type":"scale","value":"2"}`, KindScale, true},
		{"scale out of range", `{"type":"scale","value":9}`, KindScale, false},
		{"scale fractional", `{"type":"scale","value":2.5}`, KindUnknown, false},
		{"scale garbage", `{"type":"scale","value":"lots"}`, KindUnknown, false},
		{"multiple choice", `{"type":"multiple_choice","value":"Coffee"}`, KindMultipleChoice, true},
		{"multiple choice non-string", `{"type":"multiple_choice","value":3}`, KindUnknown, false},
		{"short text", `{"type":"short_text","value":"long walks"}`, KindShortText, true},
		{"unknown type", `{"type":"slider","value":1}`, KindUnknown, false},
		{"not json", `scale:4`, KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseAnswerValue([]byte(tt.raw))
			assert.Equal(t, tt.wantKind, v.Kind())
			assert.Equal(t, tt.wantValid, v.Valid())
		})
	}
}

func TestAnswerValue_Accessors(t *testing.T) {
	n, ok := ScaleAnswer(3).Scale()
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = ScaleAnswer(3).Label()
	assert.False(t, ok)

	label, ok := MultipleChoiceAnswer("Tea").Label()
	assert.True(t, ok)
	assert.Equal(t, "Tea", label)

	text, ok := ShortTextAnswer("hi").Text()
	assert.True(t, ok)
	assert.Equal(t, "hi", text)

	_, ok = AnswerValue{}.Scale()
	assert.False(t, ok)
}

func TestAnswerValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(ScaleAnswer(5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"scale","value":5}`, string(data))

	// The stored shape must be readable by the parser.
	parsed := ParseAnswerValue(data)
	n, ok := parsed.Scale()
	require.True(t, ok)
	assert.Equal(t, 5, n)
}
