package participant

import (
	"encoding/json"
	"strconv"
	"strings"
)

// QuestionID identifies a question in the question bank.
type QuestionID string

// CycleSetID identifies the weekly question set an answer was given for.
type CycleSetID string

// IsValid reports whether the cycle-set id is non-empty.
func (c CycleSetID) IsValid() bool {
	return strings.TrimSpace(string(c)) != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER VALUE
// ══════════════════════════════════════════════════════════════════════════════

// AnswerKind tags the payload carried by an AnswerValue.
type AnswerKind string

const (
	KindUnknown        AnswerKind = ""
	KindScale          AnswerKind = "scale"
	KindMultipleChoice AnswerKind = "multiple_choice"
	KindShortText      AnswerKind = "short_text"
)

// Scale bounds for KindScale answers.
const (
	ScaleMin = 1
	ScaleMax = 5
)

// AnswerValue is a tagged answer payload. Exactly one of the payload
// fields is meaningful, selected by kind.
type AnswerValue struct {
	kind  AnswerKind
	scale int
	text  string
}

// ScaleAnswer builds a scale answer. Values outside 1..5 are kept as-is and
// reported by Valid as unscoreable.
func ScaleAnswer(v int) AnswerValue {
	return AnswerValue{kind: KindScale, scale: v}
}

// MultipleChoiceAnswer builds a multiple choice answer with the chosen label.
func MultipleChoiceAnswer(label string) AnswerValue {
	return AnswerValue{kind: KindMultipleChoice, text: label}
}

// ShortTextAnswer builds a free text answer.
func ShortTextAnswer(text string) AnswerValue {
	return AnswerValue{kind: KindShortText, text: text}
}

// Kind returns the variant tag.
func (v AnswerValue) Kind() AnswerKind {
	return v.kind
}

// Scale returns the scale value, or false for other kinds.
func (v AnswerValue) Scale() (int, bool) {
	if v.kind != KindScale {
		return 0, false
	}
	return v.scale, true
}

// Label returns the chosen option, or false for other kinds.
func (v AnswerValue) Label() (string, bool) {
	if v.kind != KindMultipleChoice {
		return "", false
	}
	return v.text, true
}

// Text returns the free text, or false for other kinds.
func (v AnswerValue) Text() (string, bool) {
	if v.kind != KindShortText {
		return "", false
	}
	return v.text, true
}

// Valid reports whether the payload is well formed for its kind.
func (v AnswerValue) Valid() bool {
	switch v.kind {
	case KindScale:
		return v.scale >= ScaleMin && v.scale <= ScaleMax
	case KindMultipleChoice, KindShortText:
		return true
	default:
		return false
	}
}

// storedAnswer is the JSON shape kept in the answers table:
// {"type": "scale", "value": 4}.
type storedAnswer struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ParseAnswerValue decodes a stored answer payload. Malformed payloads
// decode to an unknown value instead of failing, so one corrupt row only
// makes its own question unscoreable.
func ParseAnswerValue(raw []byte) AnswerValue {
	var s storedAnswer
	if err := json.Unmarshal(raw, &s); err != nil {
		return AnswerValue{}
	}

	switch AnswerKind(s.Type) {
	case KindScale:
		n, ok := decodeScale(s.Value)
		if !ok {
			return AnswerValue{}
		}
		return ScaleAnswer(n)
	case KindMultipleChoice:
		label, ok := decodeString(s.Value)
		if !ok {
			return AnswerValue{}
		}
		return MultipleChoiceAnswer(label)
	case KindShortText:
		text, _ := decodeString(s.Value)
		return ShortTextAnswer(text)
	default:
		return AnswerValue{}
	}
}

// MarshalJSON encodes the value in the stored answer shape.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch v.kind {
	case KindScale:
		value = v.scale
	case KindMultipleChoice, KindShortText:
		value = v.text
	}
	return json.Marshal(map[string]interface{}{
		"type":  string(v.kind),
		"value": value,
	})
}

// decodeScale accepts both 3 and "3"; the web client has written either.
func decodeScale(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER
// ══════════════════════════════════════════════════════════════════════════════

// Answer is one participant's answer to one question of a weekly set.
type Answer struct {
	ParticipantID ID
	QuestionID    QuestionID
	CycleSetID    CycleSetID
	Value         AnswerValue
}
