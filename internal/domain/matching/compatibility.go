package matching

import (
	"math"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// scaleSpan is the largest possible distance between two scale answers.
const scaleSpan = float64(participant.ScaleMax - participant.ScaleMin)

// Score computes questionnaire compatibility between two participants for
// one cycle-set. The result is in [0, 1]; 0 when no question could be
// compared.
//
// Per question present on both sides:
//   - scale vs scale: 1 - |a-b|/4
//   - multiple choice vs multiple choice: 1 on identical label, else 0
//
// Short text, mismatched kinds and malformed values are not counted at all.
func Score(a, b []participant.Answer, cycleSetID participant.CycleSetID) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	other := make(map[participant.QuestionID]participant.AnswerValue, len(b))
	for _, ans := range b {
		if ans.CycleSetID != cycleSetID {
			continue
		}
		if _, dup := other[ans.QuestionID]; dup {
			continue
		}
		other[ans.QuestionID] = ans.Value
	}

	var (
		sum     float64
		counted int
	)
	for _, ans := range a {
		if ans.CycleSetID != cycleSetID {
			continue
		}
		bv, ok := other[ans.QuestionID]
		if !ok {
			continue
		}
		s, ok := questionScore(ans.Value, bv)
		if !ok {
			continue
		}
		sum += s
		counted++
	}

	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// questionScore scores one question. ok is false when the pair of values
// is not comparable.
func questionScore(a, b participant.AnswerValue) (float64, bool) {
	if !a.Valid() || !b.Valid() || a.Kind() != b.Kind() {
		return 0, false
	}

	switch a.Kind() {
	case participant.KindScale:
		va, _ := a.Scale()
		vb, _ := b.Scale()
		return (scaleSpan - math.Abs(float64(va-vb))) / scaleSpan, true
	case participant.KindMultipleChoice:
		la, _ := a.Label()
		lb, _ := b.Label()
		if la == lb {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
