package tracking

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxVisibilityDepth bounds the parent-chain walk. The question graph
// is assumed acyclic; a malformed graph degrades to hidden instead of
// recursing without end.
const maxVisibilityDepth = 32

// Evaluator computes question visibility for one item's question set
// given the patient's current answers. Results are memoized per
// evaluator, so build a fresh one per evaluation pass.
type Evaluator struct {
	questions map[uuid.UUID]*Question
	options   map[uuid.UUID][]*ResponseOption // active options by question
	answers   map[uuid.UUID]string            // raw stored answers by question
	memo      map[uuid.UUID]bool
	logger    zerolog.Logger
}

func NewEvaluator(questions []*Question, options map[uuid.UUID][]*ResponseOption, answers map[uuid.UUID]string, logger zerolog.Logger) *Evaluator {
	qs := make(map[uuid.UUID]*Question, len(questions))
	for _, q := range questions {
		qs[q.ID] = q
	}
	return &Evaluator{
		questions: qs,
		options:   options,
		answers:   answers,
		memo:      make(map[uuid.UUID]bool),
		logger:    logger,
	}
}

// IsVisible reports whether the question should currently be shown: its
// whole parent chain is visible and each display condition is satisfied
// by the parent's answer.
func (e *Evaluator) IsVisible(questionID uuid.UUID) bool {
	return e.visible(questionID, 0)
}

func (e *Evaluator) visible(questionID uuid.UUID, depth int) bool {
	if v, ok := e.memo[questionID]; ok {
		return v
	}
	if depth > maxVisibilityDepth {
		e.logger.Warn().
			Str("question_id", questionID.String()).
			Msg("visibility recursion depth exceeded, hiding question")
		return false
	}
	q, ok := e.questions[questionID]
	if !ok {
		return false
	}
	v := e.evaluate(q, depth)
	e.memo[questionID] = v
	return v
}

func (e *Evaluator) evaluate(q *Question, depth int) bool {
	if q.ParentQuestionID == nil {
		return true
	}
	if !e.visible(*q.ParentQuestionID, depth+1) {
		return false
	}
	if q.DisplayCondition == nil || strings.TrimSpace(*q.DisplayCondition) == "" {
		return true
	}
	cond, err := ParseDisplayCondition(*q.DisplayCondition)
	if err != nil {
		// Fail open: a malformed condition must not hide authored questions.
		e.logger.Warn().Err(err).
			Str("question_id", q.ID.String()).
			Msg("malformed display condition")
		return true
	}
	return cond.Matches(e.parentAnswer(*q.ParentQuestionID))
}

var optionBackedTypes = map[string]bool{
	TypeBoolean: true,
	TypeMCQ:     true,
	TypeMSQ:     true,
}

// parentAnswer decodes the parent's stored answer and, for
// option-backed question types, resolves legacy free-text answers to
// option codes so conditions authored against codes still match.
func (e *Evaluator) parentAnswer(parentID uuid.UUID) interface{} {
	raw, ok := e.answers[parentID]
	if !ok {
		return nil
	}
	answer := decodeAnswer(raw)
	parent, ok := e.questions[parentID]
	if !ok || !optionBackedTypes[parent.Type] {
		return answer
	}
	switch v := answer.(type) {
	case string:
		return e.resolveCode(parentID, v)
	case []interface{}:
		resolved := make([]interface{}, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				resolved = append(resolved, e.resolveCode(parentID, s))
			} else {
				resolved = append(resolved, el)
			}
		}
		return resolved
	default:
		return answer
	}
}

// resolveCode maps option text to its code, case-insensitively. Answers
// that are already codes, or match no option, pass through unchanged.
func (e *Evaluator) resolveCode(questionID uuid.UUID, answer string) string {
	for _, opt := range e.options[questionID] {
		if strings.EqualFold(opt.Text, answer) {
			return opt.Code
		}
	}
	return answer
}
