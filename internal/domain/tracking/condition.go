package tracking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ConditionKind enumerates the recognized display-condition operators.
type ConditionKind int

const (
	CondEquals ConditionKind = iota
	CondNotEquals
	CondGreaterThan
	CondGreaterOrEqual
	CondLessThan
	CondLessOrEqual
	CondInSet
	CondNotInSet
	CondResponseExists
)

var conditionKinds = map[string]ConditionKind{
	"eq":                     CondEquals,
	"not_eq":                 CondNotEquals,
	"gt":                     CondGreaterThan,
	"gte":                    CondGreaterOrEqual,
	"lt":                     CondLessThan,
	"lte":                    CondLessOrEqual,
	"in":                     CondInSet,
	"not_in":                 CondNotInSet,
	"parent_response_exists": CondResponseExists,
}

// DisplayCondition is the parsed form of a question's display_condition
// column: a single-key JSON object such as {"eq":"o_yes"},
// {"in":["o_mild","o_severe"]} or {"parent_response_exists":true}.
type DisplayCondition struct {
	Kind   ConditionKind
	Value  interface{}   // eq, not_eq and numeric comparisons
	Set    []interface{} // in, not_in
	Exists bool          // parent_response_exists
}

// ParseDisplayCondition parses the raw JSON condition. Callers treat a
// parse error as "always visible" (fail-open).
func ParseDisplayCondition(raw string) (*DisplayCondition, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("parse display condition: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("display condition must have exactly one key, got %d", len(obj))
	}
	for key, val := range obj {
		kind, ok := conditionKinds[key]
		if !ok {
			return nil, fmt.Errorf("unrecognized display condition %q", key)
		}
		cond := &DisplayCondition{Kind: kind}
		switch kind {
		case CondResponseExists:
			if err := json.Unmarshal(val, &cond.Exists); err != nil {
				return nil, fmt.Errorf("parse parent_response_exists: %w", err)
			}
		case CondInSet, CondNotInSet:
			if err := json.Unmarshal(val, &cond.Set); err != nil {
				return nil, fmt.Errorf("parse %s set: %w", key, err)
			}
		default:
			if err := json.Unmarshal(val, &cond.Value); err != nil {
				return nil, fmt.Errorf("parse %s value: %w", key, err)
			}
		}
		return cond, nil
	}
	return nil, fmt.Errorf("empty display condition")
}

// Matches evaluates the condition against the parent question's decoded
// answer (nil when absent, scalar, or []interface{} for multi-select).
// A missing answer fails every condition except parent_response_exists,
// which tests presence explicitly.
func (c *DisplayCondition) Matches(answer interface{}) bool {
	if c.Kind == CondResponseExists {
		if c.Exists {
			return answerPresent(answer)
		}
		return !answerPresent(answer)
	}
	if !answerPresent(answer) {
		return false
	}
	switch c.Kind {
	case CondEquals:
		return answerContains(answer, c.Value)
	case CondNotEquals:
		return !answerContains(answer, c.Value)
	case CondGreaterThan, CondGreaterOrEqual, CondLessThan, CondLessOrEqual:
		a, okA := toFloat(answer)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Kind {
		case CondGreaterThan:
			return a > b
		case CondGreaterOrEqual:
			return a >= b
		case CondLessThan:
			return a < b
		default:
			return a <= b
		}
	case CondInSet:
		for _, v := range c.Set {
			if answerContains(answer, v) {
				return true
			}
		}
		return false
	case CondNotInSet:
		for _, v := range c.Set {
			if answerContains(answer, v) {
				return false
			}
		}
		return true
	}
	return false
}

// answerPresent reports whether a decoded answer counts as "answered":
// non-nil, non-blank string, non-empty array.
func answerPresent(answer interface{}) bool {
	switch v := answer.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []interface{}:
		return len(v) > 0
	default:
		return true
	}
}

// answerContains is scalar equality, or membership when the answer is
// an array.
func answerContains(answer, want interface{}) bool {
	if arr, ok := answer.([]interface{}); ok {
		for _, el := range arr {
			if scalarEqual(el, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(answer, want)
}

// scalarEqual compares numerically when both sides parse as numbers,
// otherwise by string form, so "3" matches 3 and codes match exactly.
func scalarEqual(a, b interface{}) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
