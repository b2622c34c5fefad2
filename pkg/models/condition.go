package models

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// ConditionOperator is the comparison applied between a resolved field value
// and the condition's expected value.
type ConditionOperator string

const (
	OperatorEquals         ConditionOperator = "equals"
	OperatorNotEquals      ConditionOperator = "not_equals"
	OperatorContains       ConditionOperator = "contains"
	OperatorNotContains    ConditionOperator = "not_contains"
	OperatorGreaterThan    ConditionOperator = "greater_than"
	OperatorLessThan       ConditionOperator = "less_than"
	OperatorGreaterOrEqual ConditionOperator = "greater_or_equal"
	OperatorLessOrEqual    ConditionOperator = "less_or_equal"
	OperatorIsEmpty        ConditionOperator = "is_empty"
	OperatorIsNotEmpty     ConditionOperator = "is_not_empty"
	OperatorMatches        ConditionOperator = "matches"
	OperatorInList         ConditionOperator = "in_list"
	OperatorNotInList      ConditionOperator = "not_in_list"
)

// ConditionLogic joins a condition with its predecessor when a step carries
// several conditions. The zero value joins with AND.
type ConditionLogic string

const (
	ConditionLogicAnd ConditionLogic = "and"
	ConditionLogicOr  ConditionLogic = "or"
)

// WorkflowCondition compares one field of the evaluation context against an
// expected value. Field uses dot notation to reach nested maps; a missing
// path resolves to null rather than failing.
type WorkflowCondition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value,omitempty"`
	Logic    ConditionLogic    `json:"logic,omitempty"`
}

// Evaluate applies the condition against the given data. Evaluation is
// fail-closed: unknown operators, type mismatches and invalid patterns all
// yield false instead of an error.
func (c *WorkflowCondition) Evaluate(data map[string]any) bool {
	actual := LookupPath(data, c.Field)

	switch c.Operator {
	case OperatorEquals:
		return equalValues(actual, c.Value)
	case OperatorNotEquals:
		return !equalValues(actual, c.Value)
	case OperatorContains:
		return containsValue(actual, c.Value)
	case OperatorNotContains:
		return !containsValue(actual, c.Value)
	case OperatorGreaterThan:
		return compareNumeric(actual, c.Value, func(a, b float64) bool { return a > b })
	case OperatorLessThan:
		return compareNumeric(actual, c.Value, func(a, b float64) bool { return a < b })
	case OperatorGreaterOrEqual:
		return compareNumeric(actual, c.Value, func(a, b float64) bool { return a >= b })
	case OperatorLessOrEqual:
		return compareNumeric(actual, c.Value, func(a, b float64) bool { return a <= b })
	case OperatorIsEmpty:
		return isEmptyValue(actual)
	case OperatorIsNotEmpty:
		return !isEmptyValue(actual)
	case OperatorMatches:
		return matchesPattern(actual, c.Value)
	case OperatorInList:
		list, ok := asList(c.Value)
		if !ok {
			return false
		}

		return listContains(list, actual)
	case OperatorNotInList:
		list, ok := asList(c.Value)
		if !ok {
			return true
		}

		return !listContains(list, actual)
	default:
		return false
	}
}

// EvaluateConditions combines a step's condition list left to right: an "or"
// logic tag closes the current group, and the final result is the AND of all
// groups, each group being the OR of its members. An empty list is true.
//
// For [A(and), B(or), C(and)] this yields A AND (B OR C).
func EvaluateConditions(conditions []*WorkflowCondition, data map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}

	var (
		groups  []bool
		current []bool
	)

	for _, condition := range conditions {
		if condition.Logic == ConditionLogicOr && len(current) > 0 {
			groups = append(groups, anyTrue(current))
			current = nil
		}

		current = append(current, condition.Evaluate(data))
	}

	if len(current) > 0 {
		groups = append(groups, anyTrue(current))
	}

	for _, group := range groups {
		if !group {
			return false
		}
	}

	return true
}

// LookupPath resolves a dot-notation path into nested maps. Missing keys and
// non-map intermediates resolve to nil.
func LookupPath(data map[string]any, path string) any {
	var current any = data

	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = node[part]
		if !ok {
			return nil
		}
	}

	return current
}

func anyTrue(values []bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}

	return false
}

// equalValues compares numerics by value regardless of Go type, so 150 and
// 150.0 are equal after a JSON round trip. Everything else uses deep
// equality without cross-type coercion.
func equalValues(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	actualNum, actualOK := numericValue(actual)
	expectedNum, expectedOK := numericValue(expected)

	if actualOK || expectedOK {
		return actualOK && expectedOK && actualNum == expectedNum
	}

	return reflect.DeepEqual(actual, expected)
}

// containsValue is a substring test for textual actuals and a membership
// test for list actuals. Any other actual type does not contain anything.
func containsValue(actual, value any) bool {
	switch concrete := actual.(type) {
	case string:
		return strings.Contains(concrete, stringify(value))
	default:
		list, ok := asList(actual)
		if !ok {
			return false
		}

		return listContains(list, value)
	}
}

func compareNumeric(actual, value any, compare func(a, b float64) bool) bool {
	actualNum, ok := coerceFloat(actual)
	if !ok {
		return false
	}

	valueNum, ok := coerceFloat(value)
	if !ok {
		return false
	}

	return compare(actualNum, valueNum)
}

func isEmptyValue(actual any) bool {
	if actual == nil {
		return true
	}

	if s, ok := actual.(string); ok {
		return s == ""
	}

	if list, ok := asList(actual); ok {
		return len(list) == 0
	}

	return false
}

func matchesPattern(actual, value any) bool {
	pattern, err := regexp.Compile(stringify(value))
	if err != nil {
		return false
	}

	return pattern.MatchString(stringify(actual))
}

// numericValue accepts native numeric types only. Strings and booleans are
// not numbers for equality purposes.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// coerceFloat additionally accepts numeric strings and booleans, which the
// ordering operators tolerate.
func coerceFloat(v any) (float64, bool) {
	if n, ok := numericValue(v); ok {
		return n, true
	}

	switch concrete := v.(type) {
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(concrete), 64)
		if err != nil {
			return 0, false
		}

		return n, true
	case bool:
		if concrete {
			return 1, true
		}

		return 0, true
	default:
		return 0, false
	}
}

// stringify renders a value for substring and regex matching. Floats print
// without a trailing exponent so JSON-decoded integers read naturally.
func stringify(v any) string {
	switch concrete := v.(type) {
	case nil:
		return ""
	case string:
		return concrete
	case float64:
		return strconv.FormatFloat(concrete, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(concrete), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}

	if list, ok := v.([]any); ok {
		return list, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}

	return list, true
}

func listContains(list []any, value any) bool {
	for _, item := range list {
		if equalValues(item, value) {
			return true
		}
	}

	return false
}
