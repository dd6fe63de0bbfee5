package moverule

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAttribute   = errors.New("invalid_attribute")
	ErrInvalidOperator    = errors.New("invalid_operator")
	ErrDuplicateAttribute = errors.New("duplicate_attribute")
	ErrInvalidThreshold   = errors.New("invalid_threshold")
	ErrInvalidRange       = errors.New("invalid_range")
	ErrEmptyRange         = errors.New("empty_range")
	ErrNegativeValue      = errors.New("negative_value")
)

// ValidationError describes one malformed rule in a list.
type ValidationError struct {
	Index     int       `json:"index"`
	Attribute Attribute `json:"attribute"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`

	err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("rule %d (%s): %s", e.Index, e.Attribute, e.Message)
}

func (e ValidationError) Unwrap() error {
	return e.err
}

// ValidationErrors collects every problem found in a rule list.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "invalid move rules"
	}
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, e.Error())
	}
	return "invalid move rules: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) Unwrap() []error {
	if v == nil {
		return nil
	}
	out := make([]error, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e)
	}
	return out
}

func (v *ValidationErrors) add(index int, attr Attribute, err error, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{
		Index:     index,
		Attribute: attr,
		Code:      err.Error(),
		Message:   fmt.Sprintf(format, args...),
		err:       err,
	})
}

// Validate rejects rule lists that must not be persisted. It returns nil or
// a *ValidationErrors naming each offending rule.
func Validate(rules []Rule) error {
	verr := &ValidationErrors{}
	seen := make(map[Attribute]int, len(rules))

	for i, rule := range rules {
		if !rule.Attribute.Valid() {
			verr.add(i, rule.Attribute, ErrInvalidAttribute, "unknown attribute %q", rule.Attribute)
		} else if first, ok := seen[rule.Attribute]; ok {
			verr.add(i, rule.Attribute, ErrDuplicateAttribute, "attribute %s is already used by rule %d", rule.Attribute, first)
		} else {
			seen[rule.Attribute] = i
		}

		switch rule.Operator {
		case OperatorGTE:
			validateThreshold(verr, i, rule)
		case OperatorBetween:
			validateRange(verr, i, rule)
		default:
			verr.add(i, rule.Attribute, ErrInvalidOperator, "unknown operator %q", rule.Operator)
		}
	}

	if len(verr.Errors) == 0 {
		return nil
	}
	return verr
}

func validateThreshold(verr *ValidationErrors, i int, rule Rule) {
	if rule.Value.Range != nil || rule.Value.Threshold == nil {
		verr.add(i, rule.Attribute, ErrInvalidThreshold, "gte requires a single threshold value")
		return
	}
	if *rule.Value.Threshold < 0 {
		verr.add(i, rule.Attribute, ErrNegativeValue, "threshold must not be negative")
	}
}

func validateRange(verr *ValidationErrors, i int, rule Rule) {
	rng := rule.Value.Range
	if rng == nil {
		if rule.Value.Threshold != nil {
			verr.add(i, rule.Attribute, ErrInvalidRange, "between requires a range value")
			return
		}
		verr.add(i, rule.Attribute, ErrEmptyRange, "between requires a min or a max")
		return
	}
	if rng.Min == nil && rng.Max == nil {
		verr.add(i, rule.Attribute, ErrEmptyRange, "between requires a min or a max")
		return
	}
	if (rng.Min != nil && *rng.Min < 0) || (rng.Max != nil && *rng.Max < 0) {
		verr.add(i, rule.Attribute, ErrNegativeValue, "range bounds must not be negative")
		return
	}
	if rng.Min != nil && rng.Max != nil && *rng.Min >= *rng.Max {
		verr.add(i, rule.Attribute, ErrInvalidRange, "min %d must be less than max %d", *rng.Min, *rng.Max)
	}
}
