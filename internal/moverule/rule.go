package moverule

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Rule moves a partner into the owning group once the partner's value for
// Attribute satisfies Operator against Value.
type Rule struct {
	Attribute Attribute `json:"attribute"`
	Operator  Operator  `json:"operator"`
	Value     Value     `json:"value"`
}

// Range bounds a between rule. A nil Min counts as zero and a nil Max is
// unbounded.
type Range struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// Value is either a single threshold (gte) or a range (between).
// On the wire a threshold is a bare number and a range is an object.
type Value struct {
	Threshold *int64
	Range     *Range
}

// Threshold builds a single-threshold value.
func Threshold(v int64) Value {
	return Value{Threshold: &v}
}

// Between builds a range value; nil bounds are left open.
func Between(min, max *int64) Value {
	return Value{Range: &Range{Min: min, Max: max}}
}

// Int64 returns a pointer to v, for building range bounds.
func Int64(v int64) *int64 {
	return &v
}

// GTE is shorthand for a gte rule.
func GTE(attr Attribute, threshold int64) Rule {
	return Rule{Attribute: attr, Operator: OperatorGTE, Value: Threshold(threshold)}
}

// BetweenRule is shorthand for a between rule.
func BetweenRule(attr Attribute, min, max *int64) Rule {
	return Rule{Attribute: attr, Operator: OperatorBetween, Value: Between(min, max)}
}

func (v Value) IsRange() bool {
	return v.Range != nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Range != nil:
		return json.Marshal(v.Range)
	case v.Threshold != nil:
		return json.Marshal(*v.Threshold)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = Value{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		var r Range
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode range value: %w", err)
		}
		v.Range = &r
		return nil
	}
	var threshold int64
	if err := json.Unmarshal(data, &threshold); err != nil {
		return fmt.Errorf("decode threshold value: %w", err)
	}
	v.Threshold = &threshold
	return nil
}

// Clone returns a deep copy so callers can hold rules without sharing bounds.
func (r Rule) Clone() Rule {
	out := Rule{Attribute: r.Attribute, Operator: r.Operator}
	if r.Value.Threshold != nil {
		out.Value.Threshold = Int64(*r.Value.Threshold)
	}
	if r.Value.Range != nil {
		rng := Range{}
		if r.Value.Range.Min != nil {
			rng.Min = Int64(*r.Value.Range.Min)
		}
		if r.Value.Range.Max != nil {
			rng.Max = Int64(*r.Value.Range.Max)
		}
		out.Value.Range = &rng
	}
	return out
}

// CloneRules deep copies a rule list.
func CloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	for i, rule := range rules {
		out[i] = rule.Clone()
	}
	return out
}
