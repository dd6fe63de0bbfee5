package moverule

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedRules(t *testing.T) {
	rules := []Rule{
		GTE(AttributeTotalLeads, 100),
		BetweenRule(AttributeTotalSaleAmount, Int64(0), Int64(5000)),
		BetweenRule(AttributeTotalConversions, Int64(5), nil),
		BetweenRule(AttributeTotalCommissions, nil, Int64(10000)),
	}
	assert.NoError(t, Validate(rules))
}

func TestValidateEmptyListIsValid(t *testing.T) {
	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate([]Rule{}))
}

func TestValidateRejectsDuplicateAttribute(t *testing.T) {
	rules := []Rule{
		GTE(AttributeTotalLeads, 100),
		BetweenRule(AttributeTotalLeads, Int64(10), Int64(20)),
	}
	err := Validate(rules)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateAttribute))

	var verr *ValidationErrors
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, 1, verr.Errors[0].Index)
	assert.Equal(t, AttributeTotalLeads, verr.Errors[0].Attribute)
	assert.Equal(t, "duplicate_attribute", verr.Errors[0].Code)
	assert.Contains(t, err.Error(), "totalLeads")
}

func TestValidateRejectsInvertedOrEmptySpan(t *testing.T) {
	cases := []struct {
		name string
		min  int64
		max  int64
	}{
		{name: "inverted", min: 10, max: 5},
		{name: "equal bounds", min: 5000, max: 5000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]Rule{BetweenRule(AttributeTotalSaleAmount, Int64(tc.min), Int64(tc.max))})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRange))
		})
	}
}

func TestValidateBetweenBounds(t *testing.T) {
	err := Validate([]Rule{BetweenRule(AttributeTotalConversions, nil, nil)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyRange))

	err = Validate([]Rule{{Attribute: AttributeTotalConversions, Operator: OperatorBetween}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyRange))

	assert.NoError(t, Validate([]Rule{BetweenRule(AttributeTotalConversions, Int64(1), nil)}))
	assert.NoError(t, Validate([]Rule{BetweenRule(AttributeTotalConversions, nil, Int64(1))}))
}

func TestValidateStructuralChecks(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		want error
	}{
		{name: "unknown attribute", rule: GTE(Attribute("totalClicks"), 1), want: ErrInvalidAttribute},
		{name: "unknown operator", rule: Rule{Attribute: AttributeTotalLeads, Operator: "lte", Value: Threshold(1)}, want: ErrInvalidOperator},
		{name: "gte without value", rule: Rule{Attribute: AttributeTotalLeads, Operator: OperatorGTE}, want: ErrInvalidThreshold},
		{name: "gte with range", rule: Rule{Attribute: AttributeTotalLeads, Operator: OperatorGTE, Value: Between(Int64(1), nil)}, want: ErrInvalidThreshold},
		{name: "between with threshold", rule: Rule{Attribute: AttributeTotalLeads, Operator: OperatorBetween, Value: Threshold(3)}, want: ErrInvalidRange},
		{name: "negative threshold", rule: GTE(AttributeTotalLeads, -1), want: ErrNegativeValue},
		{name: "negative bound", rule: BetweenRule(AttributeTotalLeads, Int64(-5), nil), want: ErrNegativeValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]Rule{tc.rule})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	rules := []Rule{
		BetweenRule(AttributeTotalLeads, Int64(9), Int64(3)),
		GTE(AttributeTotalLeads, 1),
		BetweenRule(AttributeTotalCommissions, nil, nil),
	}
	err := Validate(rules)
	var verr *ValidationErrors
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 3)
	assert.Equal(t, "invalid_range", verr.Errors[0].Code)
	assert.Equal(t, "duplicate_attribute", verr.Errors[1].Code)
	assert.Equal(t, "empty_range", verr.Errors[2].Code)
}

func TestValidateIsStableAcrossJSONRoundTrip(t *testing.T) {
	rules := []Rule{
		GTE(AttributeTotalLeads, 100),
		BetweenRule(AttributeTotalSaleAmount, Int64(0), Int64(5000)),
		BetweenRule(AttributeTotalCommissions, nil, Int64(250)),
	}
	require.NoError(t, Validate(rules))

	raw, err := json.Marshal(rules)
	require.NoError(t, err)

	var decoded []Rule
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, rules, decoded)
	assert.NoError(t, Validate(decoded))
}

func TestValueJSONForms(t *testing.T) {
	var rules []Rule
	raw := `[
		{"attribute":"totalLeads","operator":"gte","value":100},
		{"attribute":"totalSaleAmount","operator":"between","value":{"min":5000}},
		{"attribute":"totalConversions","operator":"between","value":{}}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &rules))
	require.Len(t, rules, 3)

	require.NotNil(t, rules[0].Value.Threshold)
	assert.Equal(t, int64(100), *rules[0].Value.Threshold)
	assert.False(t, rules[0].Value.IsRange())

	require.True(t, rules[1].Value.IsRange())
	assert.Equal(t, int64(5000), *rules[1].Value.Range.Min)
	assert.Nil(t, rules[1].Value.Range.Max)

	err := Validate(rules)
	assert.True(t, errors.Is(err, ErrEmptyRange))

	out, err := json.Marshal(rules[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"attribute":"totalSaleAmount","operator":"between","value":{"min":5000}}`, string(out))
}

func TestValueJSONRejectsFractions(t *testing.T) {
	var rule Rule
	err := json.Unmarshal([]byte(`{"attribute":"totalLeads","operator":"gte","value":1.5}`), &rule)
	assert.Error(t, err)
}
