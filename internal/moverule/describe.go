package moverule

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Describe renders a rule for activity logs and API responses.
func Describe(rule Rule) string {
	label := rule.Attribute.Label()
	switch rule.Operator {
	case OperatorGTE:
		if rule.Value.Threshold == nil {
			return label + " is at least ?"
		}
		return fmt.Sprintf("%s is at least %s", label, FormatValue(rule.Attribute, *rule.Value.Threshold))
	case OperatorBetween:
		rng := rule.Value.Range
		switch {
		case rng == nil || (rng.Min == nil && rng.Max == nil):
			return label + " is in an empty range"
		case rng.Max == nil:
			return fmt.Sprintf("%s is at least %s", label, FormatValue(rule.Attribute, *rng.Min))
		case rng.Min == nil:
			return fmt.Sprintf("%s is below %s", label, FormatValue(rule.Attribute, *rng.Max))
		default:
			return fmt.Sprintf("%s is between %s and %s",
				label,
				FormatValue(rule.Attribute, *rng.Min),
				FormatValue(rule.Attribute, *rng.Max),
			)
		}
	default:
		return label
	}
}

// FormatValue renders v according to the attribute's kind.
func FormatValue(attr Attribute, v int64) string {
	switch attr.Kind() {
	case KindCurrency:
		return formatCents(v)
	case KindNumber:
		return humanize.Comma(v)
	default:
		return fmt.Sprintf("%d", v)
	}
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(v/100), v%100)
}
