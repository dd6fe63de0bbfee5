package moverule

import "strings"

// Attribute is a partner metric a move rule inspects.
type Attribute string

const (
	AttributeTotalLeads       Attribute = "totalLeads"
	AttributeTotalConversions Attribute = "totalConversions"
	AttributeTotalSaleAmount  Attribute = "totalSaleAmount"
	AttributeTotalCommissions Attribute = "totalCommissions"
)

// Kind describes how an attribute's values are interpreted.
type Kind string

const (
	KindNumber Kind = "number"
	// KindCurrency values are integer minor units (cents).
	KindCurrency Kind = "currency"
)

// Attributes returns every supported attribute in display order.
func Attributes() []Attribute {
	return []Attribute{
		AttributeTotalLeads,
		AttributeTotalConversions,
		AttributeTotalSaleAmount,
		AttributeTotalCommissions,
	}
}

// ParseAttribute resolves a raw attribute name.
func ParseAttribute(raw string) (Attribute, bool) {
	attr := Attribute(strings.TrimSpace(raw))
	if !attr.Valid() {
		return "", false
	}
	return attr, true
}

func (a Attribute) Valid() bool {
	return a.Kind() != ""
}

// Kind returns the value kind, or an empty kind for unknown attributes.
func (a Attribute) Kind() Kind {
	switch a {
	case AttributeTotalLeads, AttributeTotalConversions:
		return KindNumber
	case AttributeTotalSaleAmount, AttributeTotalCommissions:
		return KindCurrency
	default:
		return ""
	}
}

func (a Attribute) Label() string {
	switch a {
	case AttributeTotalLeads:
		return "Total leads"
	case AttributeTotalConversions:
		return "Total conversions"
	case AttributeTotalSaleAmount:
		return "Total revenue"
	case AttributeTotalCommissions:
		return "Total commissions"
	default:
		return string(a)
	}
}

// Operator is the comparison applied to an attribute value.
type Operator string

const (
	OperatorGTE     Operator = "gte"
	OperatorBetween Operator = "between"
)

func (o Operator) Valid() bool {
	switch o {
	case OperatorGTE, OperatorBetween:
		return true
	default:
		return false
	}
}
