package moverule

// Group is the slice of a partner group the conflict finder needs.
type Group struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Rules []Rule `json:"move_rules"`
}

// FindGroupsWithMatchingRules returns the groups, other than currentGroupID,
// that already claim a rule equivalent to one in current. Input order is
// preserved.
func FindGroupsWithMatchingRules(groups []Group, current []Rule, currentGroupID string) []Group {
	var out []Group
	if len(current) == 0 {
		return out
	}
	for _, group := range groups {
		if group.ID == currentGroupID {
			continue
		}
		if rulesOverlap(group.Rules, current) {
			out = append(out, group)
		}
	}
	return out
}

func rulesOverlap(existing, current []Rule) bool {
	for _, a := range existing {
		for _, b := range current {
			if RulesConflict(a, b) {
				return true
			}
		}
	}
	return false
}

// RulesConflict reports whether two rules would route the same partner
// ambiguously. Only rules with the same attribute and operator can conflict:
// gte thresholds must be equal, between spans [min, max) must intersect.
func RulesConflict(a, b Rule) bool {
	if a.Attribute != b.Attribute || a.Operator != b.Operator {
		return false
	}
	switch a.Operator {
	case OperatorGTE:
		if a.Value.Threshold == nil || b.Value.Threshold == nil {
			return false
		}
		return *a.Value.Threshold == *b.Value.Threshold
	case OperatorBetween:
		sa, okA := spanOf(a.Value)
		sb, okB := spanOf(b.Value)
		if !okA || !okB {
			return false
		}
		return sa.intersects(sb)
	default:
		return false
	}
}

type span struct {
	lo      int64
	hi      int64
	bounded bool
}

func spanOf(v Value) (span, bool) {
	if v.Range == nil {
		return span{}, false
	}
	s := span{}
	if v.Range.Min != nil {
		s.lo = *v.Range.Min
	}
	if v.Range.Max != nil {
		s.hi = *v.Range.Max
		s.bounded = true
		if s.hi <= s.lo {
			return span{}, false
		}
	}
	return s, true
}

func (s span) intersects(o span) bool {
	if s.bounded && o.lo >= s.hi {
		return false
	}
	if o.bounded && s.lo >= o.hi {
		return false
	}
	return true
}
