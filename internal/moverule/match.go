package moverule

// Snapshot holds a partner's cumulative totals at evaluation time.
// Currency totals are in minor units.
type Snapshot struct {
	TotalLeads       int64 `json:"totalLeads"`
	TotalConversions int64 `json:"totalConversions"`
	TotalSaleAmount  int64 `json:"totalSaleAmount"`
	TotalCommissions int64 `json:"totalCommissions"`
}

// Value returns the snapshot total for attr.
func (s Snapshot) Value(attr Attribute) (int64, bool) {
	switch attr {
	case AttributeTotalLeads:
		return s.TotalLeads, true
	case AttributeTotalConversions:
		return s.TotalConversions, true
	case AttributeTotalSaleAmount:
		return s.TotalSaleAmount, true
	case AttributeTotalCommissions:
		return s.TotalCommissions, true
	default:
		return 0, false
	}
}

// SatisfiedBy reports whether value meets the rule.
func (r Rule) SatisfiedBy(value int64) bool {
	switch r.Operator {
	case OperatorGTE:
		if r.Value.Threshold == nil {
			return false
		}
		return value >= *r.Value.Threshold
	case OperatorBetween:
		if r.Value.Range == nil {
			return false
		}
		var min int64
		if r.Value.Range.Min != nil {
			min = *r.Value.Range.Min
		}
		if value < min {
			return false
		}
		if r.Value.Range.Max != nil && value >= *r.Value.Range.Max {
			return false
		}
		return true
	default:
		return false
	}
}

// Match returns the first rule, in list order, satisfied by the snapshot.
// The boolean is false when no rule matches and the partner stays put.
func Match(snapshot Snapshot, rules []Rule) (Rule, bool) {
	for _, rule := range rules {
		value, ok := snapshot.Value(rule.Attribute)
		if !ok {
			continue
		}
		if rule.SatisfiedBy(value) {
			return rule, true
		}
	}
	return Rule{}, false
}
