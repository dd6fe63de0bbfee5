package evaluator

import (
	"github.com/smallbiznis/partnerflow/internal/moverule"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
)

// Decision is where a partner belongs given its totals.
type Decision struct {
	// Group is nil when no group's rules match.
	Group *groupdomain.PartnerGroup
	Rule  moverule.Rule
	Move  bool
}

// Decide keeps a partner in its current group while one of that group's own
// rules still matches. Otherwise the first other group, in the order given,
// with a matching rule becomes the target. No match means no move.
func Decide(snapshot moverule.Snapshot, currentGroupID int64, groups []groupdomain.PartnerGroup) Decision {
	for i := range groups {
		if groups[i].ID != currentGroupID {
			continue
		}
		if rule, ok := moverule.Match(snapshot, groups[i].Rules()); ok {
			return Decision{Group: &groups[i], Rule: rule}
		}
		break
	}

	for i := range groups {
		if groups[i].ID == currentGroupID {
			continue
		}
		if rule, ok := moverule.Match(snapshot, groups[i].Rules()); ok {
			return Decision{Group: &groups[i], Rule: rule, Move: true}
		}
	}
	return Decision{}
}
