package permission

// RiskFlag marks why a submitted override set is considered high-risk.
type RiskFlag string

const (
	// RiskDeleteGrant is raised when the submission grants delete on any
	// resource.
	RiskDeleteGrant RiskFlag = "delete"
	// RiskAllScope is raised when the submission grants all-branch
	// visibility together with any enabled action.
	RiskAllScope RiskFlag = "all_scope"
)

// ClassifyRisk inspects a submitted entry set and returns the risk flags it
// carries. An empty result means the change is low-risk and may be applied
// without a second approver.
func ClassifyRisk(entries []Entry) []RiskFlag {
	var deleteGrant, allScope bool
	for _, e := range entries {
		if e.CanDelete {
			deleteGrant = true
		}
		if e.DataScope == ScopeAll && e.AnyEnabled() {
			allScope = true
		}
	}

	var flags []RiskFlag
	if deleteGrant {
		flags = append(flags, RiskDeleteGrant)
	}
	if allScope {
		flags = append(flags, RiskAllScope)
	}
	return flags
}

// HighRisk reports whether the entry set requires two-person approval.
func HighRisk(entries []Entry) bool {
	return len(ClassifyRisk(entries)) > 0
}
