package permission

// Entry is one submitted override row: five independent action toggles for a
// resource sharing a single data scope. This is the wire shape administrative
// clients send when editing a user's overrides; storage expands it into five
// Rule rows.
type Entry struct {
	ResourceKey string `json:"resourceKey"`
	CanAccess   bool   `json:"canAccess"`
	CanView     bool   `json:"canView"`
	CanCreate   bool   `json:"canCreate"`
	CanUpdate   bool   `json:"canUpdate"`
	CanDelete   bool   `json:"canDelete"`
	DataScope   Scope  `json:"dataScope"`
}

// Enabled reports the toggle state for the given action key.
func (e Entry) Enabled(actionKey string) bool {
	switch actionKey {
	case ActionAccess:
		return e.CanAccess
	case ActionView:
		return e.CanView
	case ActionCreate:
		return e.CanCreate
	case ActionUpdate:
		return e.CanUpdate
	case ActionDelete:
		return e.CanDelete
	default:
		return false
	}
}

// AnyEnabled reports whether at least one action toggle is on.
func (e Entry) AnyEnabled() bool {
	return e.CanAccess || e.CanView || e.CanCreate || e.CanUpdate || e.CanDelete
}

// Rules expands the entry into its five stored rows. Each action becomes one
// Rule whose effect reflects the toggle; the entry's scope is stamped on
// every row so that the view row carries the authoritative value.
func (e Entry) Rules() []Rule {
	rules := make([]Rule, 0, len(Actions))
	for _, action := range Actions {
		effect := EffectDeny
		if e.Enabled(action) {
			effect = EffectAllow
		}
		rules = append(rules, Rule{
			ResourceKey: e.ResourceKey,
			ActionKey:   action,
			Effect:      effect,
			Scope:       e.DataScope,
		})
	}
	return rules
}

// ExpandEntries flattens a submitted entry set into stored rule rows.
func ExpandEntries(entries []Entry) []Rule {
	rules := make([]Rule, 0, len(entries)*len(Actions))
	for _, e := range entries {
		rules = append(rules, e.Rules()...)
	}
	return rules
}
