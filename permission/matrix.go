package permission

import "sort"

// ResourceGrant is one row of the read-only effective-permission matrix:
// the five resolved toggles for a resource plus the reported data scope.
// The matrix feeds "what can this role/user do" views; the gating decision
// itself always goes through rule resolution, never through the matrix.
type ResourceGrant struct {
	ResourceKey string `json:"resourceKey"`
	CanAccess   bool   `json:"canAccess"`
	CanView     bool   `json:"canView"`
	CanCreate   bool   `json:"canCreate"`
	CanUpdate   bool   `json:"canUpdate"`
	CanDelete   bool   `json:"canDelete"`
	DataScope   Scope  `json:"dataScope"`
}

// BuildMatrix merges role rules with user overrides into effective grants,
// one per resource, sorted by resource key. Overrides shadow role rules per
// (resource, action) pair independently. The reported scope is the highest
// ranked scope among allowed rows of the resource; a resource whose view
// toggle resolves to off always reports ScopeNone regardless of stored
// scope values.
func BuildMatrix(roleRules, overrides []Rule) []ResourceGrant {
	type pair struct{ role, override *Rule }

	byKey := make(map[string]map[string]*pair)
	touch := func(resource, action string) *pair {
		actions, ok := byKey[resource]
		if !ok {
			actions = make(map[string]*pair)
			byKey[resource] = actions
		}
		p, ok := actions[action]
		if !ok {
			p = &pair{}
			actions[action] = p
		}
		return p
	}

	for i := range roleRules {
		r := roleRules[i]
		touch(r.ResourceKey, r.ActionKey).role = &roleRules[i]
	}
	for i := range overrides {
		o := overrides[i]
		touch(o.ResourceKey, o.ActionKey).override = &overrides[i]
	}

	grants := make([]ResourceGrant, 0, len(byKey))
	for resource, actions := range byKey {
		grant := ResourceGrant{ResourceKey: resource, DataScope: ScopeNone}

		scope := ScopeNone
		for action, p := range actions {
			decision := Merge(p.override, p.role)
			if !decision.Allowed() {
				continue
			}
			switch action {
			case ActionAccess:
				grant.CanAccess = true
			case ActionView:
				grant.CanView = true
			case ActionCreate:
				grant.CanCreate = true
			case ActionUpdate:
				grant.CanUpdate = true
			case ActionDelete:
				grant.CanDelete = true
			}
			scope = MaxScope(scope, decision.Scope)
		}

		if grant.CanView {
			grant.DataScope = scope
		}
		grants = append(grants, grant)
	}

	sort.Slice(grants, func(i, j int) bool {
		return grants[i].ResourceKey < grants[j].ResourceKey
	})
	return grants
}
