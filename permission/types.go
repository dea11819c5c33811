package permission

// Effect is the binary allow/deny outcome of a permission rule. The zero
// value EffectNone means "no rule matched" and is always interpreted as deny
// by callers.
type Effect string

const (
	// EffectNone marks the absence of any matching rule.
	EffectNone Effect = ""
	// EffectAllow grants the action.
	EffectAllow Effect = "allow"
	// EffectDeny refuses the action.
	EffectDeny Effect = "deny"
)

// Scope is the data-visibility breadth of an allowed action, totally ordered
// as none < own < branch < all.
type Scope string

const (
	// ScopeNone is an exported scope constant; see Scope.
	ScopeNone Scope = "none"
	// ScopeOwn limits visibility to records the actor owns.
	ScopeOwn Scope = "own"
	// ScopeBranch limits visibility to the actor's branch.
	ScopeBranch Scope = "branch"
	// ScopeAll grants unrestricted visibility across branches.
	ScopeAll Scope = "all"
)

// Rank maps a scope onto the total order none < own < branch < all.
// Unknown values rank as none.
func (s Scope) Rank() int {
	switch s {
	case ScopeOwn:
		return 1
	case ScopeBranch:
		return 2
	case ScopeAll:
		return 3
	default:
		return 0
	}
}

// MaxScope returns whichever of a and b ranks higher.
func MaxScope(a, b Scope) Scope {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ValidScope reports whether s is one of the four known scope values.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeNone, ScopeOwn, ScopeBranch, ScopeAll:
		return true
	}
	return false
}

// Well-known action keys. Every guarded resource exposes the same five
// actions; each is an independent allow/deny toggle.
const (
	ActionAccess = "access"
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Actions lists the five action keys in their canonical order.
var Actions = []string{ActionAccess, ActionView, ActionCreate, ActionUpdate, ActionDelete}

// Rule is a single stored permission row for one (resource, action) pair.
// Role-level rules and user-level overrides share this shape; ownership
// (role id vs user id) is carried by the store, not the row.
type Rule struct {
	ResourceKey string `json:"resourceKey"`
	ActionKey   string `json:"actionKey"`
	Effect      Effect `json:"effect"`
	Scope       Scope  `json:"scope"`
}

// Decision is the resolved outcome for one (user, resource, action) triple.
// An EffectNone decision means no rule matched and must be treated as deny.
type Decision struct {
	Effect Effect `json:"effect"`
	Scope  Scope  `json:"scope"`
}

// Allowed reports whether the decision grants the action.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// NoDecision is the canonical "no rule matched" result.
func NoDecision() Decision {
	return Decision{Effect: EffectNone, Scope: ScopeNone}
}

// Merge resolves an optional user override against an optional role rule.
// The override, when present, fully shadows the role rule for the pair;
// with neither present the result is NoDecision.
func Merge(override, role *Rule) Decision {
	if override != nil {
		return Decision{Effect: override.Effect, Scope: override.Scope}
	}
	if role != nil {
		return Decision{Effect: role.Effect, Scope: role.Scope}
	}
	return NoDecision()
}
