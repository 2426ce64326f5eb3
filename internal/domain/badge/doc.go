// Package badge contains the domain model of the achievement engine of the
// PBL tutoring platform.
//
// The package defines:
//
//   - Entities: Definition, Grant, EarnedBadge
//   - Value objects: Scope, ScopeKind, Grade, Metrics
//   - The rule registry (Rule, Registry) and the Evaluator built on it
//   - Repository interfaces implemented in infrastructure/persistence
//   - Domain events: BadgeAwardedEvent, BadgesComputedEvent
//
// # Scopes
//
// Every grant lives in a scope bucket identified by a scope key:
//
//	global      rule is global, room ignored
//	room:<id>   rule is room scoped and a room was given
//	room:none   rule is room scoped and no room was given
//
// A user earns a badge at most once per (badge, scope key).
//
// # Rules
//
// Rules are tagged descriptors registered in a Registry:
//
//	reg := NewRegistry()
//	reg.MustRegister(Rule{
//	    Slug:      "first_contribution",
//	    Scope:     ScopeRoom,
//	    Predicate: AtLeast(func(m Metrics) int { return m.Contributions }, 1),
//	})
//
// Adding a rule never touches the others. DefaultRegistry returns the
// platform's built-in rule set.
package badge
