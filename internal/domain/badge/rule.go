package badge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Predicate decides whether a snapshot qualifies.
// Metadata is stored on the grant; it may be nil.
type Predicate func(m Metrics) (ok bool, metadata map[string]any)

// Rule is a tagged rule descriptor keyed by the badge slug it grants.
type Rule struct {
	Slug      string
	Scope     ScopeKind
	Predicate Predicate
}

// Validate checks the descriptor.
func (r Rule) Validate() error {
	if r.Slug == "" {
		return shared.ErrInvalidDefinition.Wrap(fmt.Errorf("rule slug is empty"))
	}
	if !r.Scope.IsValid() {
		return shared.ErrInvalidDefinition.Wrap(fmt.Errorf("rule %s: invalid scope %q", r.Slug, r.Scope))
	}
	if r.Predicate == nil {
		return shared.ErrInvalidDefinition.Wrap(fmt.Errorf("rule %s: predicate is nil", r.Slug))
	}
	return nil
}

// AtLeast returns a predicate that holds when metric(m) >= min.
func AtLeast(metric func(Metrics) int, min int) Predicate {
	return func(m Metrics) (bool, map[string]any) {
		return metric(m) >= min, nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry holds rules in registration order.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
	index map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a rule. Slugs must be unique.
func (r *Registry) Register(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[rule.Slug]; exists {
		return shared.ErrDuplicateRule.Wrap(fmt.Errorf("slug %s", rule.Slug))
	}
	r.index[rule.Slug] = len(r.rules)
	r.rules = append(r.rules, rule)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(rule Rule) {
	if err := r.Register(rule); err != nil {
		panic(err)
	}
}

// Disable removes rules by slug and returns the slugs that were not registered.
func (r *Registry) Disable(slugs ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unknown []string
	drop := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		if _, ok := r.index[s]; !ok {
			unknown = append(unknown, s)
			continue
		}
		drop[s] = true
	}
	if len(drop) == 0 {
		return unknown
	}

	kept := r.rules[:0]
	for _, rule := range r.rules {
		if !drop[rule.Slug] {
			kept = append(kept, rule)
		}
	}
	r.rules = kept
	r.index = make(map[string]int, len(kept))
	for i, rule := range kept {
		r.index[rule.Slug] = i
	}
	return unknown
}

// Rules returns a copy of the registered rules in order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Lookup returns the rule for a slug.
func (r *Registry) Lookup(slug string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[slug]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// Slugs returns the registered slugs sorted.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Slug)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
