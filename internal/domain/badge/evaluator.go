package badge

import "github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"

// Candidate is a grant queued by the evaluator and not yet persisted.
type Candidate struct {
	Definition Definition
	Scope      Scope
	Metadata   map[string]any
}

// Key returns the deduplication key of the candidate.
func (c Candidate) Key() GrantKey {
	return GrantKey{BadgeID: c.Definition.ID, ScopeKey: c.Scope.Key()}
}

// Evaluation is the outcome of one evaluation pass.
type Evaluation struct {
	Candidates []Candidate
	// MissingDefinitions lists rule slugs with no definition in the catalog.
	MissingDefinitions []string
}

// Evaluator applies registered rules to a metrics snapshot.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator over a registry.
func NewEvaluator(registry *Registry) *Evaluator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Evaluator{registry: registry}
}

// Registry returns the registry the evaluator reads.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Evaluate queues a grant for each rule whose predicate holds and whose
// (badge, scope) pair is not in existing. definitions is keyed by slug.
func (e *Evaluator) Evaluate(
	m Metrics,
	room *shared.RoomID,
	definitions map[string]Definition,
	existing GrantSet,
) Evaluation {
	var out Evaluation
	queued := NewGrantSet()

	for _, rule := range e.registry.Rules() {
		def, ok := definitions[rule.Slug]
		if !ok {
			out.MissingDefinitions = append(out.MissingDefinitions, rule.Slug)
			continue
		}

		scope := rule.Scope.Resolve(room)
		key := GrantKey{BadgeID: def.ID, ScopeKey: scope.Key()}
		if existing.Has(key) || queued.Has(key) {
			continue
		}

		granted, metadata := rule.Predicate(m)
		if !granted {
			continue
		}

		queued.Add(key)
		out.Candidates = append(out.Candidates, Candidate{
			Definition: def,
			Scope:      scope,
			Metadata:   metadata,
		})
	}

	return out
}
