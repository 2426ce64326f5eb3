package badge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grades(raw ...string) []Grade {
	out := make([]Grade, len(raw))
	for i, r := range raw {
		out[i] = NormalizeGrade(r)
	}
	return out
}

func metricsWithGrades(raw ...string) Metrics {
	return NewMetrics(ActivityCounts{}, nil, grades(raw...))
}

func TestThresholdRules(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		slug  string
		below Metrics
		at    Metrics
	}{
		{SlugFirstContribution, Metrics{Contributions: 0}, Metrics{Contributions: 1}},
		{SlugActiveContributor10, Metrics{Contributions: 9}, Metrics{Contributions: 10}},
		{SlugProlificContributor50, Metrics{Contributions: 49}, Metrics{Contributions: 50}},
		{SlugChatEnthusiast20, Metrics{ChatMessages: 19}, Metrics{ChatMessages: 20}},
		{SlugConsistentPresence5, Metrics{SessionsParticipated: 4}, Metrics{SessionsParticipated: 5}},
		{SlugDedicatedLearner10, Metrics{SessionsParticipated: 9}, Metrics{SessionsParticipated: 10}},
		{SlugCoordinatorStar, Metrics{CoordinatorTimes: 0}, Metrics{CoordinatorTimes: 1}},
		{SlugReporterStar, Metrics{ReporterTimes: 0}, Metrics{ReporterTimes: 1}},
		{SlugPeerEvaluator5, Metrics{PeerEvaluations: 4}, Metrics{PeerEvaluations: 5}},
		{SlugReferenceSharer3, Metrics{ReferencesShared: 2}, Metrics{ReferencesShared: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			rule, ok := reg.Lookup(tt.slug)
			require.True(t, ok)

			below, _ := rule.Predicate(tt.below)
			at, _ := rule.Predicate(tt.at)
			assert.False(t, below)
			assert.True(t, at)
		})
	}
}

func TestRuleScopes(t *testing.T) {
	reg := DefaultRegistry()
	require.Equal(t, 12, reg.Len())

	for _, rule := range reg.Rules() {
		want := ScopeRoom
		if rule.Slug == SlugConsistentPresence5 || rule.Slug == SlugDedicatedLearner10 {
			want = ScopeGlobal
		}
		assert.Equal(t, want, rule.Scope, rule.Slug)
	}
}

func TestTopPerformer(t *testing.T) {
	tests := []struct {
		name   string
		grades []string
		want   bool
	}{
		{"two of three", []string{"A", "A", "B"}, true},
		{"one of three", []string{"A", "B", "B"}, false},
		{"too few grades", []string{"A", "A"}, false},
		{"exactly sixty percent", []string{"A", "A", "A", "B", "C"}, true},
		{"three of seven", []string{"A", "A", "A", "B", "C", "D", "D"}, false},
		{"lower case grades", []string{"a", " a ", "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, meta := topPerformer(metricsWithGrades(tt.grades...))
			assert.Equal(t, tt.want, ok)
			if tt.want {
				require.NotNil(t, meta)
				assert.Contains(t, meta, "percentage")
			}
		})
	}
}

func TestTopPerformerStoresPercentage(t *testing.T) {
	ok, meta := topPerformer(metricsWithGrades("A", "A", "B"))
	require.True(t, ok)
	assert.InDelta(t, 66.67, meta["percentage"], 0.001)
}

func TestImprovementStreak(t *testing.T) {
	tests := []struct {
		name   string
		grades []string
		want   bool
	}{
		{"strong improvement", []string{"D", "D", "A", "A"}, true},
		{"flat", []string{"B", "B", "B", "B"}, false},
		{"decline", []string{"A", "A", "D", "D"}, false},
		{"too few grades", []string{"D", "A", "A"}, false},
		// first avg 3, second avg 3.5
		{"small but enough", []string{"B", "B", "B", "A"}, true},
		// odd length: first [C C], second [B B C] avg 2.667, delta .667
		{"odd length", []string{"C", "C", "B", "B", "C"}, true},
		// unknown grades count as C
		{"unknown grades neutral", []string{"X", "?", "C", "C"}, false},
		// first [C B B] avg 2.666.., second [B B B B]: delta .333 > .3
		{"delta just above", []string{"C", "B", "B", "B", "B", "B", "B"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := improvementStreak(metricsWithGrades(tt.grades...))
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestImprovementStreakExactDeltaIsNotEnough(t *testing.T) {
	// first 10 grades avg 3.0, second 10 avg 3.3: delta is exactly 0.3
	raw := make([]string, 0, 20)
	for i := 0; i < 10; i++ {
		raw = append(raw, "B")
	}
	for i := 0; i < 7; i++ {
		raw = append(raw, "B")
	}
	raw = append(raw, "A", "A", "A")

	ok, _ := improvementStreak(metricsWithGrades(raw...))
	assert.False(t, ok)
}
