package badge

// Built-in badge slugs.
const (
	SlugFirstContribution     = "first_contribution"
	SlugActiveContributor10   = "active_contributor_10"
	SlugProlificContributor50 = "prolific_contributor_50"
	SlugChatEnthusiast20      = "chat_enthusiast_20"
	SlugConsistentPresence5   = "consistent_presence_5"
	SlugDedicatedLearner10    = "dedicated_learner_10"
	SlugCoordinatorStar       = "coordinator_star"
	SlugReporterStar          = "reporter_star"
	SlugPeerEvaluator5        = "peer_evaluator_5"
	SlugReferenceSharer3      = "reference_sharer_3"
	SlugTopPerformer          = "top_performer"
	SlugImprovementStreak     = "improvement_streak"
)

// Thresholds of the grade rules.
const (
	topPerformerMinGrades = 3
	// top/total >= 3/5, compared in integers.
	topPerformerRatioNum = 3
	topPerformerRatioDen = 5

	improvementMinGrades = 4
	// delta > 3/10, compared in integers.
	improvementDeltaNum = 3
	improvementDeltaDen = 10
)

// DefaultRegistry returns a registry with the built-in rules.
func DefaultRegistry() *Registry {
	reg := NewRegistry()

	reg.MustRegister(Rule{SlugFirstContribution, ScopeRoom, AtLeast(contributions, 1)})
	reg.MustRegister(Rule{SlugActiveContributor10, ScopeRoom, AtLeast(contributions, 10)})
	reg.MustRegister(Rule{SlugProlificContributor50, ScopeRoom, AtLeast(contributions, 50)})
	reg.MustRegister(Rule{SlugChatEnthusiast20, ScopeRoom, AtLeast(chatMessages, 20)})
	reg.MustRegister(Rule{SlugConsistentPresence5, ScopeGlobal, AtLeast(sessions, 5)})
	reg.MustRegister(Rule{SlugDedicatedLearner10, ScopeGlobal, AtLeast(sessions, 10)})
	reg.MustRegister(Rule{SlugCoordinatorStar, ScopeRoom, AtLeast(coordinatorTimes, 1)})
	reg.MustRegister(Rule{SlugReporterStar, ScopeRoom, AtLeast(reporterTimes, 1)})
	reg.MustRegister(Rule{SlugPeerEvaluator5, ScopeRoom, AtLeast(peerEvaluations, 5)})
	reg.MustRegister(Rule{SlugReferenceSharer3, ScopeRoom, AtLeast(referencesShared, 3)})
	reg.MustRegister(Rule{SlugTopPerformer, ScopeRoom, topPerformer})
	reg.MustRegister(Rule{SlugImprovementStreak, ScopeRoom, improvementStreak})

	return reg
}

func contributions(m Metrics) int    { return m.Contributions }
func chatMessages(m Metrics) int     { return m.ChatMessages }
func sessions(m Metrics) int         { return m.SessionsParticipated }
func coordinatorTimes(m Metrics) int { return m.CoordinatorTimes }
func reporterTimes(m Metrics) int    { return m.ReporterTimes }
func peerEvaluations(m Metrics) int  { return m.PeerEvaluations }
func referencesShared(m Metrics) int { return m.ReferencesShared }

func topPerformer(m Metrics) (bool, map[string]any) {
	if m.TotalGrades < topPerformerMinGrades {
		return false, nil
	}
	if m.TopGrades*topPerformerRatioDen < m.TotalGrades*topPerformerRatioNum {
		return false, nil
	}
	return true, map[string]any{"percentage": m.APercentage}
}

// improvementStreak compares the mean ordinal of the later half of the
// grade history with the earlier half. For odd lengths the middle grade
// belongs to the later half.
func improvementStreak(m Metrics) (bool, map[string]any) {
	if len(m.Grades) < improvementMinGrades {
		return false, nil
	}
	half := len(m.Grades) / 2
	early, late := m.Grades[:half], m.Grades[half:]
	nEarly, nLate := len(early), len(late)

	// late/nLate - early/nEarly > num/den, cross-multiplied.
	lhs := (sumOrdinals(late)*nEarly - sumOrdinals(early)*nLate) * improvementDeltaDen
	rhs := improvementDeltaNum * nEarly * nLate
	if lhs <= rhs {
		return false, nil
	}
	return true, map[string]any{
		"first_half_avg":  averageOrdinal(early),
		"second_half_avg": averageOrdinal(late),
	}
}
