package badge

import "math"

// ActivityCounts are the independent activity counters of one user.
type ActivityCounts struct {
	Contributions    int
	ChatMessages     int
	CoordinatorTimes int
	ReporterTimes    int
	PeerEvaluations  int
	ReferencesShared int
}

// Metrics is the snapshot the rules are evaluated against.
// It is computed fresh for every request and never stored.
type Metrics struct {
	Contributions        int     `json:"contributions"`
	ChatMessages         int     `json:"chat_messages"`
	SessionsParticipated int     `json:"sessions_participated"`
	CoordinatorTimes     int     `json:"coordinator_times"`
	ReporterTimes        int     `json:"reporter_times"`
	PeerEvaluations      int     `json:"peer_evaluations"`
	ReferencesShared     int     `json:"references_shared"`
	TotalGrades          int     `json:"total_grades"`
	APercentage          float64 `json:"a_percentage"`

	// TopGrades is the number of grades in the top tier.
	TopGrades int `json:"-"`
	// Grades holds non-archived grades, oldest first.
	Grades []Grade `json:"-"`
}

// NewMetrics builds a snapshot from raw reads.
// sessionIDs may contain duplicates; grades must be ordered oldest first.
func NewMetrics(counts ActivityCounts, sessionIDs []string, grades []Grade) Metrics {
	m := Metrics{
		Contributions:        counts.Contributions,
		ChatMessages:         counts.ChatMessages,
		SessionsParticipated: countDistinct(sessionIDs),
		CoordinatorTimes:     counts.CoordinatorTimes,
		ReporterTimes:        counts.ReporterTimes,
		PeerEvaluations:      counts.PeerEvaluations,
		ReferencesShared:     counts.ReferencesShared,
		TotalGrades:          len(grades),
		Grades:               grades,
	}

	for _, g := range grades {
		if g.IsTop() {
			m.TopGrades++
		}
	}
	if m.TotalGrades > 0 {
		pct := float64(m.TopGrades) * 100 / float64(m.TotalGrades)
		m.APercentage = math.Round(pct*100) / 100
	}
	return m
}

func countDistinct(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}
