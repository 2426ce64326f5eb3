package badge

import "strings"

// Grade is an ordinal evaluation mark, A being the top tier.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"

	// TopGrade is the tier counted by the a_percentage metric.
	TopGrade = GradeA
)

// neutralOrdinal is used for grades outside the known tiers.
const neutralOrdinal = 2

var gradeOrdinals = map[Grade]int{
	GradeA: 4,
	GradeB: 3,
	GradeC: 2,
	GradeD: 1,
}

// NormalizeGrade trims and upper-cases a stored grade.
func NormalizeGrade(raw string) Grade {
	return Grade(strings.ToUpper(strings.TrimSpace(raw)))
}

// Ordinal maps the grade onto 1..4. Unrecognized values count as 2.
func (g Grade) Ordinal() int {
	if v, ok := gradeOrdinals[g]; ok {
		return v
	}
	return neutralOrdinal
}

// IsKnown reports whether the grade is one of the fixed tiers.
func (g Grade) IsKnown() bool {
	_, ok := gradeOrdinals[g]
	return ok
}

// IsTop reports whether the grade is the top tier.
func (g Grade) IsTop() bool {
	return g == TopGrade
}

func sumOrdinals(grades []Grade) int {
	sum := 0
	for _, g := range grades {
		sum += g.Ordinal()
	}
	return sum
}

// averageOrdinal returns the mean ordinal of grades, 0 for an empty slice.
func averageOrdinal(grades []Grade) float64 {
	if len(grades) == 0 {
		return 0
	}
	return float64(sumOrdinals(grades)) / float64(len(grades))
}
