package forecast

import (
	"fmt"
	"math"
	"sort"
)

const (
	impactScale      = 50.0
	minReportImpact  = 2.0
	maxReportFactors = 5
)

const (
	InterventionFoundations    = "Student lacks foundational knowledge. Recommend: prerequisite review and personalized tutoring."
	InterventionReengage       = "No recent engagement. Recommend: motivational message and easy practice problems."
	InterventionMultiArea      = "Struggling in multiple areas. Recommend: 1-on-1 teacher intervention and targeted practice."
	InterventionMisconceptions = "High error rate suggests misconceptions. Recommend: interactive explanations and worked examples."
	InterventionGeneric        = "Performance at risk. Consider: extended deadline, additional resources, or teacher check-in."
)

// explain ranks each weighted feature's contribution in score points and
// keeps the largest few.
func explain(f Features, n normalized) []Factor {
	factors := make([]Factor, 0, len(weights))
	for _, w := range weights {
		impact := n[w.feature] * w.w * impactScale
		if math.Abs(impact) <= minReportImpact {
			continue
		}
		factors = append(factors, Factor{
			Factor:      w.feature,
			Impact:      math.Round(impact*100) / 100,
			Explanation: describe(f, w.feature, impact),
		})
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
	})
	if len(factors) > maxReportFactors {
		factors = factors[:maxReportFactors]
	}
	return factors
}

func describe(f Features, feature string, impact float64) string {
	switch {
	case feature == FeatureAverageScore && impact > 0:
		return fmt.Sprintf("Strong historical performance (avg: %g%%)", f.AverageScore)
	case feature == FeatureAverageScore && impact < 0:
		return fmt.Sprintf("Weak historical performance (avg: %g%%)", f.AverageScore)
	case feature == FeatureStreakDays && impact > 0:
		return fmt.Sprintf("Good engagement streak (%d days)", f.StreakDays)
	case feature == FeatureStrugglingSkills && impact < 0:
		return fmt.Sprintf("Struggling in %d skill areas", f.StrugglingSkills)
	case feature == FeatureAverageKnowledgeState && impact > 0:
		return "Strong knowledge foundation"
	case feature == FeatureErrorRate && impact < 0:
		return fmt.Sprintf("High error rate (%.0f%%)", f.ErrorRate*100)
	}
	direction := "negative"
	if impact > 0 {
		direction = "positive"
	}
	return fmt.Sprintf("%s: %s impact", feature, direction)
}

// intervention picks the first matching message in priority order.
func intervention(f Features) string {
	switch {
	case f.AverageKnowledgeState < 0.3:
		return InterventionFoundations
	case f.StreakDays == 0:
		return InterventionReengage
	case f.StrugglingSkills > 2:
		return InterventionMultiArea
	case f.ErrorRate > 0.5:
		return InterventionMisconceptions
	default:
		return InterventionGeneric
	}
}
