package scenario

import "strings"

var (
	travelKeywords      = []string{"hotel", "travel", "booking", "accommodation", "stay", "taxi", "transport", "email", "send", "summary"}
	consistencyKeywords = []string{"compare", "consistency", "difference", "fabric", "genie", "data", "check"}
	decisionKeywords    = []string{"recommend", "decision", "package", "hotspot", "insight", "comprehensive"}
)

// Scores holds the keyword hit count per scenario.
type Scores struct {
	Travel      int
	Consistency int
	Decision    int
}

// Score counts, for each keyword set, how many keywords occur as substrings
// of the lowercased text. Each keyword counts at most once.
func Score(text string) Scores {
	lower := strings.ToLower(text)
	return Scores{
		Travel:      countHits(lower, travelKeywords),
		Consistency: countHits(lower, consistencyKeywords),
		Decision:    countHits(lower, decisionKeywords),
	}
}

func countHits(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// Detect picks a scenario for free text. Consistency wins at two or more
// hits, then decision at two or more; everything else is a travel query.
// The travel score is computed but never decides.
func Detect(text string) Type {
	s := Score(text)
	switch {
	case s.Consistency >= 2:
		return DataConsistency
	case s.Decision >= 2:
		return DecisionPackage
	default:
		return TravelQuery
	}
}
