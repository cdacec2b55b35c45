// Package conflict reconciles taxi metrics reported by two redundant sources.
package conflict

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Rule selects which source wins when values disagree.
type Rule string

const (
	NewestPriority   Rule = "newest_priority"
	FabricPriority   Rule = "fabric_priority"
	GeniePriority    Rule = "genie_priority"
	ReportDifference Rule = "report_difference"
)

// DefaultRule is applied when no rule is given.
const DefaultRule = NewestPriority

// ParseRule converts a name to a Rule. Empty selects the default.
func ParseRule(s string) (Rule, error) {
	switch r := Rule(s); r {
	case NewestPriority, FabricPriority, GeniePriority, ReportDifference:
		return r, nil
	case "":
		return DefaultRule, nil
	}
	return "", fmt.Errorf("unknown resolution rule %q", s)
}

// Threshold is the relative variance above which numeric values conflict.
const Threshold = 0.05

// StatusConflict marks a field left unresolved.
const StatusConflict = "conflict"

// Disagreement is stored as the resolved value of a field when the rule
// keeps both sides.
type Disagreement struct {
	Fabric any    `json:"fabric"`
	Genie  any    `json:"genie"`
	Status string `json:"status"`
}

// Conflict records one field where the sources disagree.
type Conflict struct {
	Field           string  `json:"field"`
	FabricValue     any     `json:"fabric_value"`
	GenieValue      any     `json:"genie_value"`
	VariancePercent float64 `json:"variance_percent,omitempty"`
	VarianceType    string  `json:"variance_type,omitempty"`
}

// Categorical reports whether the conflict came from a non-numeric field.
func (c Conflict) Categorical() bool {
	return c.VarianceType == "categorical"
}

// Report is the outcome of reconciling two sources.
type Report struct {
	ResolvedData     map[string]any `json:"resolved_data"`
	Conflicts        []Conflict     `json:"conflicts"`
	ResolutionRule   Rule           `json:"resolution_rule"`
	ConflictCount    int            `json:"conflict_count"`
	DataQualityScore float64        `json:"data_quality_score"`
}

// Resolve reconciles fabric and genie field by field.
//
// Numeric pairs within Threshold are averaged whatever the rule. Beyond it the
// rule picks a side; newest_priority trusts genie. A zero fabric value cannot
// produce a variance, so genie's value is taken with no conflict recorded.
// Booleans compare as 1 and 0.
// Non-numeric pairs that differ always conflict; newest_priority keeps both
// sides for them. Fields present in one source pass through.
func Resolve(fabric, genie map[string]any, rule Rule) Report {
	resolved := make(map[string]any, len(fabric)+len(genie))
	conflicts := []Conflict{}

	common := commonFields(fabric, genie)
	for _, field := range common {
		fv, gv := fabric[field], genie[field]

		fn, fNum := toFloat(fv)
		gn, gNum := toFloat(gv)
		if fNum && gNum {
			if fn == 0 {
				resolved[field] = gv
				continue
			}
			variance := math.Abs(fn-gn) / math.Abs(fn)
			// NaN variance averages like any in-range pair.
			if !(variance > Threshold) {
				resolved[field] = (fn + gn) / 2
				continue
			}
			conflicts = append(conflicts, Conflict{
				Field:           field,
				FabricValue:     fv,
				GenieValue:      gv,
				VariancePercent: variance * 100,
			})
			switch rule {
			case NewestPriority, GeniePriority:
				resolved[field] = gv
			case FabricPriority:
				resolved[field] = fv
			default:
				resolved[field] = Disagreement{Fabric: fv, Genie: gv, Status: StatusConflict}
			}
			continue
		}

		if reflect.DeepEqual(fv, gv) {
			resolved[field] = fv
			continue
		}
		conflicts = append(conflicts, Conflict{
			Field:        field,
			FabricValue:  fv,
			GenieValue:   gv,
			VarianceType: "categorical",
		})
		switch rule {
		case FabricPriority:
			resolved[field] = fv
		case GeniePriority:
			resolved[field] = gv
		default:
			resolved[field] = Disagreement{Fabric: fv, Genie: gv, Status: StatusConflict}
		}
	}

	for field, v := range fabric {
		if _, ok := genie[field]; !ok {
			resolved[field] = v
		}
	}
	for field, v := range genie {
		if _, ok := fabric[field]; !ok {
			resolved[field] = v
		}
	}

	return Report{
		ResolvedData:     resolved,
		Conflicts:        conflicts,
		ResolutionRule:   rule,
		ConflictCount:    len(conflicts),
		DataQualityScore: math.Max(0, 1-float64(len(conflicts))/float64(max(len(common), 1))),
	}
}

// commonFields returns the keys present in both maps, sorted.
func commonFields(a, b map[string]any) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// toFloat reports whether v is a number and returns it as float64.
// Booleans count as 1 and 0.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
