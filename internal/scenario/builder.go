// Package scenario compiles user requests into one of the fixed task graphs.
package scenario

import (
	"fmt"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scheduler"
)

// Type names one of the supported scenarios.
type Type string

const (
	TravelQuery     Type = "travel_query"
	DataConsistency Type = "data_consistency"
	DecisionPackage Type = "decision_package"

	// Auto asks the runtime to detect the scenario from the request text.
	Auto Type = "auto"
)

// Types lists the concrete scenarios in detection order.
var Types = []Type{DataConsistency, DecisionPackage, TravelQuery}

// ParseType converts a user-supplied name to a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TravelQuery, DataConsistency, DecisionPackage, Auto:
		return t, nil
	case "":
		return Auto, nil
	}
	return "", fmt.Errorf("unknown scenario type %q", s)
}

// Agent names referenced by the compiled graphs.
const (
	AgentHotel        = "hotel"
	AgentTaxiFabric   = "taxi_fabric"
	AgentTaxiGenie    = "taxi_genie"
	AgentEmail        = "email"
	AgentOrchestrator = "orchestrator"
)

// Build compiles the named scenario. The query is carried for future use and
// does not change the graph shape.
func Build(t Type, query string) (*scheduler.Graph, error) {
	var g *scheduler.Graph
	switch t {
	case TravelQuery:
		g = NewTravelQuery(query)
	case DataConsistency:
		g = NewDataConsistency(query)
	case DecisionPackage:
		g = NewDecisionPackage(query)
	default:
		return nil, fmt.Errorf("no graph for scenario %q", t)
	}
	if _, err := g.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", t, err)
	}
	return g, nil
}

func mustBuild(id, scenario, description string, criteria scheduler.CompletionCriteria, tasks ...*scheduler.Task) *scheduler.Graph {
	g := scheduler.NewGraph(id, scenario, description)
	for _, task := range tasks {
		if err := g.AddTask(task); err != nil {
			panic(fmt.Sprintf("scenario %s: %v", scenario, err))
		}
	}
	g.SetCompletionCriteria(criteria)
	return g
}

// NewTravelQuery builds the hotel search, taxi cost analysis and email summary graph.
//
//	hotel_search ─────────────────────────────┐
//	taxi_fabric_analysis ─┐                   ├─> email_summary
//	taxi_genie_analysis ──┴─> data_fusion ────┘
func NewTravelQuery(_ string) *scheduler.Graph {
	return mustBuild(
		"travel_query_001",
		"travel_query_notification",
		"Find hotels, analyze taxi costs, send email summary",
		scheduler.CompletionCriteria{
			Required: []string{"hotel_search", "email_summary"},
			Optional: []string{"taxi_fabric_analysis", "taxi_genie_analysis", "data_fusion"},
		},
		&scheduler.Task{
			ID:           "hotel_search",
			Type:         scheduler.TaskHotelSearch,
			AgentName:    AgentHotel,
			Description:  "Search for hotels with parking in NYC",
			InputSchema:  map[string]string{"query": "string", "location": "string", "requirements": "list"},
			OutputSchema: map[string]string{"hotels": "list", "recommendations": "list", "reasoning": "string"},
			Priority:     3,
		},
		&scheduler.Task{
			ID:           "taxi_fabric_analysis",
			Type:         scheduler.TaskTaxiAnalysisFabric,
			AgentName:    AgentTaxiFabric,
			Description:  "Analyze day/night taxi costs using Fabric data",
			InputSchema:  map[string]string{"analysis_type": "string", "time_periods": "list"},
			OutputSchema: map[string]string{"day_stats": "dict", "night_stats": "dict", "cost_comparison": "dict"},
			Priority:     3,
		},
		&scheduler.Task{
			ID:           "taxi_genie_analysis",
			Type:         scheduler.TaskTaxiAnalysisGenie,
			AgentName:    AgentTaxiGenie,
			Description:  "Analyze day/night taxi costs using Genie data",
			InputSchema:  map[string]string{"analysis_type": "string", "time_periods": "list"},
			OutputSchema: map[string]string{"day_stats": "dict", "night_stats": "dict", "cost_comparison": "dict"},
			Priority:     3,
		},
		&scheduler.Task{
			ID:           "data_fusion",
			Type:         scheduler.TaskDataFusion,
			AgentName:    AgentOrchestrator,
			Description:  "Combine and reconcile Fabric and Genie taxi analysis results",
			InputSchema:  map[string]string{"fabric_result": "dict", "genie_result": "dict"},
			OutputSchema: map[string]string{"unified_analysis": "dict", "differences": "list", "confidence": "float"},
			Dependencies: []string{"taxi_fabric_analysis", "taxi_genie_analysis"},
			Priority:     2,
		},
		&scheduler.Task{
			ID:           "email_summary",
			Type:         scheduler.TaskEmailSend,
			AgentName:    AgentEmail,
			Description:  "Send comprehensive travel summary email",
			InputSchema:  map[string]string{"recipient": "string", "hotel_data": "dict", "taxi_data": "dict", "summary": "string"},
			OutputSchema: map[string]string{"email_sent": "bool", "delivery_status": "string", "tracking_info": "dict"},
			Dependencies: []string{"hotel_search", "data_fusion"},
			Priority:     1,
		},
	)
}

// NewDataConsistency builds the Fabric versus Genie comparison graph.
func NewDataConsistency(_ string) *scheduler.Graph {
	return mustBuild(
		"data_consistency_001",
		"data_consistency_check",
		"Compare Fabric vs Genie data consistency and report differences",
		scheduler.CompletionCriteria{
			Required: []string{"fabric_data_pull", "genie_data_pull", "consistency_check"},
			Optional: []string{"consistency_report_email"},
		},
		&scheduler.Task{
			ID:           "fabric_data_pull",
			Type:         scheduler.TaskTaxiAnalysisFabric,
			AgentName:    AgentTaxiFabric,
			Description:  "Pull 30-day taxi statistics from Fabric",
			InputSchema:  map[string]string{"period_days": "int", "metrics": "list"},
			OutputSchema: map[string]string{"metrics": "dict", "period": "string", "data_quality": "dict"},
			Priority:     3,
		},
		&scheduler.Task{
			ID:           "genie_data_pull",
			Type:         scheduler.TaskTaxiAnalysisGenie,
			AgentName:    AgentTaxiGenie,
			Description:  "Pull 30-day taxi statistics from Genie",
			InputSchema:  map[string]string{"period_days": "int", "metrics": "list"},
			OutputSchema: map[string]string{"metrics": "dict", "period": "string", "data_quality": "dict"},
			Priority:     3,
		},
		&scheduler.Task{
			ID:           "consistency_check",
			Type:         scheduler.TaskConflictResolution,
			AgentName:    AgentOrchestrator,
			Description:  "Compare metrics and identify differences >5%",
			InputSchema:  map[string]string{"fabric_data": "dict", "genie_data": "dict", "threshold": "float"},
			OutputSchema: map[string]string{"consistent": "bool", "differences": "list", "variance_report": "dict"},
			Dependencies: []string{"fabric_data_pull", "genie_data_pull"},
			Priority:     2,
		},
		&scheduler.Task{
			ID:           "consistency_report_email",
			Type:         scheduler.TaskEmailSend,
			AgentName:    AgentEmail,
			Description:  "Send data consistency report email (optional)",
			InputSchema:  map[string]string{"recipient": "string", "report": "dict", "send_requested": "bool"},
			OutputSchema: map[string]string{"email_sent": "bool", "delivery_status": "string"},
			Dependencies: []string{"consistency_check"},
			Priority:     1,
		},
	)
}

// NewDecisionPackage builds the hotel, transport insight and decision email graph.
// genie_validation hangs off the hotspot analysis but nothing waits for it.
func NewDecisionPackage(_ string) *scheduler.Graph {
	return mustBuild(
		"decision_package_001",
		"hotel_transport_decision_package",
		"Hotel recommendations + transport insights + email decision package",
		scheduler.CompletionCriteria{
			Required: []string{"hotel_recommendations", "taxi_hotspot_analysis", "decision_package"},
			Optional: []string{"genie_validation"},
		},
		&scheduler.Task{
			ID:           "hotel_recommendations",
			Type:         scheduler.TaskHotelSearch,
			AgentName:    AgentHotel,
			Description:  "Find 3 top-rated hotels with parking near Times Square",
			InputSchema:  map[string]string{"location": "string", "min_rating": "float", "requirements": "list", "limit": "int"},
			OutputSchema: map[string]string{"hotels": "list", "amenities": "dict", "pricing": "dict", "locations": "list"},
			Priority:     3,
		},
		&scheduler.Task{
			ID:           "taxi_hotspot_analysis",
			Type:         scheduler.TaskTaxiAnalysisFabric,
			AgentName:    AgentTaxiFabric,
			Description:  "Analyze taxi pickup hotspots and peak times near hotels",
			InputSchema:  map[string]string{"location": "string", "radius_km": "float", "analysis_type": "string"},
			OutputSchema: map[string]string{"hotspots": "list", "peak_times": "list", "avg_fares": "dict"},
			Dependencies: []string{"hotel_recommendations"},
			Priority:     2,
		},
		&scheduler.Task{
			ID:           "genie_validation",
			Type:         scheduler.TaskTaxiAnalysisGenie,
			AgentName:    AgentTaxiGenie,
			Description:  "Validate hotspot analysis with Genie data",
			InputSchema:  map[string]string{"location": "string", "hotspots_to_validate": "list"},
			OutputSchema: map[string]string{"validated_hotspots": "list", "discrepancies": "list", "confidence_score": "float"},
			Dependencies: []string{"taxi_hotspot_analysis"},
			Priority:     2,
		},
		&scheduler.Task{
			ID:           "decision_package",
			Type:         scheduler.TaskEmailSend,
			AgentName:    AgentEmail,
			Description:  "Send comprehensive decision package with hotels, transport insights, and recommendations",
			InputSchema:  map[string]string{"recipient": "string", "hotel_data": "dict", "transport_data": "dict", "package_type": "string"},
			OutputSchema: map[string]string{"email_sent": "bool", "package_delivered": "bool", "tracking_info": "dict"},
			Dependencies: []string{"hotel_recommendations", "taxi_hotspot_analysis"},
			Priority:     1,
		},
	)
}
