package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scheduler"
)

// DefaultLocation is used in hotel prompts when none is configured.
const DefaultLocation = "New York City"

// PromptBuilder renders the prompt an agent receives for a task. Upstream
// results are concatenated into the prompt as plain text.
type PromptBuilder struct {
	Location  string
	Recipient string
}

// Build renders the prompt for task within graph g.
func (b PromptBuilder) Build(g *scheduler.Graph, task *scheduler.Task, query string) string {
	upstream := b.upstream(g, task)

	switch task.Type {
	case scheduler.TaskHotelSearch:
		location := b.Location
		if location == "" {
			location = DefaultLocation
		}
		return fmt.Sprintf("Search for hotels: %s. Location: %s. Requirements: %s", query, location, task.Description)

	case scheduler.TaskTaxiAnalysisFabric:
		params := map[string]string{
			"request":         query,
			"response_format": "a single JSON object of numeric metrics",
		}
		if upstream != "" {
			params["context"] = upstream
		}
		encoded, _ := json.Marshal(params)
		return fmt.Sprintf("Analyze taxi data: %s. Parameters: %s", task.Description, encoded)

	case scheduler.TaskTaxiAnalysisGenie:
		context := "User request: " + query + ". Respond with a single JSON object of numeric metrics."
		if upstream != "" {
			context += " Earlier findings: " + upstream
		}
		return fmt.Sprintf("Query: %s. Context: %s", task.Description, context)

	case scheduler.TaskEmailSend:
		var body strings.Builder
		fmt.Fprintf(&body, "Request: %s", query)
		if upstream != "" {
			body.WriteString("\n\n")
			body.WriteString(upstream)
		}
		return fmt.Sprintf("Send email to %s with subject '%s' and body: %s", b.Recipient, g.Description, body.String())
	}

	if upstream != "" {
		return fmt.Sprintf("%s. Request: %s\n\n%s", task.Description, query, upstream)
	}
	return fmt.Sprintf("%s. Request: %s", task.Description, query)
}

func (b PromptBuilder) upstream(g *scheduler.Graph, task *scheduler.Task) string {
	var sections []string
	for _, depID := range task.Dependencies {
		dep, ok := g.Get(depID)
		if !ok {
			continue
		}
		switch dep.Status {
		case scheduler.TaskCompleted:
			sections = append(sections, fmt.Sprintf("%s:\n%s", depID, RenderResult(dep.Result)))
		case scheduler.TaskSkipped:
			sections = append(sections, fmt.Sprintf("%s: unavailable", depID))
		}
	}
	return strings.Join(sections, "\n\n")
}

// RenderResult formats a task result as text.
func RenderResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case conflict.Report:
		return renderReport(r)
	case *conflict.Report:
		if r == nil {
			return ""
		}
		return renderReport(*r)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}

func renderReport(r conflict.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Resolved %d conflicts using %s (data quality %.2f)", r.ConflictCount, r.ResolutionRule, r.DataQualityScore)
	for _, c := range r.Conflicts {
		if c.Categorical() {
			fmt.Fprintf(&sb, "\n- %s: fabric=%v genie=%v", c.Field, c.FabricValue, c.GenieValue)
			continue
		}
		fmt.Fprintf(&sb, "\n- %s: fabric=%v genie=%v (%.2f%% apart)", c.Field, c.FabricValue, c.GenieValue, c.VariancePercent)
	}
	return sb.String()
}
