package agent

// Profile is the fixed persona of a known team member.
type Profile struct {
	DisplayName  string
	Role         string
	Description  string
	Instructions string
	Capabilities []string
	Tools        []Tool
	Samples      []string
}

var profiles = map[string]Profile{
	"hotel": {
		DisplayName: "Hotel Search Assistant",
		Role:        "Hotel Search & Recommendations",
		Description: "Professional hotel search assistant for accommodation recommendations",
		Instructions: `You are the hotel search specialist in a travel planning team.
Find and recommend hotels based on location, amenities such as parking, rating, price and special requirements.
Provide specific recommendations with reasoning and always consider parking availability and location convenience.`,
		Capabilities: []string{"Hotel search", "Amenity lookup", "Rating comparison"},
		Samples: []string{
			"Can you recommend a boutique hotel in New York?",
			"Are there any hotels with parking included?",
		},
	},
	"taxi_fabric": {
		DisplayName: "Taxi Data Analysis Agent (Fabric)",
		Role:        "Microsoft Fabric Data Analysis",
		Description: "Professional taxi data analysis assistant (Microsoft Fabric)",
		Instructions: `You are the taxi data analysis specialist using a Microsoft Fabric lakehouse.
Analyze holiday versus weekday patterns, day (7:00-19:00) versus night (19:00-7:00) fares, pickup areas and passenger counts.
When asked for metrics, answer with a single JSON object of numeric fields such as avg_fare, total_trips, day_trips and night_trips.`,
		Capabilities: []string{"Day/night comparison", "Pickup hotspots", "Fare anomalies"},
		Tools: []Tool{
			{Name: "get_daily_trip_stats", Description: "Get total trip count and revenue for a specific date", Parameters: map[string]string{"date": "string (YYYY-MM-DD format)"}},
			{Name: "get_day_night_comparison", Description: "Compare day vs night ride patterns and fares", Parameters: map[string]string{"days": "integer (default 60)"}},
			{Name: "get_top_pickup_areas", Description: "Get top pickup areas by ride volume", Parameters: map[string]string{"days": "integer (default 30)"}},
			{Name: "get_passenger_count_distribution", Description: "Get distribution of passenger counts", Parameters: map[string]string{}},
			{Name: "get_highest_fares", Description: "Get highest fare amounts with trip details", Parameters: map[string]string{"start_date": "string", "limit": "integer"}},
		},
		Samples: []string{
			"Compare the number of trips and average fare amount between daytime and nighttime.",
			"Identify the pickup zip code with the highest number of trips.",
		},
	},
	"taxi_genie": {
		DisplayName: "Taxi Data Analysis Agent (Genie)",
		Role:        "Databricks Genie Analysis",
		Description: "Professional taxi data analysis assistant (Databricks Genie)",
		Instructions: `You are the taxi data analysis specialist using Databricks Genie over the NYC taxi dataset.
Report fare statistics, time-based usage patterns, distance versus fare correlations and outlier trips.
When asked for metrics, answer with a single JSON object of numeric fields such as avg_fare, total_trips, day_trips and night_trips.`,
		Capabilities: []string{"Natural language queries", "Fare statistics", "Outlier detection"},
		Tools: []Tool{
			{Name: "ask_genie", Description: "Query Databricks Genie system for taxi trip analysis", Parameters: map[string]string{
				"question":        "string - Natural language question about taxi data",
				"conversation_id": "string (optional) - Conversation ID to maintain context",
			}},
		},
		Samples: []string{
			"What is the average fare amount per trip?",
			"Which pickup zip codes have the highest average fares?",
		},
	},
	"email": {
		DisplayName:  "Email Automation Agent",
		Role:         "Azure Logic Apps Email Integration",
		Description:  "Professional email automation assistant",
		Capabilities: []string{"Email sending automation", "Logic Apps integration", "Decision package delivery", "Reports and notifications"},
		Tools: []Tool{
			{Name: "send_email_via_logic_app", Description: "Send email via Azure Logic Apps", Parameters: map[string]string{
				"recipient": "string - Email address of the recipient",
				"subject":   "string - Email subject line",
				"body":      "string - Email body content",
			}},
			{Name: "fetch_current_datetime", Description: "Get current date and time", Parameters: map[string]string{}},
		},
	},
}

// ProfileFor returns the persona registered for an agent name. Unknown names
// get a generic profile.
func ProfileFor(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return Profile{DisplayName: name, Role: "Custom agent"}
}
