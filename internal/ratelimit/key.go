package ratelimit

import "fmt"

// Route names the limited operation.
type Route string

// Routes limited per user.
const (
	RouteAnalysis      Route = "analysis"
	RouteVision        Route = "vision"
	RouteAssessment    Route = "assessment"
	RouteHumanityScore Route = "humanity"
)

// Key builds the limiter key for a user and route.
func Key(userID uint64, route Route) string {
	if userID == 0 || route == "" {
		return ""
	}
	return fmt.Sprintf("u:%d:%s", userID, route)
}
