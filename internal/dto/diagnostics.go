package dto

import "time"

type SystemHealth struct {
	TotalProviders   int              `json:"totalProviders"`
	HealthyProviders int              `json:"healthyProviders"`
	Providers        []ProviderHealth `json:"providers"`
}

type ProviderHealth struct {
	Name                string    `json:"name"`
	DisplayName         string    `json:"displayName"`
	Channels            []string  `json:"channels"`
	Priority            int       `json:"priority"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastHealthChange    time.Time `json:"lastHealthChange"`
}

type Recommendation struct {
	Severity string   `json:"severity"` // info | warning | critical
	Title    string   `json:"title"`
	Detail   string   `json:"detail"`
	Tips     []string `json:"tips,omitempty"`
}

type TroubleshootingEntry struct {
	Issue string   `json:"issue"`
	Error string   `json:"error"`
	Steps []string `json:"steps"`
}

type EscalationPath struct {
	Name             string `json:"name"`
	Priority         string `json:"priority"` // low | medium | high | critical
	Contact          string `json:"contact"`
	ExpectedResponse string `json:"expectedResponse"`
}

type DiagnosticsResponse struct {
	SystemHealth    SystemHealth           `json:"systemHealth"`
	UserHistory     *DeliveryHistory       `json:"userHistory,omitempty"`
	Recommendations []Recommendation       `json:"recommendations"`
	Troubleshooting []TroubleshootingEntry `json:"troubleshooting"`
	EscalationPaths []EscalationPath       `json:"escalationPaths"`
}

type ConnectivityTestRequest struct {
	Channel string `json:"channel"`
	Contact string `json:"contact"`
}

type ProviderTestResult struct {
	Provider  string `json:"provider"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

type ConnectivityTestResponse struct {
	Channel         string               `json:"channel"`
	Results         []ProviderTestResult `json:"results"`
	Summary         string               `json:"summary"`
	Recommendations []Recommendation     `json:"recommendations"`
}

type DiagnosticReportRequest struct {
	ReportType  string `json:"reportType"` // delivery_failure | verification_issue | other
	Description string `json:"description"`
	DeliveryRef string `json:"deliveryRef,omitempty"`
}

type DiagnosticTicket struct {
	TicketID         string   `json:"ticketId"`
	Priority         string   `json:"priority"`
	ExpectedResponse string   `json:"expectedResponse"`
	NextSteps        []string `json:"nextSteps"`
}

type DeliveryTroubleshootingResponse struct {
	ChallengeID     string           `json:"challengeId"`
	Status          string           `json:"status"`
	Channel         string           `json:"channel"`
	Attempts        []AttemptView    `json:"attempts"`
	Recommendations []Recommendation `json:"recommendations"`
	NextSteps       []string         `json:"nextSteps"`
}
