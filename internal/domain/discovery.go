package domain

// ReadinessStatus is the tri-state verdict of the readiness evaluator
type ReadinessStatus string

const (
	ReadinessFeasible ReadinessStatus = "feasible"
	ReadinessPartial  ReadinessStatus = "partial"
	ReadinessBlocked  ReadinessStatus = "blocked"
)

// Readiness is a verdict plus a human-readable reason
type Readiness struct {
	Status  ReadinessStatus `json:"status"`
	Message string          `json:"message"`
}

// SourceSystemStatus describes the presence and version of the source system
type SourceSystemStatus struct {
	Version    string `json:"version"`
	Active     bool   `json:"active"`
	Compatible bool   `json:"compatible"`
}

// GatewaySummary is one line of the gateway distribution report
type GatewaySummary struct {
	GatewayID         string `json:"gateway_id"`
	Title             string `json:"title"`
	Message           string `json:"message"`
	SubscriptionCount int    `json:"subscription_count"`
	Compatible        bool   `json:"compatible"`
}

// ProductCounts breaks eligible products down by type
type ProductCounts struct {
	Simple          int  `json:"simple"`
	Variable        int  `json:"variable"`
	Attachable      int  `json:"attachable"`
	Total           int  `json:"total"`
	AttachableAvail bool `json:"attachable_active"`
}

// FeasibilityReport is the result of discovery
type FeasibilityReport struct {
	SubscriptionCountsByStatus map[string]int     `json:"subscription_counts_by_status"`
	Readiness                  Readiness          `json:"readiness"`
	SourceStatus               SourceSystemStatus `json:"source_status"`
	GatewayReport              []GatewaySummary   `json:"gateway_report"`
	ProductCounts              ProductCounts      `json:"product_counts"`
	SubscriptionCount          int                `json:"subscription_count"`
	TargetActive               bool               `json:"target_active"`
}
