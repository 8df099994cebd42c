package domain

// HealthStatus is the liveness/version probe result. It has no identity
// beyond "last observed".
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}
