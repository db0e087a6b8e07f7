package dto

// HealthResponse describes the payload returned by standard /healthz endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// StoreReport is returned by the operator store diagnostics endpoint.
type StoreReport struct {
	Status      string   `json:"status"`
	Backend     string   `json:"backend"`
	Database    string   `json:"database,omitempty"`
	Connection  string   `json:"connection"`
	CacheState  string   `json:"cacheState"`
	Collections []string `json:"collections,omitempty"`
	UserCount   int64    `json:"userCount"`
	Environment string   `json:"environment"`
	Error       string   `json:"error,omitempty"`
}
