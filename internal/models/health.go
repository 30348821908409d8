package models

// DiagStatus is the outcome of a single self-check.
type DiagStatus string

const (
	DiagPending DiagStatus = "PENDING"
	DiagPass    DiagStatus = "PASS"
	DiagFail    DiagStatus = "FAIL"
)

// DiagnosticRecord reports one self-check outcome with its measured duration.
type DiagnosticRecord struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     DiagStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	Message    string     `json:"message,omitempty"`
}

// APIStatus summarises inference-backend reachability for the dashboard.
type APIStatus string

const (
	APIHealthy  APIStatus = "HEALTHY"
	APIDegraded APIStatus = "DEGRADED"
	APIDown     APIStatus = "DOWN"
)

// PipelineStats is the dashboard counters block, computed fresh from ledger
// state on every call.
type PipelineStats struct {
	Total      int `json:"total"`
	Critical   int `json:"critical"`
	Dispatched int `json:"dispatched"`
	Solved     int `json:"solved"`
}

// HealthSnapshot combines connectivity, cache efficiency, and the most recent
// diagnostics run.
type HealthSnapshot struct {
	APIStatus          APIStatus          `json:"api_status"`
	CacheHitRate       int                `json:"cache_hit_rate"`
	ActiveTestsPassing int                `json:"active_tests_passing"`
	Diagnostics        []DiagnosticRecord `json:"diagnostics"`
}

// Preferences is the small per-deployment dashboard configuration record kept
// on the preferences surface of the content cache.
type Preferences struct {
	DarkMode        bool   `json:"dark_mode"`
	RefreshInterval int    `json:"refresh_interval_sec"`
	DefaultRegion   string `json:"default_region"`
	UseGrounding    bool   `json:"use_grounding"`
}

// DefaultPreferences returns the record used before a deployment saves its own.
func DefaultPreferences() Preferences {
	return Preferences{
		DarkMode:        true,
		RefreshInterval: 30,
		DefaultRegion:   "sf-bay-area",
	}
}
