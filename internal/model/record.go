package model

import "time"

// Section is the merged result for one data type inside a NormalizedRecord.
// Either Data/Source are set (a provider answered) or Error explains why the
// section is empty. Absorbed provider failures surface here rather than as
// call errors.
type Section struct {
	Data   map[string]any `json:"data,omitempty"`
	Source string         `json:"source,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// OK reports whether the section holds usable provider data.
func (s Section) OK() bool { return s.Error == "" && len(s.Data) > 0 }

// NormalizedRecord is the single merged view of a company across providers.
type NormalizedRecord struct {
	CompanyID    string               `json:"company_id"`
	CompanyName  string               `json:"company_name,omitempty"`
	Sections     map[DataType]Section `json:"sections"`
	DataCategory DataCategory         `json:"data_category"`
	Confidence   float64              `json:"confidence_score"`
	DataSources  []string             `json:"data_sources,omitempty"`
	FetchedAt    time.Time            `json:"fetched_at"`
}

// Result sources reported in fetch metadata.
const (
	SourceLive         = "live"          // fresh provider fetch this call
	SourceCache        = "cache"         // served from a fresh cache record
	SourceLockFallback = "lock_fallback" // another fetch in flight; cached data returned as-is
)

// FetchMetadata describes how a fetch request was satisfied.
type FetchMetadata struct {
	Source        string     `json:"source"`
	DataTypes     []DataType `json:"data_types"`
	Confidence    float64    `json:"confidence_score"`
	ExecutionTime int64      `json:"execution_time_ms"`
	CycleID       string     `json:"cycle_id,omitempty"`
}

// FetchResult is the caller-facing envelope returned by the fetch service.
type FetchResult struct {
	Data *NormalizedRecord `json:"data"`
	Meta FetchMetadata     `json:"metadata"`
}
