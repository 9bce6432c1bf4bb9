// Package cache persists merged company records keyed by company identifier,
// with independent static and live freshness windows and a timestamp-based
// advisory fetch lock. Backends: Postgres, SQLite, Redis.
package cache

import (
	"context"
	"time"

	"github.com/sells-group/portfolio-cli/internal/model"
)

const (
	// StaticTTL is the freshness window for profile/funding/team data.
	StaticTTL = 30 * 24 * time.Hour

	// LiveTTL is the freshness window for price/metrics/news data.
	LiveTTL = 15 * time.Minute

	// DefaultLockGrace is how long a persisted fetch lock is honored before
	// it is treated as abandoned and may be stolen by another process.
	DefaultLockGrace = 5 * time.Minute
)

// Record is the per-company cache aggregate. Exactly one exists per company.
type Record struct {
	CompanyID         string                          `json:"company_id"`
	Payload           map[model.DataType]model.Section `json:"payload"`
	DataCategory      model.DataCategory              `json:"data_category"`
	Confidence        float64                         `json:"confidence_score"`
	LastFetchedStatic *time.Time                      `json:"last_fetched_static,omitempty"`
	LastFetchedLive   *time.Time                      `json:"last_fetched_live,omitempty"`
	FetchLock         *time.Time                      `json:"fetch_lock,omitempty"`
	CreatedAt         time.Time                       `json:"created_at"`
	UpdatedAt         time.Time                       `json:"updated_at"`
}

// IsStale reports whether any requested data type falls outside its
// freshness window. A nil record is always stale. Static types are judged
// against LastFetchedStatic with StaticTTL, live types against
// LastFetchedLive with LiveTTL; a record fresh for one window can be stale
// for the other.
func (r *Record) IsStale(requested []model.DataType, now time.Time) bool {
	if r == nil {
		return true
	}
	for _, dt := range requested {
		switch {
		case dt.IsStatic():
			if r.LastFetchedStatic == nil || now.Sub(*r.LastFetchedStatic) > StaticTTL {
				return true
			}
		case dt.IsLive():
			if r.LastFetchedLive == nil || now.Sub(*r.LastFetchedLive) > LiveTTL {
				return true
			}
		}
	}
	return false
}

// Normalized builds the caller-facing view of the cached record, filtered to
// the requested data types. Types never cached come back as error sections so
// the caller always sees one entry per requested type.
func (r *Record) Normalized(requested []model.DataType) *model.NormalizedRecord {
	sections := make(map[model.DataType]model.Section, len(requested))
	var sources []string
	seen := make(map[string]bool)
	for _, dt := range requested {
		sec, ok := r.Payload[dt]
		if !ok {
			sections[dt] = model.Section{Error: "not cached"}
			continue
		}
		sections[dt] = sec
		if sec.Source != "" && !seen[sec.Source] {
			seen[sec.Source] = true
			sources = append(sources, sec.Source)
		}
	}

	fetchedAt := r.UpdatedAt
	if r.LastFetchedLive != nil && r.LastFetchedLive.After(fetchedAt) {
		fetchedAt = *r.LastFetchedLive
	}

	return &model.NormalizedRecord{
		CompanyID:    r.CompanyID,
		Sections:     sections,
		DataCategory: r.DataCategory,
		Confidence:   r.Confidence,
		DataSources:  sources,
		FetchedAt:    fetchedAt,
	}
}

// Store is the persistence interface for the company-data cache.
// Implementations provide upsert semantics with additive payload merge and
// partial timestamp updates; see applyUpdate.
type Store interface {
	// Get returns the cache record for a company, or nil when none exists.
	Get(ctx context.Context, companyID string) (*Record, error)

	// Upsert merges a normalized record into the company's cache aggregate
	// and returns the resulting record.
	Upsert(ctx context.Context, companyID string, rec *model.NormalizedRecord) (*Record, error)

	// TryLock attempts to take the persisted fetch lock. Returns false when
	// a lock younger than grace is already held.
	TryLock(ctx context.Context, companyID string, grace time.Duration) (bool, error)

	// Unlock clears the persisted fetch lock. Safe to call when not held.
	Unlock(ctx context.Context, companyID string) error

	Migrate(ctx context.Context) error
	Close() error
}

// applyUpdate merges a freshly fetched normalized record into an existing
// cache aggregate. Shared by every backend so the merge semantics cannot
// drift:
//   - only successful sections are written; failed sections never clobber
//     previously cached data
//   - the payload merge is additive across data types
//   - LastFetchedStatic/LastFetchedLive move only when at least one section
//     of that window succeeded in this cycle
//   - DataCategory is recomputed from the union of cached data types
func applyUpdate(existing *Record, companyID string, rec *model.NormalizedRecord, now time.Time) *Record {
	out := &Record{
		CompanyID: companyID,
		Payload:   make(map[model.DataType]model.Section),
		CreatedAt: now,
	}
	if existing != nil {
		out.CreatedAt = existing.CreatedAt
		out.LastFetchedStatic = existing.LastFetchedStatic
		out.LastFetchedLive = existing.LastFetchedLive
		for dt, sec := range existing.Payload {
			out.Payload[dt] = sec
		}
	}

	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}

	var hasStatic, hasLive bool
	for dt, sec := range rec.Sections {
		if !sec.OK() {
			continue
		}
		out.Payload[dt] = sec
		if dt.IsStatic() {
			hasStatic = true
		}
		if dt.IsLive() {
			hasLive = true
		}
	}
	if hasStatic {
		t := fetchedAt
		out.LastFetchedStatic = &t
	}
	if hasLive {
		t := fetchedAt
		out.LastFetchedLive = &t
	}

	cached := make([]model.DataType, 0, len(out.Payload))
	for dt := range out.Payload {
		cached = append(cached, dt)
	}
	out.DataCategory = model.Classify(cached)
	out.Confidence = rec.Confidence
	out.UpdatedAt = now

	return out
}
