package model

import (
	"sort"

	"github.com/rotisserie/eris"
)

// DataType names one kind of company data the engine can fetch.
type DataType string

const (
	DataProfile DataType = "profile"
	DataFunding DataType = "funding"
	DataTeam    DataType = "team"
	DataPrice   DataType = "price"
	DataMetrics DataType = "metrics"
	DataNews    DataType = "news"
)

// AllDataTypes is the fixed request vocabulary, in canonical order.
var AllDataTypes = []DataType{DataProfile, DataFunding, DataTeam, DataPrice, DataMetrics, DataNews}

var staticTypes = map[DataType]bool{
	DataProfile: true,
	DataFunding: true,
	DataTeam:    true,
}

var liveTypes = map[DataType]bool{
	DataPrice:   true,
	DataMetrics: true,
	DataNews:    true,
}

// IsStatic reports whether the data type falls under the long (static) TTL window.
func (d DataType) IsStatic() bool { return staticTypes[d] }

// IsLive reports whether the data type falls under the short (live) TTL window.
func (d DataType) IsLive() bool { return liveTypes[d] }

// ParseDataTypes validates a list of raw data type names, deduplicating while
// preserving first-seen order.
func ParseDataTypes(raw []string) ([]DataType, error) {
	seen := make(map[DataType]bool, len(raw))
	var out []DataType
	for _, r := range raw {
		dt := DataType(r)
		if !staticTypes[dt] && !liveTypes[dt] {
			return nil, eris.Errorf("model: unknown data type %q", r)
		}
		if seen[dt] {
			continue
		}
		seen[dt] = true
		out = append(out, dt)
	}
	return out, nil
}

// DataCategory classifies a set of data types by freshness window.
type DataCategory string

const (
	CategoryStatic DataCategory = "static"
	CategoryLive   DataCategory = "live"
	CategoryMixed  DataCategory = "mixed"
)

// Classify returns static when every type is static, live when every type is
// live, and mixed otherwise. The empty set classifies as mixed.
func Classify(types []DataType) DataCategory {
	if len(types) == 0 {
		return CategoryMixed
	}
	allStatic, allLive := true, true
	for _, dt := range types {
		if !dt.IsStatic() {
			allStatic = false
		}
		if !dt.IsLive() {
			allLive = false
		}
	}
	switch {
	case allStatic:
		return CategoryStatic
	case allLive:
		return CategoryLive
	default:
		return CategoryMixed
	}
}

// SortTypes returns a copy sorted in canonical vocabulary order. Types not in
// the vocabulary sort last, alphabetically.
func SortTypes(types []DataType) []DataType {
	rank := make(map[DataType]int, len(AllDataTypes))
	for i, dt := range AllDataTypes {
		rank[dt] = i
	}
	out := append([]DataType(nil), types...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		if iok != jok {
			return iok
		}
		if !iok {
			return out[i] < out[j]
		}
		return ri < rj
	})
	return out
}
