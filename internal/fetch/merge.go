package fetch

import (
	"sort"
	"time"

	"github.com/sells-group/portfolio-cli/internal/model"
)

// sectionPriority orders providers per data type: the first provider with
// usable data wins the section. Later providers still count toward the
// multi-source agreement bonus.
var sectionPriority = map[model.DataType][]string{
	model.DataProfile: {ProviderTavily},
	model.DataFunding: {ProviderTavily},
	model.DataTeam:    {ProviderTavily},
	model.DataNews:    {ProviderTavily},
	model.DataPrice:   {ProviderCoinGecko, ProviderOpenBB},
	model.DataMetrics: {ProviderOpenBB, ProviderCoinGecko},
}

// Confidence scoring: base coverage plus a small bonus per section that more
// than one provider answered, clamped to [0, 1].
const agreementBonus = 0.05

// Merge collapses a cycle's task results into one normalized record. Every
// requested type gets a section: the winning provider's data, or an error
// explaining why the section is empty. A cycle where nothing succeeded still
// merges cleanly with zero confidence.
func Merge(company model.Company, requested []model.DataType, results map[string]TaskResult, now time.Time) *model.NormalizedRecord {
	sections := make(map[model.DataType]model.Section, len(requested))
	sourceSet := make(map[string]bool)

	populated := 0
	bonuses := 0
	for _, dt := range requested {
		answered := 0
		var winner *TaskResult
		var firstErr string
		for _, provider := range sectionPriority[dt] {
			r, ok := results[provider+"_"+string(dt)]
			if !ok {
				continue
			}
			if !r.OK() {
				if firstErr == "" && r.Err != "" {
					firstErr = r.Err
				}
				continue
			}
			answered++
			if winner == nil {
				winner = &r
			}
		}

		if winner == nil {
			if firstErr == "" {
				firstErr = "unavailable"
			}
			sections[dt] = model.Section{Error: firstErr}
			continue
		}

		sections[dt] = model.Section{Data: winner.Data, Source: winner.Provider}
		sourceSet[winner.Provider] = true
		populated++
		if answered > 1 {
			bonuses++
		}
	}

	confidence := 0.0
	if populated > 0 && len(requested) > 0 {
		confidence = float64(populated)/float64(len(requested)) + float64(bonuses)*agreementBonus
		if confidence > 1 {
			confidence = 1
		}
	}

	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	return &model.NormalizedRecord{
		CompanyID:    company.ID,
		CompanyName:  company.Name,
		Sections:     sections,
		DataCategory: model.Classify(requested),
		Confidence:   confidence,
		DataSources:  sources,
		FetchedAt:    now,
	}
}
