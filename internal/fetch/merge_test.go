package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/portfolio-cli/internal/model"
)

var mergeNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

var testCompany = model.Company{ID: "acme", Name: "Acme", Type: model.CompanyCrypto, TokenSymbol: "ACME"}

func okResult(provider string, dt model.DataType, data map[string]any) (string, TaskResult) {
	return provider + "_" + string(dt), TaskResult{Provider: provider, DataType: string(dt), Data: data}
}

func errResult(provider string, dt model.DataType, msg string) (string, TaskResult) {
	return provider + "_" + string(dt), TaskResult{Provider: provider, DataType: string(dt), Err: msg}
}

func TestMerge_FullSuccess(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := okResult(ProviderTavily, model.DataProfile, map[string]any{"summary": "Acme overview"})
	results[k] = v
	k, v = okResult(ProviderCoinGecko, model.DataPrice, map[string]any{"current_price": 2.5})
	results[k] = v

	requested := []model.DataType{model.DataProfile, model.DataPrice}
	rec := Merge(testCompany, requested, results, mergeNow)

	assert.Equal(t, "acme", rec.CompanyID)
	assert.Equal(t, model.CategoryMixed, rec.DataCategory)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, []string{"coingecko", "tavily"}, rec.DataSources)
	assert.Equal(t, "tavily", rec.Sections[model.DataProfile].Source)
	assert.Equal(t, 2.5, rec.Sections[model.DataPrice].Data["current_price"])
	assert.Equal(t, mergeNow, rec.FetchedAt)
}

func TestMerge_PartialFailureKeepsPerSectionErrors(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := okResult(ProviderTavily, model.DataProfile, map[string]any{"summary": "ok"})
	results[k] = v
	k, v = errResult(ProviderCoinGecko, model.DataPrice, "timeout")
	results[k] = v

	requested := []model.DataType{model.DataProfile, model.DataPrice}
	rec := Merge(testCompany, requested, results, mergeNow)

	assert.True(t, rec.Sections[model.DataProfile].OK())
	assert.Equal(t, "timeout", rec.Sections[model.DataPrice].Error)
	assert.Equal(t, 0.5, rec.Confidence)
	assert.Equal(t, []string{"tavily"}, rec.DataSources)
}

func TestMerge_PriorityOrderPicksWinner(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := okResult(ProviderCoinGecko, model.DataPrice, map[string]any{"current_price": 1.0})
	results[k] = v
	k, v = okResult(ProviderOpenBB, model.DataPrice, map[string]any{"current_price": 1.1})
	results[k] = v

	rec := Merge(testCompany, []model.DataType{model.DataPrice}, results, mergeNow)
	assert.Equal(t, "coingecko", rec.Sections[model.DataPrice].Source,
		"coingecko outranks openbb for the price section")
}

func TestMerge_FallsBackToLowerPriorityProvider(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := errResult(ProviderCoinGecko, model.DataPrice, "timeout")
	results[k] = v
	k, v = okResult(ProviderOpenBB, model.DataPrice, map[string]any{"current_price": 9.0})
	results[k] = v

	rec := Merge(testCompany, []model.DataType{model.DataPrice}, results, mergeNow)
	assert.Equal(t, "openbb", rec.Sections[model.DataPrice].Source)
	assert.Equal(t, 1.0, rec.Confidence)
}

func TestMerge_AgreementBonus(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := okResult(ProviderCoinGecko, model.DataPrice, map[string]any{"current_price": 1.0})
	results[k] = v
	k, v = okResult(ProviderOpenBB, model.DataPrice, map[string]any{"current_price": 1.01})
	results[k] = v
	k, v = okResult(ProviderTavily, model.DataProfile, map[string]any{"summary": "ok"})
	results[k] = v
	k, v = errResult(ProviderTavily, model.DataFunding, "unavailable")
	results[k] = v
	k, v = errResult(ProviderTavily, model.DataTeam, "unavailable")
	results[k] = v

	requested := []model.DataType{model.DataProfile, model.DataFunding, model.DataTeam, model.DataPrice}
	rec := Merge(testCompany, requested, results, mergeNow)

	// 2 of 4 populated plus one two-provider agreement.
	assert.InDelta(t, 0.55, rec.Confidence, 1e-9)
}

func TestMerge_ConfidenceClampedToOne(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := okResult(ProviderCoinGecko, model.DataPrice, map[string]any{"current_price": 1.0})
	results[k] = v
	k, v = okResult(ProviderOpenBB, model.DataPrice, map[string]any{"current_price": 1.0})
	results[k] = v

	rec := Merge(testCompany, []model.DataType{model.DataPrice}, results, mergeNow)
	assert.Equal(t, 1.0, rec.Confidence)
}

func TestMerge_AllFailedIsZeroConfidence(t *testing.T) {
	results := map[string]TaskResult{}
	k, v := errResult(ProviderTavily, model.DataProfile, "timeout")
	results[k] = v

	rec := Merge(testCompany, []model.DataType{model.DataProfile}, results, mergeNow)
	assert.Equal(t, 0.0, rec.Confidence)
	assert.Empty(t, rec.DataSources)
	assert.Equal(t, "timeout", rec.Sections[model.DataProfile].Error)
}

func TestMerge_TypeWithNoTaskIsUnavailable(t *testing.T) {
	// A private company with no ticker plans no metrics task at all.
	rec := Merge(testCompany, []model.DataType{model.DataMetrics}, map[string]TaskResult{}, mergeNow)
	assert.Equal(t, "unavailable", rec.Sections[model.DataMetrics].Error)
	assert.Equal(t, 0.0, rec.Confidence)
}

func TestExecuteAndMerge_ProfileSucceedsPriceTimesOut(t *testing.T) {
	tasks := []Task{
		{
			Provider: ProviderTavily,
			DataType: model.DataProfile,
			Timeout:  time.Second,
			Call: func(ctx context.Context) (map[string]any, error) {
				return map[string]any{"summary": "Acme overview"}, nil
			},
		},
		{
			Provider: ProviderCoinGecko,
			DataType: model.DataPrice,
			Timeout:  20 * time.Millisecond,
			Call: func(ctx context.Context) (map[string]any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	requested := []model.DataType{model.DataProfile, model.DataPrice}
	results := NewExecutor().Execute(context.Background(), tasks, "acme")
	rec := Merge(testCompany, requested, results, mergeNow)

	assert.True(t, rec.Sections[model.DataProfile].OK())
	assert.Equal(t, "timeout", rec.Sections[model.DataPrice].Error)
	assert.Equal(t, model.CategoryMixed, rec.DataCategory)
	assert.Equal(t, 0.5, rec.Confidence)
	assert.Equal(t, []string{"tavily"}, rec.DataSources)
}

func TestMerge_EmptyRequestClassifiesMixed(t *testing.T) {
	rec := Merge(testCompany, nil, map[string]TaskResult{}, mergeNow)
	assert.Equal(t, model.CategoryMixed, rec.DataCategory)
	assert.Equal(t, 0.0, rec.Confidence)
}
