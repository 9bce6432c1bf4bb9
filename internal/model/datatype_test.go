package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		types []DataType
		want  DataCategory
	}{
		{"all static", []DataType{DataProfile, DataFunding, DataTeam}, CategoryStatic},
		{"all live", []DataType{DataPrice, DataMetrics, DataNews}, CategoryLive},
		{"mixed", []DataType{DataProfile, DataPrice}, CategoryMixed},
		{"single static", []DataType{DataFunding}, CategoryStatic},
		{"single live", []DataType{DataMetrics}, CategoryLive},
		{"empty defaults to mixed", nil, CategoryMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.types))
		})
	}
}

func TestParseDataTypes(t *testing.T) {
	got, err := ParseDataTypes([]string{"profile", "price", "profile"})
	require.NoError(t, err)
	assert.Equal(t, []DataType{DataProfile, DataPrice}, got, "duplicates collapse, order preserved")

	_, err = ParseDataTypes([]string{"profile", "sentiment"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentiment")
}

func TestSortTypes(t *testing.T) {
	got := SortTypes([]DataType{DataNews, DataProfile, DataPrice})
	assert.Equal(t, []DataType{DataProfile, DataPrice, DataNews}, got)
}

func TestSectionOK(t *testing.T) {
	assert.True(t, Section{Data: map[string]any{"x": 1}, Source: "tavily"}.OK())
	assert.False(t, Section{Error: "timeout"}.OK())
	assert.False(t, Section{}.OK(), "empty data is not usable")
}
