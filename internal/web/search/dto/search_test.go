package dto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaults() SearchDefaults {
	return SearchDefaults{
		SkillThreshold: 0.4,
		ToolThreshold:  0.3,
		SkillLimit:     5,
		Limit:          10,
	}
}

func TestSanitizeAppliesDefaults(t *testing.T) {
	t.Parallel()

	q, err := (&SearchRequest{Query: "  schedule a meeting  "}).Sanitize(defaults())
	require.NoError(t, err)

	require.Equal(t, "schedule a meeting", q.Query)
	require.Equal(t, StrategyHierarchical, q.Strategy)
	require.Equal(t, "", q.ItemType)
	require.Equal(t, 0.4, q.SkillThreshold)
	require.Equal(t, 0.3, q.ToolThreshold)
	require.Equal(t, 5, q.SkillLimit)
	require.Equal(t, 10, q.Limit)
	require.True(t, q.IncludeSchemas)
}

func TestSanitizeExplicitZeroThresholdIsKept(t *testing.T) {
	t.Parallel()

	zero := 0.0
	q, err := (&SearchRequest{Query: "q", SkillThreshold: &zero, ToolThreshold: &zero}).Sanitize(defaults())
	require.NoError(t, err)
	require.Equal(t, 0.0, q.SkillThreshold)
	require.Equal(t, 0.0, q.ToolThreshold)
}

func TestSanitizeRejections(t *testing.T) {
	t.Parallel()

	bad := -0.1
	over := 1.5
	tooMany := 51
	negative := -1

	cases := []struct {
		name string
		req  SearchRequest
	}{
		{"empty query", SearchRequest{Query: ""}},
		{"blank query", SearchRequest{Query: "   "}},
		{"overlong query", SearchRequest{Query: strings.Repeat("a", MaxQueryChars+1)}},
		{"bad strategy", SearchRequest{Query: "q", Strategy: "fuzzy"}},
		{"bad item type", SearchRequest{Query: "q", ItemType: "gadget"}},
		{"negative skill threshold", SearchRequest{Query: "q", SkillThreshold: &bad}},
		{"skill threshold above one", SearchRequest{Query: "q", SkillThreshold: &over}},
		{"negative tool threshold", SearchRequest{Query: "q", ToolThreshold: &bad}},
		{"limit above cap", SearchRequest{Query: "q", Limit: &tooMany}},
		{"negative limit", SearchRequest{Query: "q", Limit: &negative}},
		{"negative skill limit", SearchRequest{Query: "q", SkillLimit: &negative}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tc.req.Sanitize(defaults())
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestSanitizeBoundaryValues(t *testing.T) {
	t.Parallel()

	one := 1.0
	maxLimit := MaxLimit
	q, err := (&SearchRequest{
		Query:          strings.Repeat("a", MaxQueryChars),
		SkillThreshold: &one,
		Limit:          &maxLimit,
	}).Sanitize(defaults())
	require.NoError(t, err)
	require.Equal(t, 1.0, q.SkillThreshold)
	require.Equal(t, MaxLimit, q.Limit)
}

func TestSanitizeNormalizesCasing(t *testing.T) {
	t.Parallel()

	q, err := (&SearchRequest{Query: "q", Strategy: "Direct", ItemType: " Tool "}).Sanitize(defaults())
	require.NoError(t, err)
	require.Equal(t, StrategyDirect, q.Strategy)
	require.Equal(t, "tool", q.ItemType)
}

func TestEnrichedToolNullSchemaSerialization(t *testing.T) {
	t.Parallel()

	tool := EnrichedTool{
		ID:       "a",
		SkillIDs: []string{},
	}
	encoded, err := json.Marshal(tool)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"input_schema":null`)
	require.Contains(t, string(encoded), `"skill_ids":[]`)
}

func TestMetadataNullSkillIDsSerialization(t *testing.T) {
	t.Parallel()

	meta := SearchMetadata{StrategyUsed: StrategyHierarchical}
	encoded, err := json.Marshal(meta)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"skill_ids_used":null`)
}
