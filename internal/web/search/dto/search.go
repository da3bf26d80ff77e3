// Package dto defines the request and response contracts of the search API.
package dto

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/capability-search/internal/web/search/model"
)

// Search strategies.
const (
	StrategyHierarchical = "hierarchical"
	StrategyDirect       = "direct"
)

const (
	// MaxQueryChars caps the length of the query string.
	MaxQueryChars = 1000
	// MaxLimit caps the number of items returned per search.
	MaxLimit = 50
)

// ErrInvalidRequest marks request validation failures so the HTTP layer can
// map them to 422 instead of 5xx.
var ErrInvalidRequest = errors.New("invalid search request")

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidRequest, format, args...)
}

// SearchRequest is the raw request body of POST /api/v1/search. Optional
// numeric fields are pointers so an explicit zero is distinguishable from an
// omitted field.
type SearchRequest struct {
	Query          string   `json:"query"`
	Strategy       string   `json:"strategy,omitempty"`
	ItemType       string   `json:"item_type,omitempty"`
	SkillThreshold *float64 `json:"skill_threshold,omitempty"`
	ToolThreshold  *float64 `json:"tool_threshold,omitempty"`
	SkillLimit     *int     `json:"skill_limit,omitempty"`
	Limit          *int     `json:"limit,omitempty"`
	IncludeSchemas *bool    `json:"include_schemas,omitempty"`
}

// SearchDefaults supplies the configured default values applied to omitted
// request fields during sanitization.
type SearchDefaults struct {
	SkillThreshold float64
	ToolThreshold  float64
	SkillLimit     int
	Limit          int
}

// SearchQuery is the sanitized form of a SearchRequest, safe to execute.
type SearchQuery struct {
	Query          string
	Strategy       string
	ItemType       string
	SkillThreshold float64
	ToolThreshold  float64
	SkillLimit     int
	Limit          int
	IncludeSchemas bool
}

// Sanitize validates the raw request and returns the normalized query with
// defaults applied. It performs no I/O, so violations fail before any
// network call is made.
func (r *SearchRequest) Sanitize(defaults SearchDefaults) (*SearchQuery, error) {
	if r == nil {
		return nil, invalidf("request is nil")
	}

	query := strings.TrimSpace(r.Query)
	if query == "" {
		return nil, invalidf("query cannot be empty")
	}
	if utf8.RuneCountInString(query) > MaxQueryChars {
		return nil, invalidf("query exceeds max length %d", MaxQueryChars)
	}

	strategy := strings.ToLower(strings.TrimSpace(r.Strategy))
	switch strategy {
	case "":
		strategy = StrategyHierarchical
	case StrategyHierarchical, StrategyDirect:
	default:
		return nil, invalidf("strategy must be %q or %q, got %q",
			StrategyHierarchical, StrategyDirect, r.Strategy)
	}

	itemType, err := SanitizeItemType(r.ItemType)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sanitized := &SearchQuery{
		Query:          query,
		Strategy:       strategy,
		ItemType:       itemType,
		SkillThreshold: defaults.SkillThreshold,
		ToolThreshold:  defaults.ToolThreshold,
		SkillLimit:     defaults.SkillLimit,
		Limit:          defaults.Limit,
		IncludeSchemas: true,
	}

	if r.SkillThreshold != nil {
		if *r.SkillThreshold < 0 || *r.SkillThreshold > 1 {
			return nil, invalidf("skill_threshold must be within [0, 1]")
		}
		sanitized.SkillThreshold = *r.SkillThreshold
	}
	if r.ToolThreshold != nil {
		if *r.ToolThreshold < 0 || *r.ToolThreshold > 1 {
			return nil, invalidf("tool_threshold must be within [0, 1]")
		}
		sanitized.ToolThreshold = *r.ToolThreshold
	}
	if r.SkillLimit != nil {
		if *r.SkillLimit <= 0 {
			return nil, invalidf("skill_limit must be positive")
		}
		sanitized.SkillLimit = *r.SkillLimit
	}
	if r.Limit != nil {
		if *r.Limit <= 0 || *r.Limit > MaxLimit {
			return nil, invalidf("limit must be within [1, %d]", MaxLimit)
		}
		sanitized.Limit = *r.Limit
	}
	if r.IncludeSchemas != nil {
		sanitized.IncludeSchemas = *r.IncludeSchemas
	}

	return sanitized, nil
}

// SanitizeItemType validates an optional item type filter. Empty input means
// no filter and normalizes to "".
func SanitizeItemType(raw string) (string, error) {
	itemType := strings.ToLower(strings.TrimSpace(raw))
	switch itemType {
	case "", model.ItemTypeTool, model.ItemTypePrompt, model.ItemTypeResource:
		return itemType, nil
	default:
		return "", invalidf("item_type must be one of tool/prompt/resource, got %q", raw)
	}
}

// SkillMatch is one matched skill in the response.
type SkillMatch struct {
	ID          string  `json:"id" copier:"SkillID"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	ToolCount   int     `json:"tool_count"`
}

// EnrichedTool is one matched item (tool, prompt or resource), optionally
// carrying its relational schemas. A nil schema field serializes as null.
type EnrichedTool struct {
	ID           string          `json:"id"`
	DBID         int64           `json:"db_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Type         string          `json:"type"`
	Score        float64         `json:"score"`
	SkillIDs     []string        `json:"skill_ids"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema"`
	Annotations  json.RawMessage `json:"annotations"`
}

// SearchMetadata fully describes what a single search call did. SkillIDsUsed
// is null when the direct strategy ran or when the skill-stage fallback
// fired; callers rely on that signal to monitor fallback rates.
type SearchMetadata struct {
	StrategyUsed         string   `json:"strategy_used"`
	SkillIDsUsed         []string `json:"skill_ids_used"`
	Stage1SkillCount     int      `json:"stage1_skill_count"`
	Stage2CandidateCount int      `json:"stage2_candidate_count"`
	FinalCount           int      `json:"final_count"`
	QueryEmbeddingTimeMs int64    `json:"query_embedding_time_ms"`
	SkillSearchTimeMs    int64    `json:"skill_search_time_ms"`
	ToolSearchTimeMs     int64    `json:"tool_search_time_ms"`
	SchemaLoadTimeMs     int64    `json:"schema_load_time_ms"`
	TotalTimeMs          int64    `json:"total_time_ms"`
}

// SearchResponse is the full result of one search call. It is constructed
// once and never mutated afterwards.
type SearchResponse struct {
	Query         string         `json:"query"`
	Tools         []EnrichedTool `json:"tools"`
	MatchedSkills []SkillMatch   `json:"matched_skills"`
	Metadata      SearchMetadata `json:"metadata"`
}
