// Package service implements the hierarchical capability search pipeline:
// skill matching, skill-filtered item matching with unfiltered fallback, and
// schema enrichment.
package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/jinzhu/copier"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Laisky/capability-search/internal/web/search/dao"
	"github.com/Laisky/capability-search/internal/web/search/dto"
	"github.com/Laisky/capability-search/internal/web/search/model"
	"github.com/Laisky/capability-search/internal/web/search/monitor"
	"github.com/Laisky/capability-search/library/embeddings"
	"github.com/Laisky/capability-search/library/log"
)

// Clock abstracts time source for deterministic tests.
type Clock func() time.Time

// VectorIndex is the ranked-retrieval port over the skill and item
// collections.
type VectorIndex interface {
	SearchSkills(ctx context.Context, vec pgvector.Vector, limit int) ([]model.SkillHit, error)
	SearchItems(ctx context.Context, vec pgvector.Vector, filter dao.ItemFilter, limit int) ([]model.ItemHit, error)
}

// SchemaStore is the relational port that batch-loads item schemas.
type SchemaStore interface {
	LoadSchemas(ctx context.Context, ids []int64) ([]model.SchemaRow, error)
}

// Service orchestrates the three retrieval stages for one search request.
// It holds no per-request state; concurrent identical requests run fully
// independently.
type Service struct {
	embedder embeddings.Embedder
	index    VectorIndex
	store    SchemaStore
	recorder monitor.Recorder
	settings Settings
	logger   logSDK.Logger
	clock    Clock
}

// New wires the search service from its collaborators. The recorder may be
// nil when outcome monitoring is disabled.
func New(embedder embeddings.Embedder, index VectorIndex, store SchemaStore,
	recorder monitor.Recorder, settings Settings, logger logSDK.Logger) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedding client is required")
	}
	if index == nil {
		return nil, errors.New("vector index is required")
	}
	if store == nil {
		return nil, errors.New("schema store is required")
	}
	if logger == nil {
		logger = log.Logger.Named("search_service")
	}

	return &Service{
		embedder: embedder,
		index:    index,
		store:    store,
		recorder: recorder,
		settings: settings,
		logger:   logger,
		clock:    time.Now,
	}, nil
}

// Defaults exposes the configured request defaults for the HTTP layer.
func (s *Service) Defaults() dto.SearchDefaults {
	return s.settings.Defaults()
}

func (s *Service) loggerFromContext(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
			return ctxLogger
		}
	}
	if s.logger != nil {
		return s.logger
	}
	return log.Logger.Named("search_service")
}

// Search runs the full pipeline for one request. The query is embedded
// exactly once; the vector is shared by both retrieval stages.
func (s *Service) Search(ctx context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	q, err := req.Sanitize(s.settings.Defaults())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	logger := s.loggerFromContext(ctx)
	start := s.clock()
	meta := dto.SearchMetadata{StrategyUsed: q.Strategy}

	vec, embedDur, err := s.embedQuery(ctx, q.Query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	meta.QueryEmbeddingTimeMs = embedDur.Milliseconds()

	outcome := NoSkillsFound()
	if q.Strategy == dto.StrategyHierarchical {
		var skillDur time.Duration
		outcome, skillDur = s.matchSkills(ctx, vec, q)
		meta.SkillSearchTimeMs = skillDur.Milliseconds()
	}
	meta.Stage1SkillCount = len(outcome.Skills())

	filter := dao.ItemFilter{ItemType: q.ItemType}
	if outcome.Matched() {
		filter.SkillIDs = outcome.SkillIDs()
		meta.SkillIDsUsed = outcome.SkillIDs()
	} else if q.Strategy == dto.StrategyHierarchical {
		logger.Debug("no skills matched, widening to unfiltered item search",
			zap.String("query", q.Query))
	}

	hits, candidateCount, itemDur, err := s.matchItems(ctx, vec, filter, q)
	if err != nil {
		return nil, errors.Wrap(err, "search item collection")
	}
	meta.ToolSearchTimeMs = itemDur.Milliseconds()
	meta.Stage2CandidateCount = candidateCount

	var schemas map[int64]model.SchemaRow
	if q.IncludeSchemas {
		var schemaDur time.Duration
		schemas, schemaDur = s.loadSchemas(ctx, hits)
		meta.SchemaLoadTimeMs = schemaDur.Milliseconds()
	}

	meta.FinalCount = len(hits)
	meta.TotalTimeMs = s.clock().Sub(start).Milliseconds()

	resp := s.assemble(q, outcome, hits, schemas, meta)

	if s.recorder != nil {
		s.recorder.Record(ctx, monitor.Outcome{
			Strategy:      q.Strategy,
			FallbackFired: q.Strategy == dto.StrategyHierarchical && !outcome.Matched(),
			FinalCount:    meta.FinalCount,
			TotalTime:     time.Duration(meta.TotalTimeMs) * time.Millisecond,
		})
	}

	return resp, nil
}

// MatchSkills runs only the skill stage, for the bare skill listing
// endpoint.
func (s *Service) MatchSkills(ctx context.Context, query string, threshold float64, limit int) ([]dto.SkillMatch, error) {
	req := &dto.SearchRequest{
		Query:          query,
		Strategy:       dto.StrategyHierarchical,
		SkillThreshold: &threshold,
		SkillLimit:     &limit,
	}
	q, err := req.Sanitize(s.settings.Defaults())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	vec, _, err := s.embedQuery(ctx, q.Query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	outcome, _ := s.matchSkills(ctx, vec, q)
	return toSkillMatches(outcome.Skills()), nil
}

// MatchTools runs the item stage directly with an explicit skill filter, for
// the bare tool listing endpoint. Schema enrichment is skipped.
func (s *Service) MatchTools(ctx context.Context, query, itemType string, skillIDs []string) ([]dto.EnrichedTool, error) {
	req := &dto.SearchRequest{
		Query:    query,
		Strategy: dto.StrategyDirect,
		ItemType: itemType,
	}
	q, err := req.Sanitize(s.settings.Defaults())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	vec, _, err := s.embedQuery(ctx, q.Query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	filter := dao.ItemFilter{ItemType: q.ItemType, SkillIDs: skillIDs}
	hits, _, _, err := s.matchItems(ctx, vec, filter, q)
	if err != nil {
		return nil, errors.Wrap(err, "search item collection")
	}

	return s.assemble(q, NoSkillsFound(), hits, nil, dto.SearchMetadata{}).Tools, nil
}

// embedQuery fetches the query embedding with the configured timeout. The
// embedding provider is the only stage-agnostic dependency; its failure is
// fatal for the whole request.
func (s *Service) embedQuery(ctx context.Context, query string) (pgvector.Vector, time.Duration, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.settings.EmbedTimeout)
	defer cancel()

	begin := s.clock()
	vecs, err := s.embedder.EmbedTexts(embedCtx, []string{query})
	dur := s.clock().Sub(begin)
	if err != nil {
		return pgvector.Vector{}, dur, errors.WithStack(err)
	}
	if len(vecs) == 0 {
		return pgvector.Vector{}, dur, errors.New("embedding provider returned no query vector")
	}
	return vecs[0], dur, nil
}

// matchSkills is stage 1. Index failures and timeouts are deliberately
// collapsed into NoSkillsFound: the skill stage is a precision layer, not a
// correctness requirement, so the pipeline widens instead of failing.
func (s *Service) matchSkills(ctx context.Context, vec pgvector.Vector, q *dto.SearchQuery) (SkillSearchOutcome, time.Duration) {
	searchCtx, cancel := context.WithTimeout(ctx, s.settings.SkillSearchTimeout)
	defer cancel()

	begin := s.clock()
	hits, err := s.index.SearchSkills(searchCtx, vec, q.SkillLimit)
	dur := s.clock().Sub(begin)
	if err != nil {
		s.loggerFromContext(ctx).Warn("skill search failed, falling back to unfiltered item search",
			zap.Error(err))
		return NoSkillsFound(), dur
	}

	// index order is preserved; ties stay in whatever order the index
	// returned them
	matched := make([]model.SkillHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= q.SkillThreshold {
			matched = append(matched, hit)
		}
	}
	if len(matched) == 0 {
		return NoSkillsFound(), dur
	}
	return SkillsMatched(matched), dur
}

// matchItems is stage 2. It over-fetches beyond the response limit so the
// candidate count reflects everything that cleared the threshold, then caps
// the result. Failures here are fatal for the request.
func (s *Service) matchItems(ctx context.Context, vec pgvector.Vector, filter dao.ItemFilter, q *dto.SearchQuery) ([]model.ItemHit, int, time.Duration, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.settings.ItemSearchTimeout)
	defer cancel()

	poolSize := q.Limit * 4
	if poolSize < 16 {
		poolSize = 16
	}

	begin := s.clock()
	hits, err := s.index.SearchItems(searchCtx, vec, filter, poolSize)
	dur := s.clock().Sub(begin)
	if err != nil {
		return nil, 0, dur, errors.WithStack(err)
	}

	candidates := make([]model.ItemHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= q.ToolThreshold {
			candidates = append(candidates, hit)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	candidateCount := len(candidates)
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, candidateCount, dur, nil
}

// loadSchemas is stage 3. A failing schema store degrades to null schemas
// for every item; a missing row degrades to null schemas for that item.
// Neither is an error.
func (s *Service) loadSchemas(ctx context.Context, hits []model.ItemHit) (map[int64]model.SchemaRow, time.Duration) {
	if len(hits) == 0 {
		return nil, 0
	}

	seen := make(map[int64]struct{}, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.ID]; ok {
			continue
		}
		seen[hit.ID] = struct{}{}
		ids = append(ids, hit.ID)
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.settings.SchemaLoadTimeout)
	defer cancel()

	begin := s.clock()
	rows, err := s.store.LoadSchemas(loadCtx, ids)
	dur := s.clock().Sub(begin)
	if err != nil {
		s.loggerFromContext(ctx).Warn("schema load failed, returning null schemas",
			zap.Error(err), zap.Int("items", len(ids)))
		return nil, dur
	}

	schemas := make(map[int64]model.SchemaRow, len(rows))
	for _, row := range rows {
		schemas[row.ItemID] = row
	}
	return schemas, dur
}

// assemble builds the immutable response from the stage results.
func (s *Service) assemble(q *dto.SearchQuery, outcome SkillSearchOutcome,
	hits []model.ItemHit, schemas map[int64]model.SchemaRow, meta dto.SearchMetadata) *dto.SearchResponse {
	tools := make([]dto.EnrichedTool, 0, len(hits))
	for _, hit := range hits {
		tool := dto.EnrichedTool{
			ID:          hit.ItemID,
			DBID:        hit.ID,
			Name:        hit.Name,
			Description: hit.Description,
			Type:        hit.Type,
			Score:       hit.Score,
			SkillIDs:    hit.SkillIDs,
		}
		if tool.SkillIDs == nil {
			tool.SkillIDs = []string{}
		}
		if schema, ok := schemas[hit.ID]; ok {
			tool.InputSchema = json.RawMessage(schema.InputSchema)
			tool.OutputSchema = json.RawMessage(schema.OutputSchema)
			tool.Annotations = json.RawMessage(schema.Annotations)
		}
		tools = append(tools, tool)
	}

	return &dto.SearchResponse{
		Query:         q.Query,
		Tools:         tools,
		MatchedSkills: toSkillMatches(outcome.Skills()),
		Metadata:      meta,
	}
}

// toSkillMatches maps skill hits onto the response contract.
func toSkillMatches(hits []model.SkillHit) []dto.SkillMatch {
	matches := make([]dto.SkillMatch, 0, len(hits))
	for _, hit := range hits {
		var match dto.SkillMatch
		if err := copier.Copy(&match, &hit); err != nil {
			// field sets are fixed at compile time, this cannot fail
			continue
		}
		matches = append(matches, match)
	}
	return matches
}
