// Package controller exposes the search service over HTTP.
package controller

import (
	"net/http"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/capability-search/internal/web/search/dto"
	"github.com/Laisky/capability-search/internal/web/search/monitor"
	"github.com/Laisky/capability-search/internal/web/search/service"
	"github.com/Laisky/capability-search/library/log"
	"github.com/Laisky/capability-search/library/throttle"
)

// Controller handles the /api/v1/search endpoints. It is constructed once
// at startup and injected into the router; no package-level state.
type Controller struct {
	svc      *service.Service
	recorder monitor.Recorder
	throttle *throttle.SearchThrottle
}

// New builds the search controller. throttle may be nil to disable rate
// limiting.
func New(svc *service.Service, recorder monitor.Recorder, searchThrottle *throttle.SearchThrottle) (*Controller, error) {
	if svc == nil {
		return nil, errors.New("search service is required")
	}
	return &Controller{svc: svc, recorder: recorder, throttle: searchThrottle}, nil
}

// RegisterRoutes mounts the search endpoints under the given router group.
func (c *Controller) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/search", c.Search)
	group.GET("/search/skills", c.ListSkills)
	group.GET("/search/tools", c.ListTools)
	group.GET("/search/stats", c.Stats)
}

// Search handles POST /api/v1/search.
func (c *Controller) Search(ctx *gin.Context) {
	if c.throttle != nil && !c.throttle.Allow(ctx.ClientIP()) {
		ctx.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	req := new(dto.SearchRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "malformed request body"})
		return
	}

	resp, err := c.svc.Search(ctx, req)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// ListSkills handles GET /api/v1/search/skills.
func (c *Controller) ListSkills(ctx *gin.Context) {
	defaults := c.svc.Defaults()

	threshold := defaults.SkillThreshold
	if raw := strings.TrimSpace(ctx.Query("threshold")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "threshold must be a number"})
			return
		}
		threshold = parsed
	}

	limit := defaults.SkillLimit
	if raw := strings.TrimSpace(ctx.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	skills, err := c.svc.MatchSkills(ctx, ctx.Query("query"), threshold, limit)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, skills)
}

// ListTools handles GET /api/v1/search/tools.
func (c *Controller) ListTools(ctx *gin.Context) {
	var skillIDs []string
	if raw := strings.TrimSpace(ctx.Query("skill_ids")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				skillIDs = append(skillIDs, id)
			}
		}
	}

	tools, err := c.svc.MatchTools(ctx, ctx.Query("query"), ctx.Query("item_type"), skillIDs)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, tools)
}

// Stats handles GET /api/v1/search/stats, exposing the fallback-rate
// counters for monitoring.
func (c *Controller) Stats(ctx *gin.Context) {
	if c.recorder == nil {
		ctx.JSON(http.StatusOK, monitor.Stats{})
		return
	}

	stats, err := c.recorder.Stats(ctx)
	if err != nil {
		c.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, stats)
}

// abortWithError maps validation failures to 422 and everything else to a
// generic 500 without leaking internals.
func (c *Controller) abortWithError(ctx *gin.Context, err error) {
	if errors.Is(err, dto.ErrInvalidRequest) {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	logger := gmw.GetLogger(ctx)
	if logger == nil {
		logger = log.Logger.Named("search_controller")
	}
	logger.Error("search request failed", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
