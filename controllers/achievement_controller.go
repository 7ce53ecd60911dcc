package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
	"github.com/cppla/marketcore/utils"
)

// CatalogCachePrefix prefixes every cached catalog listing.
const CatalogCachePrefix = "achievements:catalog:"

// AchievementController serves the catalog and per-user achievement endpoints.
type AchievementController struct {
	engine   *services.Engine
	cacheTTL time.Duration
}

// NewAchievementController creates a new controller instance.
func NewAchievementController(engine *services.Engine, cacheTTL time.Duration) *AchievementController {
	return &AchievementController{engine: engine, cacheTTL: cacheTTL}
}

// ListAchievements returns active definitions, optionally filtered by group and category.
func (c *AchievementController) ListAchievements(ctx *gin.Context) {
	q := services.AchievementQuery{
		Group:      ctx.Query("group"),
		Category:   ctx.Query("category"),
		ActiveOnly: true,
	}
	key := CatalogCachePrefix + q.Group + ":" + q.Category

	var list []models.Achievement
	if utils.CacheGetJSON(key, &list) {
		utils.Success(ctx, gin.H{"items": list, "total": len(list)})
		return
	}

	list, err := c.engine.Catalog(ctx.Request.Context(), q)
	if err != nil {
		respondServiceError(ctx, err, 50020, "failed to load achievements")
		return
	}
	utils.CacheSetJSON(key, list, c.cacheTTL)
	utils.Success(ctx, gin.H{"items": list, "total": len(list)})
}

// GetAchievement returns one definition.
func (c *AchievementController) GetAchievement(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid achievement id")
		return
	}
	a, err := c.engine.Achievement(ctx.Request.Context(), id)
	if err != nil {
		respondServiceError(ctx, err, 50021, "failed to load achievement")
		return
	}
	utils.Success(ctx, a)
}

// Leaderboard lists the users with the most unlocks.
func (c *AchievementController) Leaderboard(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	entries, err := c.engine.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		respondServiceError(ctx, err, 50022, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, gin.H{"items": entries})
}

// MyUnlocks lists the caller's unlocked achievements, newest first.
func (c *AchievementController) MyUnlocks(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	unlocks, err := c.engine.Unlocks(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50023, "failed to load unlocks")
		return
	}
	start, end := paginate(len(unlocks), page, pageSize)
	utils.Paged(ctx, unlocks[start:end], len(unlocks), page, pageSize)
}

// MyProgressAll returns live progress on every active achievement.
func (c *AchievementController) MyProgressAll(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	items, err := c.engine.ProgressAll(ctx.Request.Context(), userID, services.AchievementQuery{
		Group:    ctx.Query("group"),
		Category: ctx.Query("category"),
	})
	if err != nil {
		respondServiceError(ctx, err, 50024, "failed to compute progress")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// MyProgress returns live progress on one achievement.
func (c *AchievementController) MyProgress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid achievement id")
		return
	}
	p, err := c.engine.Progress(ctx.Request.Context(), userID, id)
	if err != nil {
		respondServiceError(ctx, err, 50025, "failed to compute progress")
		return
	}
	utils.Success(ctx, p)
}

// Claim pays an unlocked reward when manual claim mode is on.
func (c *AchievementController) Claim(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid achievement id")
		return
	}
	credit, err := c.engine.Claim(ctx.Request.Context(), userID, id)
	if err != nil {
		respondServiceError(ctx, err, 50026, "failed to claim reward")
		return
	}
	utils.Success(ctx, gin.H{"claimed": true, "transaction": credit})
}
