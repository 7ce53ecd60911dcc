package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/cppla/marketcore/events"
	"github.com/cppla/marketcore/models"
	"github.com/cppla/marketcore/services"
	"github.com/cppla/marketcore/utils"
)

// AdminController manages achievement definitions and event ingestion.
type AdminController struct {
	engine    *services.Engine
	scanner   *services.Scanner
	publisher events.Publisher
}

// NewAdminController creates a new controller instance.
func NewAdminController(engine *services.Engine, scanner *services.Scanner, publisher events.Publisher) *AdminController {
	return &AdminController{engine: engine, scanner: scanner, publisher: publisher}
}

type achievementRequest struct {
	Slug         string             `json:"slug" binding:"required,max=96"`
	Name         string             `json:"name" binding:"required,max=128"`
	Description  string             `json:"description"`
	Icon         string             `json:"icon" binding:"max=255"`
	Category     string             `json:"category" binding:"required,max=32"`
	Group        string             `json:"achievement_group" binding:"required,max=64"`
	Tier         models.Tier        `json:"tier" binding:"required"`
	Requirements models.Requirement `json:"requirements" binding:"required"`
	WalletReward decimal.Decimal    `json:"wallet_reward"`
	IsActive     *bool              `json:"is_active"`
}

func (r achievementRequest) apply(a *models.Achievement) {
	a.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	a.Name = utils.SanitizeText(r.Name)
	a.Description = utils.Sanitize(r.Description)
	a.Icon = strings.TrimSpace(r.Icon)
	a.Category = strings.TrimSpace(r.Category)
	a.Group = strings.TrimSpace(r.Group)
	a.Tier = r.Tier
	a.Requirements = datatypes.NewJSONType(r.Requirements)
	a.WalletReward = r.WalletReward.Round(2)
	if r.IsActive != nil {
		a.IsActive = *r.IsActive
	}
}

// CreateAchievement stores a new definition.
func (c *AdminController) CreateAchievement(ctx *gin.Context) {
	var req achievementRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid payload")
		return
	}
	if req.WalletReward.IsNegative() {
		utils.Error(ctx, http.StatusBadRequest, 40031, "wallet_reward must not be negative")
		return
	}

	a := models.Achievement{IsActive: true}
	req.apply(&a)
	c.save(ctx, &a, true)
}

// UpdateAchievement overwrites an existing definition.
func (c *AdminController) UpdateAchievement(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid achievement id")
		return
	}
	var req achievementRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid payload")
		return
	}
	if req.WalletReward.IsNegative() {
		utils.Error(ctx, http.StatusBadRequest, 40031, "wallet_reward must not be negative")
		return
	}

	a, err := c.engine.Achievement(ctx.Request.Context(), id)
	if err != nil {
		respondServiceError(ctx, err, 50030, "failed to load achievement")
		return
	}
	req.apply(a)
	c.save(ctx, a, false)
}

func (c *AdminController) save(ctx *gin.Context, a *models.Achievement, created bool) {
	warnings, err := c.engine.SaveAchievement(ctx.Request.Context(), a)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to save achievement")
		return
	}
	utils.InvalidateByPrefix(CatalogCachePrefix)
	body := gin.H{"achievement": a, "warnings": warnings}
	if created {
		utils.Created(ctx, body)
		return
	}
	utils.Success(ctx, body)
}

type eventRequest struct {
	Kind           events.Kind       `json:"kind" binding:"required"`
	UserID         uint              `json:"user_id" binding:"required"`
	CounterpartyID uint              `json:"counterparty_id"`
	OccurredAt     *time.Time        `json:"occurred_at"`
	Payload        map[string]string `json:"payload"`
}

// IngestEvent accepts a domain event from another subsystem and publishes it.
func (c *AdminController) IngestEvent(ctx *gin.Context) {
	var req eventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid payload")
		return
	}
	if !req.Kind.Known() {
		utils.Error(ctx, http.StatusBadRequest, 40032, "unknown event kind")
		return
	}

	ev := events.New(req.Kind, req.UserID, req.CounterpartyID)
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}
	ev.Payload = req.Payload
	if err := c.publisher.Publish(ctx.Request.Context(), ev); err != nil {
		utils.Sugar.Errorf("publish event %s failed: %v", ev.ID, err)
		utils.Error(ctx, http.StatusServiceUnavailable, 50330, "event bus unavailable")
		return
	}
	utils.Accepted(ctx, gin.H{"event_id": ev.ID})
}

// RescanUser evaluates every active achievement for one user synchronously.
func (c *AdminController) RescanUser(ctx *gin.Context) {
	userID, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid user id")
		return
	}
	res, err := c.scanner.ScanUser(ctx.Request.Context(), userID, services.AllMetricKinds())
	if err != nil {
		respondServiceError(ctx, err, 50032, "rescan failed")
		return
	}
	utils.Success(ctx, res)
}
