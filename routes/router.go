package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"

	"github.com/cppla/marketcore/config"
	"github.com/cppla/marketcore/controllers"
	"github.com/cppla/marketcore/events"
	"github.com/cppla/marketcore/middleware"
	"github.com/cppla/marketcore/services"
	"github.com/cppla/marketcore/utils"
)

// Deps are the long-lived services the HTTP layer needs.
type Deps struct {
	Engine    *services.Engine
	Scanner   *services.Scanner
	Publisher events.Publisher
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access logs go to their own rolling file, not stdout
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, true))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.Metrics())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(utils.MetricsHandler()))

	achievementController := controllers.NewAchievementController(deps.Engine, time.Duration(cfg.CatalogCacheTTLSeconds)*time.Second)
	adminController := controllers.NewAdminController(deps.Engine, deps.Scanner, deps.Publisher)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware())
	api.GET("/achievements", achievementController.ListAchievements)
	api.GET("/achievements/:id", achievementController.GetAchievement)
	api.GET("/leaderboard/achievements", achievementController.Leaderboard)

	me := api.Group("/me")
	me.Use(middleware.AuthRequired())
	me.GET("/achievements", achievementController.MyUnlocks)
	me.GET("/achievements/progress", achievementController.MyProgressAll)
	me.GET("/achievements/:id/progress", achievementController.MyProgress)
	me.POST("/achievements/:id/claim", achievementController.Claim)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	admin.POST("/achievements", adminController.CreateAchievement)
	admin.PUT("/achievements/:id", adminController.UpdateAchievement)
	admin.POST("/events", adminController.IngestEvent)
	admin.POST("/users/:id/rescan", adminController.RescanUser)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
