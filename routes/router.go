package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/anyrate/config"
	"github.com/cppla/anyrate/controllers"
	"github.com/cppla/anyrate/middleware"
	"github.com/cppla/anyrate/services"
	"github.com/cppla/anyrate/utils"
)

// SetupRouter wires middleware, controllers and routes.
func SetupRouter(db *gorm.DB, intake *services.IntakeService, rating *services.RatingService, live *services.LiveHub) *gin.Engine {
	cfg := config.Get()

	gin.SetMode(cfg.GinMode)
	r := gin.New()

	accessLogger, err := utils.NewRollingFileLogger(
		cfg.GinPath, cfg.LogLevel,
		cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress,
	)
	if err != nil {
		accessLogger = utils.Logger
	}
	r.Use(utils.Ginzap(accessLogger, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLogger, true))

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.Use(middleware.RateLimit(cfg.RateLimitPerMinute))

	sessions := controllers.NewSessionController(db)
	items := controllers.NewItemController(db, intake, rating, live)
	posts := controllers.NewPostController(db, intake, live)
	admin := controllers.NewAdminController(db, live)

	api := r.Group("/api")
	{
		session := api.Group("/session")
		{
			session.POST("/anonymous", sessions.Anonymous)
			session.GET("/google", sessions.GoogleRedirect)
			session.GET("/google/callback", sessions.GoogleCallback)
			session.GET("/me", middleware.SessionRequired(), sessions.Me)
			session.POST("/logout", middleware.SessionRequired(), sessions.Logout)
		}

		item := api.Group("/items")
		{
			item.GET("", items.List)
			item.GET("/:id", items.Get)
			item.POST("", middleware.SessionRequired(), items.Create)
			item.POST("/:id/rate", middleware.SessionRequired(), items.Rate)
			item.POST("/:id/report", middleware.SessionRequired(), items.Report)
		}

		post := api.Group("/posts")
		{
			post.GET("", posts.List)
			post.POST("", middleware.SessionRequired(), posts.Create)
			post.GET("/:id/comments", posts.Comments)
			post.POST("/:id/comments", middleware.SessionRequired(), posts.CreateComment)
			post.POST("/:id/vote", middleware.SessionRequired(), posts.VotePost)
			post.POST("/:id/report", middleware.SessionRequired(), posts.Report)
		}
		api.POST("/comments/:commentId/vote", middleware.SessionRequired(), posts.VoteComment)

		adm := api.Group("/admin")
		{
			adm.POST("/login", admin.Login)
			adm.POST("/logout", middleware.AdminRequired(), admin.Logout)
			adm.GET("/reported", middleware.AdminRequired(), admin.ReportedQueue)
			adm.POST("/items/:id/clear-reports", middleware.AdminRequired(), admin.ClearItemReports)
			adm.POST("/posts/:id/clear-reports", middleware.AdminRequired(), admin.ClearPostReports)
			adm.DELETE("/items/:id", middleware.AdminRequired(), admin.DeleteItem)
			adm.DELETE("/posts/:id", middleware.AdminRequired(), admin.DeletePost)
		}

		api.GET("/live", func(c *gin.Context) {
			live.Serve(c.Writer, c.Request)
		})
	}

	return r
}
