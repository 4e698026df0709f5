package api

import (
	"net/http"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/api/handlers"
	"github.com/Marga-Ghale/powerline-backend/internal/api/middleware"
	"github.com/Marga-Ghale/powerline-backend/internal/logging"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries everything the HTTP surface needs. WebSocket,
// Metrics and Health are optional.
type RouterConfig struct {
	Services    *service.Services
	CORSOrigins []string
	WebSocket   gin.HandlerFunc
	Metrics     http.Handler
	MetricsPath string
	Health      func() gin.H
}

func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}
	h := handlers.NewHandlers(cfg.Services)

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", logging.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "healthy", "timestamp": time.Now().UTC()}
		if cfg.Health != nil {
			for k, v := range cfg.Health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		r.GET(cfg.MetricsPath, gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api")
	{
		// ============================================
		// Public routes (no auth required)
		// ============================================
		if cfg.WebSocket != nil {
			api.GET("/ws", cfg.WebSocket)
		}

		public := api.Group("/powerline")
		{
			public.GET("/queue-status", h.PowerLine.QueueStatus)
			public.GET("/tree", h.PowerLine.Tree)
			public.GET("/tree/:position", h.PowerLine.Tree)
			public.GET("/growth-feed", h.PowerLine.GrowthFeed)
			public.GET("/positions/:position/stats", h.PowerLine.PositionStats)
			public.GET("/positions/:position/nearby", h.PowerLine.Nearby)
		}

		// ============================================
		// Protected routes (auth required)
		// ============================================
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(cfg.Services.Auth))
		{
			protected.GET("/users/me", h.User.GetCurrentUser)

			powerline := protected.Group("/powerline")
			{
				powerline.GET("/my-position", h.PowerLine.MyPosition)
				powerline.POST("/enroll", h.PowerLine.Enroll)
				powerline.GET("/sponsored", h.PowerLine.Sponsored)
			}

			activities := protected.Group("/activities")
			{
				activities.GET("/me", h.Activity.GetMyActivities)
			}

			// ============================================
			// Admin routes
			// ============================================
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin(cfg.Services.User))
			{
				admin.GET("/powerline/admin/stats", h.PowerLine.AdminStats)
				admin.GET("/powerline/admin/positions", h.PowerLine.ListPositions)
				admin.GET("/powerline/admin/next-position", h.PowerLine.NextPosition)
				admin.PATCH("/powerline/admin/positions/:position/status", h.PowerLine.UpdateStatus)
				admin.GET("/powerline/admin/positions/:position/activities", h.Activity.GetPositionActivities)
				admin.GET("/activities/feed", h.Activity.GetFeed)
			}
		}
	}

	return r, nil
}
