package main

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/internal/handlers"
	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS(cfg.Realtime.AllowedOrigins))

	r.GET("/health", handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.hub).CheckHealth)

	realtimeHandler := handlers.NewRealtimeHandler(svc.hub, svc.gateway, svc.users, cfg.Realtime.AllowedOrigins)
	r.GET("/ws", middleware.AuthRequired(), realtimeHandler.Serve)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(), svc.apiLimiter.Middleware(), middleware.AuditLog())
	{
		api.GET("/realtime/stats", realtimeHandler.Stats)

		// Projects
		projectHandler := handlers.NewProjectHandler(svc.projects, svc.membership)
		api.GET("/projects", projectHandler.List)
		api.POST("/projects", projectHandler.Create)
		api.GET("/projects/:id", projectHandler.GetByID)

		// Members
		memberHandler := handlers.NewProjectMemberHandler(svc.membership)
		api.GET("/projects/:id/members", memberHandler.List)
		api.POST("/projects/:id/members", memberHandler.Add)
		api.PUT("/projects/:id/members/:userID", memberHandler.Update)
		api.DELETE("/projects/:id/members/:userID", memberHandler.Remove)

		// Chat history
		messageHandler := handlers.NewMessageHandler(svc.membership, svc.messages, svc.reactions)
		api.GET("/projects/:id/messages", messageHandler.List)
		api.GET("/projects/:id/messages/:messageID/reactions", messageHandler.Reactions)

		// Notifications
		notificationHandler := handlers.NewNotificationHandler(svc.notifications)
		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}
}
