package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/internal/middleware"
	"github.com/huangang/teamspace/internal/models"
	"github.com/huangang/teamspace/internal/realtime"
	"github.com/huangang/teamspace/internal/services"
	"github.com/huangang/teamspace/internal/utils"
	"github.com/huangang/teamspace/pkg/logger"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	db        *gorm.DB
	hub       *realtime.Hub
	hubDone   chan struct{}
	backplane *realtime.RedisBackplane
	gateway   *realtime.Gateway

	taskQueue services.TaskQueue
	worker    *services.Worker
	retention *services.RetentionScheduler

	users         *services.UserService
	projects      *services.ProjectService
	membership    *services.MembershipService
	messages      *services.MessageStore
	reactions     *services.ReactionLedger
	notifications *services.NotificationService

	apiLimiter  *middleware.RateLimiter
	chatLimiter *middleware.RateLimiter
}

// bootstrap initializes all application dependencies: database, queue,
// realtime hub, services and schedulers. The hub runs until ctx ends.
func bootstrap(ctx context.Context, cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	db, err := models.Open(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	// Schema is applied before anything can accept a connection.
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	app := &appServices{
		db:          db,
		hub:         realtime.NewHub(cfg.Realtime.SendBuffer),
		hubDone:     make(chan struct{}),
		apiLimiter:  middleware.NewRateLimiter(20, 40),
		chatLimiter: middleware.NewRateLimiter(5, 10),
	}

	if cfg.BackplaneEnabled() {
		app.backplane = initBackplane(ctx, cfg)
		if app.backplane != nil {
			app.hub.UseBackplane(app.backplane)
		}
	}
	go func() {
		defer close(app.hubDone)
		_ = app.hub.RunWithContext(ctx)
	}()

	// Email goes through the task queue so a slow SMTP server never delays chat.
	emailService := services.NewEmailService(&cfg.Email)
	logEmailFailure := func(task *services.EmailTask, err error) {
		logger.Warn().Err(err).
			Str("to", task.To).
			Str("template", task.Template).
			Msg("email delivery failed")
	}

	app.taskQueue = services.InitTaskQueue(cfg)
	if syncQueue, ok := app.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(emailService.ProcessEmailTask)
		syncQueue.OnFailure(logEmailFailure)
	} else if worker := services.NewWorker(&cfg.Redis); worker != nil {
		worker.SetProcessor(emailService.ProcessEmailTask)
		worker.OnFailure(logEmailFailure)
		if err := worker.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start email worker")
		} else {
			app.worker = worker
		}
	}

	app.users = services.NewUserService(db)
	app.projects = services.NewProjectService(db)
	app.membership = services.NewMembershipService(db)
	app.messages = services.NewMessageStore(db)
	app.reactions = services.NewReactionLedger(db)
	app.notifications = services.NewNotificationService(db, app.hub, app.taskQueue, cfg.Realtime.PreviewLength)
	app.notifications.SetAppURL(cfg.Email.AppURL)

	app.gateway = realtime.NewGateway(app.hub, realtime.GatewayDeps{
		Membership:    app.membership,
		Messages:      app.messages,
		Reactions:     app.reactions,
		Users:         app.users,
		Projects:      app.projects,
		Notifications: app.notifications,
		SendLimiter:   app.chatLimiter,
	})

	app.retention = services.NewRetentionScheduler(app.notifications, cfg.Notification.RetentionDays, cfg.Notification.CleanupCron)
	app.retention.UseLocks(services.NewSchedulerLocks(db))
	if err := app.retention.Start(); err != nil {
		logger.Error().Err(err).Str("cron", cfg.Notification.CleanupCron).Msg("Failed to schedule notification cleanup")
	}

	return app
}

// initBackplane connects to Redis for cross-instance broadcasts. On failure
// the hub stays in-process.
func initBackplane(ctx context.Context, cfg *config.Config) *realtime.RedisBackplane {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, realtime backplane disabled")
		client.Close()
		return nil
	}

	logger.Info().Str("channel", cfg.Realtime.BackplaneChannel).Msg("realtime backplane enabled")
	return realtime.NewRedisBackplane(client, cfg.Realtime.BackplaneChannel)
}

// shutdown gracefully stops all services. The hub is stopped by the
// cancellation of the bootstrap context.
func (s *appServices) shutdown() {
	select {
	case <-s.hubDone:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("realtime hub did not stop in time")
	}

	s.retention.Stop()
	s.apiLimiter.Close()
	s.chatLimiter.Close()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.backplane != nil {
		s.backplane.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info().Msg("All services stopped")
}
