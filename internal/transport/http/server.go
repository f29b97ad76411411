package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ragdesk/internal/bootstrap"
	"ragdesk/internal/transport/http/handler"
	"ragdesk/internal/transport/http/middleware"
)

// multipartOverhead covers form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.Recovery(app.Log), middleware.Logger(app.Log, "/healthz", "/metrics"))

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app)...)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	svc := app.Services
	authHandler := handler.NewAuthHandler(svc.Auth)
	documentHandler := handler.NewDocumentHandler(svc.Document, app.Config.Upload.MaxBytes)
	searchHandler := handler.NewSearchHandler(svc.Search, svc.Chat, app.Config.Retrieval.UseReranking)
	chatHandler := handler.NewChatHandler(svc.Chat)
	adminHandler := handler.NewAdminHandler(svc.Admin, svc.Document)

	secret := app.Config.Auth.JWTSecret
	v1 := router.Group("/api/v1")
	v1.POST("/admin/login", authHandler.AdminLogin)

	user := v1.Group("")
	user.Use(middleware.AuthJWT(secret), middleware.ResolveUser(svc.Auth))
	user.GET("/auth/me", authHandler.Me)

	documents := user.Group("/documents")
	documents.POST("", middleware.BodyLimit(app.Config.Upload.MaxBytes+multipartOverhead), documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/:id", documentHandler.Get)
	documents.DELETE("/:id", documentHandler.Delete)
	documents.POST("/:id/reprocess", documentHandler.Reprocess)

	user.POST("/search", searchHandler.Search)
	user.POST("/search/expand", searchHandler.Expand)

	chat := user.Group("/chat")
	chat.POST("/messages", chatHandler.SendMessage)
	chat.GET("/history", chatHandler.GetHistory)
	chat.DELETE("/history", chatHandler.ClearHistory)

	admin := v1.Group("/admin")
	admin.Use(middleware.AuthJWT(secret), middleware.RequireAdmin())
	admin.GET("/documents", adminHandler.ListDocuments)
	admin.GET("/stats", adminHandler.Stats)
	admin.POST("/reindex", adminHandler.Reindex)

	return router
}

func healthChecks(app *bootstrap.App) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{{
		Name: app.Config.Database.Driver,
		Check: func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if app.Redis != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			},
		})
	}
	if app.MQConn != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				if app.MQConn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		})
	}
	return checks
}
