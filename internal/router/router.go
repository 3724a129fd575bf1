package router

import (
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	"github.com/reeedirect/billing/internal/anomaly"
	"github.com/reeedirect/billing/internal/config"
	"github.com/reeedirect/billing/internal/handler"
	"github.com/reeedirect/billing/internal/middleware"
	"github.com/reeedirect/billing/internal/portal"
	"github.com/reeedirect/billing/internal/repository"
	"github.com/reeedirect/billing/internal/service"
	"github.com/reeedirect/billing/internal/session"
)

// Deps 路由依赖集合
type Deps struct {
	Config   *config.Config
	Store    session.Store
	Portal   *portal.Client
	Svc      *service.Service
	Readings *repository.ReadingRepo
	Backups  *repository.BackupRepo
	Guard    *anomaly.Guard
	Logger   *zap.Logger
}

// SetupRouter configures the Gin engine, middleware and all routes.
func SetupRouter(d Deps) *gin.Engine {
	if d.Config.Server.Mode != "" {
		gin.SetMode(d.Config.Server.Mode)
	}
	r := gin.New()
	r.Use(middleware.RequestLog(d.Logger), gin.Recovery())

	// 前端面板
	r.Static("/static", "./web/static")
	r.StaticFile("/", "./web/index.html")

	api := r.Group("/api")

	authHandler := handler.NewAuthHandler(d.Store, d.Portal, d.Svc, d.Logger)
	api.POST("/password-login", authHandler.PasswordLogin)
	api.GET("/qrcode-login", authHandler.QRCodeLogin)
	api.POST("/check-qrcode-login", authHandler.CheckQRCodeLogin)
	api.GET("/login-status", authHandler.LoginStatus)
	api.POST("/logout", authHandler.Logout)
	api.GET("/session-status", authHandler.SessionStatus)
	api.POST("/clear-session", authHandler.ClearSession)

	queryHandler := handler.NewQueryHandler(d.Store, d.Portal, d.Svc, d.Logger)
	api.GET("/query", queryHandler.Query)
	api.GET("/test-query", queryHandler.TestQuery)

	diagHandler := handler.NewDiagHandler(d.Logger)
	api.GET("/test-cron", diagHandler.TestCron)

	recordsHandler := handler.NewRecordsHandler(d.Readings, d.Guard, d.Logger)
	api.GET("/history", recordsHandler.History)
	api.GET("/today", recordsHandler.Today)
	api.GET("/history/date/:date", recordsHandler.HistoryByDate)
	api.GET("/records", recordsHandler.Records)
	api.GET("/last-auto-query", recordsHandler.LastAutoQuery)
	api.DELETE("/records", recordsHandler.DeleteRange)
	api.DELETE("/records/all", recordsHandler.DeleteAll)
	api.DELETE("/records/selected", recordsHandler.DeleteSelected)
	api.DELETE("/records/before/:date", recordsHandler.DeleteBefore)

	statsHandler := handler.NewStatsHandler(d.Readings, d.Logger)
	api.GET("/stats", statsHandler.Stats)
	api.GET("/stats/today", statsHandler.StatsToday)
	api.GET("/stats/consumption", statsHandler.Consumption)
	api.GET("/stats/daily-consumption", statsHandler.DailyConsumption)

	backupHandler := handler.NewBackupHandler(d.Backups, d.Config.Backup.RetentionDays, d.Logger)
	api.GET("/backups", backupHandler.List)
	api.POST("/create-backup", backupHandler.Create)
	api.POST("/restore", backupHandler.Restore)
	api.DELETE("/backups", backupHandler.Delete)
	api.POST("/cleanup-backups", backupHandler.Cleanup)

	exportHandler := handler.NewExportHandler(d.Readings, d.Logger)
	api.GET("/export/csv", exportHandler.ExportCSV)
	api.GET("/export/xlsx", exportHandler.ExportXLSX)

	return r
}
