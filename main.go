package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/anomaly"
	"github.com/reeedirect/billing/internal/config"
	"github.com/reeedirect/billing/internal/database"
	"github.com/reeedirect/billing/internal/logging"
	"github.com/reeedirect/billing/internal/portal"
	"github.com/reeedirect/billing/internal/repository"
	"github.com/reeedirect/billing/internal/router"
	"github.com/reeedirect/billing/internal/scheduler"
	"github.com/reeedirect/billing/internal/service"
	"github.com/reeedirect/billing/internal/session"
)

func main() {
	// load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// ensure basic directories exist
	if err := ensureDir(filepath.Dir(cfg.Database.Path)); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	if err := ensureDir(filepath.Dir(cfg.Log.File)); err != nil {
		log.Fatalf("create log dir: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	store := session.NewMemoryStore(cfg.Session.MaxUsers, cfg.Session.Expire, logger)
	portalClient := portal.NewClient(cfg.Portal, logger)
	readings := repository.NewReadingRepo(db)
	backups := repository.NewBackupRepo(db)
	guard := anomaly.NewGuard(cfg.Query.AnomalyWindow, cfg.Query.AnomalyMaxDrop)
	retry := anomaly.RetryPolicy{
		Delay:      cfg.Query.RetryDelay,
		AcceptDiff: cfg.Query.RetryAcceptDiff,
	}
	throttle := service.NewThrottle(cfg.Query.ThrottleInterval)

	svc := service.New(store, portalClient, readings, guard, retry, throttle, logger)

	sched := scheduler.New(svc, backups, store, cfg.Backup.RetentionDays, logger)
	sched.Start()
	defer sched.Stop()

	r := router.SetupRouter(router.Deps{
		Config:   cfg,
		Store:    store,
		Portal:   portalClient,
		Svc:      svc,
		Readings: readings,
		Backups:  backups,
		Guard:    guard,
		Logger:   logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	logger.Info("服务启动", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Fatal("服务退出", zap.Error(err))
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
