package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/api/sweeper"
	"github.com/fatxioken06/Culinary-Canvas/internal/config"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// main 是草稿发布工具的入口函数。
//
// 它一次性扫描超龄草稿并转为已发布，供手工运维或外部
// 定时任务使用。服务内置的扫描循环做同样的事，这个工具
// 用于按需补扫或演练（--dry-run）。
func main() {
	days := flag.Int("days", 0, "publish drafts older than this many days (0 = use config)")
	dryRun := flag.Bool("dry-run", false, "list matching drafts without publishing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx := context.Background()

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		appLogger.Error("connect database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	maxAge := cfg.App.DraftMaxAge
	if *days > 0 {
		maxAge = time.Duration(*days) * 24 * time.Hour
	}

	sw := sweeper.New(db, appLogger, cfg.App.SweepInterval, maxAge)

	if *dryRun {
		drafts, err := sw.ListOldDrafts(ctx)
		if err != nil {
			appLogger.Error("list old drafts failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		for _, d := range drafts {
			appLogger.Info("would publish draft",
				slog.String("recipe_id", d.ID),
				slog.String("slug", d.Slug),
				slog.String("created_at", d.CreatedAt.Format(time.RFC3339)))
		}
		appLogger.Info("dry run complete", slog.Int("count", len(drafts)))
		return
	}

	count, err := sw.PublishOldDrafts(ctx)
	if err != nil {
		appLogger.Error("publish old drafts failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appLogger.Info("publish complete", slog.Int64("count", count))
}
