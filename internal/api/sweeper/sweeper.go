// Package sweeper 周期性地把超龄草稿菜谱转为已发布状态。
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"

	"gorm.io/gorm"
)

// Sweeper 是草稿发布扫描器。
//
// 每隔 interval 扫描一次数据库，把创建时间早于 maxAge 的草稿
// 批量置为已发布。单条 UPDATE 完成，天然幂等：已发布的菜谱
// 不会被再次命中。
type Sweeper struct {
	db       *gorm.DB
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// New 创建一个草稿发布扫描器。
//
// 参数:
//
//	db: MySQL 数据库连接
//	logger: 日志记录器
//	interval: 扫描循环的时间间隔
//	maxAge: 草稿允许的最大滞留时间
func New(db *gorm.DB, logger *slog.Logger, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &Sweeper{
		db:       db,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run 启动扫描循环，直到 ctx 取消。
//
// 启动时先立即执行一轮，之后按 interval 周期执行。
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("draft sweeper started",
		slog.String("interval", s.interval.String()),
		slog.String("max_age", s.maxAge.String()))

	if _, err := s.PublishOldDrafts(ctx); err != nil {
		s.logger.Error("draft sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("draft sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.PublishOldDrafts(ctx); err != nil {
				s.logger.Error("draft sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// PublishOldDrafts 把创建时间早于 maxAge 的草稿批量转为已发布，返回条数。
func (s *Sweeper) PublishOldDrafts(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.maxAge)

	res := s.db.WithContext(ctx).
		Model(&model.Recipe{}).
		Where("is_draft = ? AND created_at < ?", true, cutoff).
		Update("is_draft", false)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		metrics.DraftsPublishedTotal.Add(float64(res.RowsAffected))
		s.logger.Info("published old drafts",
			slog.Int64("count", res.RowsAffected),
			slog.String("cutoff", cutoff.Format(time.RFC3339)))
	}
	return res.RowsAffected, nil
}

// ListOldDrafts 返回将被下一轮扫描命中的草稿，供 dry-run 使用。
func (s *Sweeper) ListOldDrafts(ctx context.Context) ([]model.Recipe, error) {
	cutoff := time.Now().Add(-s.maxAge)

	var drafts []model.Recipe
	if err := s.db.WithContext(ctx).
		Where("is_draft = ? AND created_at < ?", true, cutoff).
		Order("created_at ASC").
		Find(&drafts).Error; err != nil {
		return nil, err
	}
	return drafts, nil
}
