package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"

	"gorm.io/gorm"
)

// defaultCategories 是新部署时的基础分类集。
var defaultCategories = []model.Category{
	{Name: "Breakfast", Description: "Start your day right", Icon: "fa-mug-hot"},
	{Name: "Lunch", Description: "Midday meals", Icon: "fa-bowl-food"},
	{Name: "Dinner", Description: "Evening mains", Icon: "fa-utensils"},
	{Name: "Dessert", Description: "Sweet treats", Icon: "fa-cake-candles"},
	{Name: "Vegetarian", Description: "Meat-free dishes", Icon: "fa-leaf"},
	{Name: "Quick & Easy", Description: "Ready in 30 minutes or less", Icon: "fa-bolt"},
}

// SeedDefaultCategories 确保基础分类存在，幂等。
//
// 只按名字补缺，不覆盖已有分类的描述或图标，
// 管理员的后续修改不会被重启冲掉。
func (s *Server) SeedDefaultCategories(ctx context.Context) error {
	for _, cat := range defaultCategories {
		var existing model.Category
		err := s.db.WithContext(ctx).Where("name = ?", cat.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		create := cat
		if err := s.db.WithContext(ctx).Create(&create).Error; err != nil {
			// 并发启动时另一实例可能刚插入同名分类
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return err
		}
		s.logger.Info("seeded default category", slog.String("name", create.Name))
	}
	return nil
}
