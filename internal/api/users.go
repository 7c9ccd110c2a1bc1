package api

import (
	"log/slog"
	"net/http"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"

	"github.com/gin-gonic/gin"
)

// handleMyRecipes 返回当前用户的全部菜谱，草稿也包含在内。
//
// GET /me/recipes
func (s *Server) handleMyRecipes(c *gin.Context) {
	userID := getUserID(c)

	var recipes []model.Recipe
	if err := s.db.Where("author_id = ?", userID).
		Preload("Author").Preload("Category").
		Order("created_at DESC").
		Find(&recipes).Error; err != nil {
		s.logger.Error("list my recipes failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list recipes failed"})
		return
	}

	out, err := s.recipeListResponse(recipes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list recipes failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// handleMyStats 返回当前用户的创作统计。
//
// average_rating 是其所有菜谱上收到的全部评分的均值，
// 口径与菜谱聚合一致。
//
// GET /me/stats
func (s *Server) handleMyStats(c *gin.Context) {
	userID := getUserID(c)

	var total, published int64
	if err := s.db.Model(&model.Recipe{}).
		Where("author_id = ?", userID).
		Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load stats failed"})
		return
	}
	if err := s.db.Model(&model.Recipe{}).
		Where("author_id = ? AND is_draft = ?", userID, false).
		Count(&published).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load stats failed"})
		return
	}

	type aggRow struct {
		AverageRating float64 `gorm:"column:average_rating"`
		RatingsCount  int64   `gorm:"column:ratings_count"`
	}
	var agg aggRow
	if err := s.db.Model(&model.Rating{}).
		Select("COALESCE(AVG(rating), 0) AS average_rating, COUNT(*) AS ratings_count").
		Where("recipe_id IN (?)", s.db.Model(&model.Recipe{}).Select("id").Where("author_id = ?", userID)).
		Scan(&agg).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load stats failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recipes_count":    total,
		"published_count":  published,
		"draft_count":      total - published,
		"ratings_received": agg.RatingsCount,
		"average_rating":   agg.AverageRating,
	})
}
