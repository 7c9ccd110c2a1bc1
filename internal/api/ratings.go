package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ratingAggregate 是单个菜谱的评分聚合结果。
type ratingAggregate struct {
	RecipeID      string  `gorm:"column:recipe_id"`
	AverageRating float64 `gorm:"column:average_rating"`
	RatingsCount  int64   `gorm:"column:ratings_count"`
}

// ratingAggQuery 是评分聚合的唯一口径：按菜谱分组的 AVG / COUNT。
//
// 列表、详情与热门排行必须复用这一个查询构造器，
// 不允许各自手写聚合公式，防止两条代码路径算出不同的数。
// 无评分的菜谱不会出现在结果里，调用方按"平均分 0、计数 0"处理。
func ratingAggQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&model.Rating{}).
		Select("recipe_id, AVG(rating) AS average_rating, COUNT(*) AS ratings_count").
		Group("recipe_id")
}

// ratingAggregatesFor 批量取回指定菜谱的聚合值。
func ratingAggregatesFor(db *gorm.DB, recipeIDs []string) (map[string]ratingAggregate, error) {
	out := make(map[string]ratingAggregate, len(recipeIDs))
	if len(recipeIDs) == 0 {
		return out, nil
	}
	var rows []ratingAggregate
	if err := ratingAggQuery(db).Where("recipe_id IN ?", recipeIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RecipeID] = row
	}
	return out, nil
}

type ratingResponse struct {
	ID        uint      `json:"id"`
	RecipeID  string    `json:"recipe_id"`
	UserID    uint      `json:"user_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRatingResponse(r *model.Rating) ratingResponse {
	return ratingResponse{
		ID:        r.ID,
		RecipeID:  r.RecipeID,
		UserID:    r.UserID,
		UserName:  r.User.FullName(),
		Rating:    r.Rating,
		Review:    r.Review,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// handleListRatings 返回菜谱的全部评分。
//
// GET /recipes/:slug/ratings
func (s *Server) handleListRatings(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}

	var ratings []model.Rating
	if err := s.db.Where("recipe_id = ?", recipe.ID).
		Preload("User").
		Order("created_at DESC").
		Find(&ratings).Error; err != nil {
		s.logger.Error("list ratings failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list ratings failed"})
		return
	}

	out := make([]ratingResponse, 0, len(ratings))
	for i := range ratings {
		out = append(out, toRatingResponse(&ratings[i]))
	}
	c.JSON(http.StatusOK, out)
}

type upsertRatingRequest struct {
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Review string `json:"review"`
}

// handleUpsertRating 创建或原地更新当前用户对菜谱的评分。
//
// 同一 (recipe, user) 只允许一条评分：已存在时更新并返回 200，
// 新建返回 201。并发首评的竞态交由唯一索引裁决，输家转为更新。
//
// POST /recipes/:slug/ratings
func (s *Server) handleUpsertRating(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}

	var req upsertRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := getUserID(c)

	updated, err := s.upsertRating(recipe.ID, userID, req.Rating, req.Review)
	if err != nil {
		s.logger.Error("upsert rating failed",
			slog.String("recipe_id", recipe.ID),
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save rating failed"})
		return
	}

	metrics.RatingsUpsertedTotal.Inc()

	var rating model.Rating
	if err := s.db.Where("recipe_id = ? AND user_id = ?", recipe.ID, userID).
		Preload("User").First(&rating).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load rating failed"})
		return
	}

	status := http.StatusCreated
	if updated {
		status = http.StatusOK
	}
	c.JSON(status, toRatingResponse(&rating))
}

// upsertRating 执行评分 upsert，返回是否为更新（而非新建）。
func (s *Server) upsertRating(recipeID string, userID uint, value int, review string) (bool, error) {
	var existing model.Rating
	err := s.db.Where("recipe_id = ? AND user_id = ?", recipeID, userID).First(&existing).Error
	if err == nil {
		return true, s.db.Model(&existing).
			Updates(map[string]interface{}{"rating": value, "review": review}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	rating := model.Rating{
		RecipeID: recipeID,
		UserID:   userID,
		Rating:   value,
		Review:   review,
	}
	createErr := s.db.Create(&rating).Error
	if createErr == nil {
		return false, nil
	}
	// 并发首评：唯一索引拒绝了后来者，降级为更新
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return true, s.db.Model(&model.Rating{}).
			Where("recipe_id = ? AND user_id = ?", recipeID, userID).
			Updates(map[string]interface{}{"rating": value, "review": review}).Error
	}
	return false, createErr
}

// handleDeleteRating 删除当前用户在该菜谱上的评分。
//
// DELETE /recipes/:slug/ratings
func (s *Server) handleDeleteRating(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	res := s.db.Where("recipe_id = ? AND user_id = ?", recipe.ID, userID).Delete(&model.Rating{})
	if res.Error != nil {
		s.logger.Error("delete rating failed",
			slog.String("recipe_id", recipe.ID),
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", res.Error.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete rating failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "rating not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
