package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type categoryResponse struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	RecipesCount int64     `json:"recipes_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCategoryResponse(cat *model.Category, count int64) categoryResponse {
	return categoryResponse{
		ID:           cat.ID,
		Name:         cat.Name,
		Description:  cat.Description,
		Icon:         cat.Icon,
		RecipesCount: count,
		CreatedAt:    cat.CreatedAt,
		UpdatedAt:    cat.UpdatedAt,
	}
}

// publishedCountsByCategory 统计每个分类下已发布菜谱的数量。
func (s *Server) publishedCountsByCategory() (map[uint]int64, error) {
	type row struct {
		CategoryID uint  `gorm:"column:category_id"`
		Count      int64 `gorm:"column:count"`
	}
	var rows []row
	if err := s.db.Model(&model.Recipe{}).
		Select("category_id, COUNT(*) AS count").
		Where("is_draft = ?", false).
		Group("category_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.CategoryID] = r.Count
	}
	return out, nil
}

// handleListCategories 返回全部分类及各自的已发布菜谱数量。
//
// GET /categories
func (s *Server) handleListCategories(c *gin.Context) {
	var categories []model.Category
	if err := s.db.Order("name ASC").Find(&categories).Error; err != nil {
		s.logger.Error("list categories failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list categories failed"})
		return
	}

	counts, err := s.publishedCountsByCategory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list categories failed"})
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for i := range categories {
		out = append(out, toCategoryResponse(&categories[i], counts[categories[i].ID]))
	}
	c.JSON(http.StatusOK, out)
}

// handlePopularCategories 按已发布菜谱数量返回热门分类。
//
// 没有任何已发布菜谱的分类不出现在结果中。
//
// GET /categories/popular
func (s *Server) handlePopularCategories(c *gin.Context) {
	var categories []model.Category
	if err := s.db.Order("name ASC").Find(&categories).Error; err != nil {
		s.logger.Error("list categories failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list categories failed"})
		return
	}

	counts, err := s.publishedCountsByCategory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list categories failed"})
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for i := range categories {
		if counts[categories[i].ID] == 0 {
			continue
		}
		out = append(out, toCategoryResponse(&categories[i], counts[categories[i].ID]))
	}
	// 小数据量，直接内存排序
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecipesCount > out[j].RecipesCount
	})
	if limit := s.cfg.App.FeaturedLimit; len(out) > limit {
		out = out[:limit]
	}
	c.JSON(http.StatusOK, out)
}

// categoryByID 加载分类，不存在时 404。
func (s *Server) categoryByID(c *gin.Context) (*model.Category, bool) {
	var category model.Category
	if err := s.db.First(&category, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
			return nil, false
		}
		s.logger.Error("load category failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load category failed"})
		return nil, false
	}
	return &category, true
}

// handleGetCategory 返回单个分类详情。
//
// GET /categories/:id
func (s *Server) handleGetCategory(c *gin.Context) {
	category, ok := s.categoryByID(c)
	if !ok {
		return
	}

	var count int64
	if err := s.db.Model(&model.Recipe{}).
		Where("category_id = ? AND is_draft = ?", category.ID, false).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load category failed"})
		return
	}
	c.JSON(http.StatusOK, toCategoryResponse(category, count))
}

// handleCategoryRecipes 返回分类下的已发布菜谱。
//
// GET /categories/:id/recipes
func (s *Server) handleCategoryRecipes(c *gin.Context) {
	category, ok := s.categoryByID(c)
	if !ok {
		return
	}

	var recipes []model.Recipe
	if err := s.db.Where("category_id = ? AND is_draft = ?", category.ID, false).
		Preload("Author").Preload("Category").
		Order("created_at DESC").
		Find(&recipes).Error; err != nil {
		s.logger.Error("list category recipes failed", slog.String("error", err.Error()))
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

type categoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// handleCreateCategory 创建分类，仅 staff。
//
// POST /categories
func (s *Server) handleCreateCategory(c *gin.Context) {
	if !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "only staff can manage categories"})
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := model.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Icon:        req.Icon,
	}
	if category.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
		return
	}

	if err := s.db.Create(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "category name already exists"})
			return
		}
		s.logger.Error("create category failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create category failed"})
		return
	}
	c.JSON(http.StatusCreated, toCategoryResponse(&category, 0))
}

type updateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

// handleUpdateCategory 更新分类，仅 staff。
//
// PATCH /categories/:id
func (s *Server) handleUpdateCategory(c *gin.Context) {
	if !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "only staff can manage categories"})
		return
	}
	category, ok := s.categoryByID(c)
	if !ok {
		return
	}

	var req updateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must be 1-100 characters"})
			return
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Icon != nil {
		updates["icon"] = *req.Icon
	}

	if len(updates) > 0 {
		if err := s.db.Model(category).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "category name already exists"})
				return
			}
			s.logger.Error("update category failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update category failed"})
			return
		}
	}

	var count int64
	if err := s.db.Model(&model.Recipe{}).
		Where("category_id = ? AND is_draft = ?", category.ID, false).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load category failed"})
		return
	}
	c.JSON(http.StatusOK, toCategoryResponse(category, count))
}

// handleDeleteCategory 删除分类，仅 staff。
//
// 仍挂有菜谱（含草稿）的分类拒绝删除，返回 409。
//
// DELETE /categories/:id
func (s *Server) handleDeleteCategory(c *gin.Context) {
	if !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "only staff can manage categories"})
		return
	}
	category, ok := s.categoryByID(c)
	if !ok {
		return
	}

	var count int64
	if err := s.db.Model(&model.Recipe{}).
		Where("category_id = ?", category.ID).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete category failed"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "category still has recipes"})
		return
	}

	if err := s.db.Delete(category).Error; err != nil {
		s.logger.Error("delete category failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete category failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
