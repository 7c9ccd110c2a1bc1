package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// recipeResponse 是菜谱的 API 输出结构，带评分聚合值。
type recipeResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	Ingredients   string    `json:"ingredients"`
	Instructions  string    `json:"instructions"`
	Image         string    `json:"image"`
	AuthorID      uint      `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	CategoryID    uint      `json:"category_id"`
	CategoryName  string    `json:"category_name"`
	Difficulty    string    `json:"difficulty"`
	PrepTime      int       `json:"prep_time"`
	CookTime      int       `json:"cook_time"`
	TotalTime     int       `json:"total_time"`
	Servings      int       `json:"servings"`
	IsDraft       bool      `json:"is_draft"`
	IsFeatured    bool      `json:"is_featured"`
	AverageRating float64   `json:"average_rating"`
	RatingsCount  int64     `json:"ratings_count"`
	UserRating    *int      `json:"user_rating,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRecipeResponse(r *model.Recipe, agg ratingAggregate) recipeResponse {
	return recipeResponse{
		ID:            r.ID,
		Title:         r.Title,
		Slug:          r.Slug,
		Description:   r.Description,
		Ingredients:   r.Ingredients,
		Instructions:  r.Instructions,
		Image:         r.Image,
		AuthorID:      r.AuthorID,
		AuthorName:    r.Author.FullName(),
		CategoryID:    r.CategoryID,
		CategoryName:  r.Category.Name,
		Difficulty:    r.Difficulty,
		PrepTime:      r.PrepTime,
		CookTime:      r.CookTime,
		TotalTime:     r.TotalTime(),
		Servings:      r.Servings,
		IsDraft:       r.IsDraft,
		IsFeatured:    r.IsFeatured,
		AverageRating: agg.AverageRating,
		RatingsCount:  agg.RatingsCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// recipeListResponse 批量组装菜谱输出，聚合值一次性批量取回。
func (s *Server) recipeListResponse(recipes []model.Recipe) ([]recipeResponse, error) {
	ids := make([]string, 0, len(recipes))
	for i := range recipes {
		ids = append(ids, recipes[i].ID)
	}
	aggs, err := ratingAggregatesFor(s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]recipeResponse, 0, len(recipes))
	for i := range recipes {
		out = append(out, toRecipeResponse(&recipes[i], aggs[recipes[i].ID]))
	}
	return out, nil
}

// assignSlug 由标题生成唯一 slug。
//
// 基础 slug 冲突时追加 -1、-2 …… 递增后缀，selfID 用于更新场景下
// 排除自身占用。slug 在创建时一次性分配，之后改标题也不再变动。
func assignSlug(db *gorm.DB, title, selfID string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "recipe"
	}

	candidate := base
	for i := 1; ; i++ {
		var count int64
		q := db.Model(&model.Recipe{}).Where("slug = ?", candidate)
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		if err := q.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// visibleRecipeBySlug 按 slug 加载菜谱并执行草稿可见性检查。
//
// 草稿只对作者本人和 staff 可见，其他人一律 404，不暴露存在性。
// 检查失败时已写入响应，调用方直接 return。
func (s *Server) visibleRecipeBySlug(c *gin.Context) (*model.Recipe, bool) {
	var recipe model.Recipe
	err := s.db.Where("slug = ?", c.Param("slug")).
		Preload("Author").
		Preload("Category").
		First(&recipe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
			return nil, false
		}
		s.logger.Error("load recipe failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load recipe failed"})
		return nil, false
	}

	if recipe.IsDraft && recipe.AuthorID != getUserID(c) && !isStaff(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
		return nil, false
	}
	return &recipe, true
}

type createRecipeRequest struct {
	Title        string `json:"title" binding:"required,max=200"`
	Description  string `json:"description" binding:"required"`
	Ingredients  string `json:"ingredients" binding:"required"`
	Instructions string `json:"instructions" binding:"required"`
	Image        string `json:"image"`
	CategoryID   uint   `json:"category_id" binding:"required"`
	Difficulty   string `json:"difficulty"`
	PrepTime     int    `json:"prep_time"`
	CookTime     int    `json:"cook_time"`
	Servings     int    `json:"servings"`
	IsDraft      *bool  `json:"is_draft"`
}

// handleCreateRecipe 创建菜谱，默认以草稿入库。
//
// POST /recipes
func (s *Server) handleCreateRecipe(c *gin.Context) {
	var req createRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = model.DifficultyEasy
	}
	if !model.ValidDifficulty(difficulty) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "difficulty must be one of easy, medium, hard"})
		return
	}
	if req.PrepTime < 0 || req.CookTime < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prep_time and cook_time must not be negative"})
		return
	}
	servings := req.Servings
	if servings == 0 {
		servings = 1
	}
	if servings < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "servings must be at least 1"})
		return
	}

	var category model.Category
	if err := s.db.First(&category, req.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load category failed"})
		return
	}

	isDraft := true
	if req.IsDraft != nil {
		isDraft = *req.IsDraft
	}

	recipe := model.Recipe{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Ingredients:  req.Ingredients,
		Instructions: req.Instructions,
		Image:        req.Image,
		AuthorID:     getUserID(c),
		CategoryID:   req.CategoryID,
		Difficulty:   difficulty,
		PrepTime:     req.PrepTime,
		CookTime:     req.CookTime,
		Servings:     servings,
		IsDraft:      isDraft,
	}

	// slug 冲突的并发窗口由唯一索引兜底，换个后缀重试
	for attempt := 0; attempt < 5; attempt++ {
		sl, err := assignSlug(s.db, recipe.Title, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create recipe failed"})
			return
		}
		if attempt > 0 {
			sl = fmt.Sprintf("%s-%d", sl, time.Now().UnixNano()%1000)
		}
		recipe.Slug = sl

		err = s.db.Create(&recipe).Error
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < 4 {
			continue
		}
		s.logger.Error("create recipe failed",
			slog.Uint64("user_id", uint64(recipe.AuthorID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create recipe failed"})
		return
	}

	if err := s.db.Preload("Author").Preload("Category").First(&recipe, "id = ?", recipe.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load recipe failed"})
		return
	}

	s.logger.Info("recipe created",
		slog.String("recipe_id", recipe.ID),
		slog.String("slug", recipe.Slug),
		slog.Uint64("user_id", uint64(recipe.AuthorID)))
	c.JSON(http.StatusCreated, toRecipeResponse(&recipe, ratingAggregate{}))
}

// handleListRecipes 列出已发布菜谱，支持过滤、搜索与排序。
//
// GET /recipes
func (s *Server) handleListRecipes(c *gin.Context) {
	q := s.db.Model(&model.Recipe{})

	// my_recipes=true 时限定为登录用户自己的菜谱，草稿一并返回
	mine := c.Query("my_recipes")
	if (mine == "true" || mine == "1") && getUserID(c) != 0 {
		q = q.Where("author_id = ?", getUserID(c))
	} else {
		q = q.Where("is_draft = ?", false)
	}

	if cat := c.Query("category"); cat != "" {
		q = q.Where("category_id = ?", cat)
	}
	if diff := strings.ToLower(c.Query("difficulty")); diff != "" {
		if !model.ValidDifficulty(diff) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid difficulty filter"})
			return
		}
		q = q.Where("difficulty = ?", diff)
	}
	if featured := c.Query("featured"); featured == "true" || featured == "1" {
		q = q.Where("is_featured = ?", true)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + search + "%"
		q = q.Where("title LIKE ? OR description LIKE ? OR ingredients LIKE ?", like, like, like)
	}
	if v := parseQueryInt(c, "prep_time_max", -1); v >= 0 {
		q = q.Where("prep_time <= ?", v)
	}
	if v := parseQueryInt(c, "cook_time_max", -1); v >= 0 {
		q = q.Where("cook_time <= ?", v)
	}
	if v := parseQueryInt(c, "total_time_max", -1); v >= 0 {
		q = q.Where("prep_time + cook_time <= ?", v)
	}
	if v := parseQueryInt(c, "servings_min", -1); v >= 0 {
		q = q.Where("servings >= ?", v)
	}
	if v := parseQueryInt(c, "servings_max", -1); v >= 0 {
		q = q.Where("servings <= ?", v)
	}

	q = q.Order(orderingClause(c.Query("ordering")))

	limit := parseQueryInt(c, "limit", s.cfg.App.PageSize)
	if limit <= 0 {
		limit = s.cfg.App.PageSize
	}
	if limit > s.cfg.App.MaxPageSize {
		limit = s.cfg.App.MaxPageSize
	}
	offset := parseQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		s.logger.Error("count recipes failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list recipes failed"})
		return
	}

	var recipes []model.Recipe
	if err := q.Preload("Author").Preload("Category").
		Limit(limit).Offset(offset).
		Find(&recipes).Error; err != nil {
		s.logger.Error("list recipes failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list recipes failed"})
		return
	}

	out, err := s.recipeListResponse(recipes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list recipes failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   total,
		"limit":   limit,
		"offset":  offset,
		"results": out,
	})
}

// orderingClause 将排序参数映射到白名单内的 ORDER BY 子句。
func orderingClause(ordering string) string {
	allowed := map[string]string{
		"created_at": "created_at",
		"title":      "title",
		"prep_time":  "prep_time",
		"cook_time":  "cook_time",
	}
	desc := strings.HasPrefix(ordering, "-")
	key := strings.TrimPrefix(ordering, "-")
	col, ok := allowed[key]
	if !ok {
		return "created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// handleGetRecipe 返回单个菜谱详情。
//
// 登录用户会额外带上自己的评分 user_rating。
//
// GET /recipes/:slug
func (s *Server) handleGetRecipe(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}

	aggs, err := ratingAggregatesFor(s.db, []string{recipe.ID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load recipe failed"})
		return
	}
	resp := toRecipeResponse(recipe, aggs[recipe.ID])

	if userID := getUserID(c); userID != 0 {
		var rating model.Rating
		if err := s.db.Where("recipe_id = ? AND user_id = ?", recipe.ID, userID).
			First(&rating).Error; err == nil {
			resp.UserRating = &rating.Rating
		}
	}
	c.JSON(http.StatusOK, resp)
}

type updateRecipeRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Ingredients  *string `json:"ingredients"`
	Instructions *string `json:"instructions"`
	Image        *string `json:"image"`
	CategoryID   *uint   `json:"category_id"`
	Difficulty   *string `json:"difficulty"`
	PrepTime     *int    `json:"prep_time"`
	CookTime     *int    `json:"cook_time"`
	Servings     *int    `json:"servings"`
	IsDraft      *bool   `json:"is_draft"`
	IsFeatured   *bool   `json:"is_featured"`
}

// handleUpdateRecipe 部分更新菜谱。
//
// 只有作者或 staff 可改；is_featured 仅 staff 可改。
// 改标题不会重算 slug，已分享的链接保持有效。
//
// PATCH /recipes/:slug
func (s *Server) handleUpdateRecipe(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	if recipe.AuthorID != userID && !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		s.logger.Warn("recipe update forbidden",
			slog.Uint64("actor_id", uint64(userID)),
			slog.String("recipe_id", recipe.ID),
			slog.Uint64("owner_id", uint64(recipe.AuthorID)))
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to modify this recipe"})
		return
	}

	var req updateRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title must be 1-200 characters"})
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Ingredients != nil {
		updates["ingredients"] = *req.Ingredients
	}
	if req.Instructions != nil {
		updates["instructions"] = *req.Instructions
	}
	if req.Image != nil {
		updates["image"] = *req.Image
	}
	if req.CategoryID != nil {
		var category model.Category
		if err := s.db.First(&category, *req.CategoryID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
			return
		}
		updates["category_id"] = *req.CategoryID
	}
	if req.Difficulty != nil {
		diff := strings.ToLower(strings.TrimSpace(*req.Difficulty))
		if !model.ValidDifficulty(diff) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "difficulty must be one of easy, medium, hard"})
			return
		}
		updates["difficulty"] = diff
	}
	if req.PrepTime != nil {
		if *req.PrepTime < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prep_time must not be negative"})
			return
		}
		updates["prep_time"] = *req.PrepTime
	}
	if req.CookTime != nil {
		if *req.CookTime < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cook_time must not be negative"})
			return
		}
		updates["cook_time"] = *req.CookTime
	}
	if req.Servings != nil {
		if *req.Servings < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "servings must be at least 1"})
			return
		}
		updates["servings"] = *req.Servings
	}
	if req.IsDraft != nil {
		updates["is_draft"] = *req.IsDraft
	}
	if req.IsFeatured != nil {
		if !isStaff(c) {
			metrics.AuthForbiddenTotal.Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "only staff can feature recipes"})
			return
		}
		updates["is_featured"] = *req.IsFeatured
	}

	if len(updates) > 0 {
		if err := s.db.Model(recipe).Updates(updates).Error; err != nil {
			s.logger.Error("update recipe failed",
				slog.String("recipe_id", recipe.ID),
				slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update recipe failed"})
			return
		}
	}

	if err := s.db.Preload("Author").Preload("Category").
		First(recipe, "id = ?", recipe.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load recipe failed"})
		return
	}
	aggs, err := ratingAggregatesFor(s.db, []string{recipe.ID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load recipe failed"})
		return
	}
	c.JSON(http.StatusOK, toRecipeResponse(recipe, aggs[recipe.ID]))
}

// handleDeleteRecipe 删除菜谱及其评分与评论。
//
// DELETE /recipes/:slug
func (s *Server) handleDeleteRecipe(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	if recipe.AuthorID != userID && !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		s.logger.Warn("recipe delete forbidden",
			slog.Uint64("actor_id", uint64(userID)),
			slog.String("recipe_id", recipe.ID),
			slog.Uint64("owner_id", uint64(recipe.AuthorID)))
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to delete this recipe"})
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&model.Rating{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(recipe).Error
	})
	if err != nil {
		s.logger.Error("delete recipe failed",
			slog.String("recipe_id", recipe.ID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete recipe failed"})
		return
	}

	s.logger.Info("recipe deleted",
		slog.String("recipe_id", recipe.ID),
		slog.Uint64("user_id", uint64(userID)))
	c.Status(http.StatusNoContent)
}

// handleFeaturedRecipes 返回精选菜谱列表。
//
// GET /recipes/featured
func (s *Server) handleFeaturedRecipes(c *gin.Context) {
	var recipes []model.Recipe
	if err := s.db.Where("is_draft = ? AND is_featured = ?", false, true).
		Preload("Author").Preload("Category").
		Order("created_at DESC").
		Limit(s.cfg.App.FeaturedLimit).
		Find(&recipes).Error; err != nil {
		s.logger.Error("list featured recipes failed", slog.String("error", err.Error()))
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

// handlePopularRecipes 按平均评分返回热门菜谱。
//
// 只统计评分数达到阈值的已发布菜谱，聚合口径与其他接口共用。
//
// GET /recipes/popular
func (s *Server) handlePopularRecipes(c *gin.Context) {
	sub := ratingAggQuery(s.db)

	var recipes []model.Recipe
	if err := s.db.Model(&model.Recipe{}).
		Joins("JOIN (?) AS agg ON agg.recipe_id = recipes.id", sub).
		Where("recipes.is_draft = ? AND agg.ratings_count >= ?", false, s.cfg.App.PopularMinRatings).
		Order("agg.average_rating DESC, agg.ratings_count DESC").
		Limit(s.cfg.App.PopularLimit).
		Preload("Author").Preload("Category").
		Find(&recipes).Error; err != nil {
		s.logger.Error("list popular recipes failed", slog.String("error", err.Error()))
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
