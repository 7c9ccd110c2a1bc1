package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type commentResponse struct {
	ID        uint              `json:"id"`
	RecipeID  string            `json:"recipe_id"`
	UserID    uint              `json:"user_id"`
	UserName  string            `json:"user_name"`
	Content   string            `json:"content"`
	ParentID  *uint             `json:"parent_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Replies   []commentResponse `json:"replies,omitempty"`
}

func toCommentResponse(cm *model.Comment, withReplies bool) commentResponse {
	resp := commentResponse{
		ID:        cm.ID,
		RecipeID:  cm.RecipeID,
		UserID:    cm.UserID,
		UserName:  cm.User.FullName(),
		Content:   cm.Content,
		ParentID:  cm.ParentID,
		CreatedAt: cm.CreatedAt,
		UpdatedAt: cm.UpdatedAt,
	}
	if withReplies {
		resp.Replies = make([]commentResponse, 0, len(cm.Replies))
		for i := range cm.Replies {
			resp.Replies = append(resp.Replies, toCommentResponse(&cm.Replies[i], false))
		}
	}
	return resp
}

// handleListComments 返回菜谱的顶层评论及其一层回复。
//
// 只展示 is_active 的评论，顶层与回复都按时间倒序。
//
// GET /recipes/:slug/comments
func (s *Server) handleListComments(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}

	var comments []model.Comment
	if err := s.db.Where("recipe_id = ? AND parent_id IS NULL AND is_active = ?", recipe.ID, true).
		Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("created_at DESC")
		}).
		Preload("Replies.User").
		Order("created_at DESC").
		Find(&comments).Error; err != nil {
		s.logger.Error("list comments failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list comments failed"})
		return
	}

	out := make([]commentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, toCommentResponse(&comments[i], true))
	}
	c.JSON(http.StatusOK, out)
}

type createCommentRequest struct {
	Content  string `json:"content" binding:"required"`
	ParentID *uint  `json:"parent_id"`
}

// handleCreateComment 发表评论或回复。
//
// 回复的父评论必须存在、未被删除、且属于同一菜谱，否则 400。
// 对回复的回复仍然落在同一父评论之下（只展开一层）。
//
// POST /recipes/:slug/comments
func (s *Server) handleCreateComment(c *gin.Context) {
	recipe, ok := s.visibleRecipeBySlug(c)
	if !ok {
		return
	}

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}

	parentID := req.ParentID
	if parentID != nil {
		var parent model.Comment
		if err := s.db.First(&parent, *parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "parent comment not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load parent comment failed"})
			return
		}
		if !parent.IsActive || parent.RecipeID != recipe.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parent comment"})
			return
		}
		// 回复的回复挂到顶层父评论下，保持单层结构
		if parent.ParentID != nil {
			parentID = parent.ParentID
		}
	}

	comment := model.Comment{
		RecipeID: recipe.ID,
		UserID:   getUserID(c),
		Content:  content,
		ParentID: parentID,
		IsActive: true,
	}
	if err := s.db.Create(&comment).Error; err != nil {
		s.logger.Error("create comment failed",
			slog.String("recipe_id", recipe.ID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create comment failed"})
		return
	}

	if err := s.db.Preload("User").First(&comment, comment.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load comment failed"})
		return
	}
	c.JSON(http.StatusCreated, toCommentResponse(&comment, false))
}

// activeCommentByID 加载未删除的评论，不存在或已删除时统一 404。
func (s *Server) activeCommentByID(c *gin.Context) (*model.Comment, bool) {
	var comment model.Comment
	err := s.db.Preload("User").
		Where("id = ? AND is_active = ?", c.Param("id"), true).
		First(&comment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
			return nil, false
		}
		s.logger.Error("load comment failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load comment failed"})
		return nil, false
	}
	return &comment, true
}

// handleGetComment 返回单条评论。
//
// GET /comments/:id
func (s *Server) handleGetComment(c *gin.Context) {
	comment, ok := s.activeCommentByID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toCommentResponse(comment, false))
}

type updateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// handleUpdateComment 编辑评论内容，仅作者或 staff。
//
// PATCH /comments/:id
func (s *Server) handleUpdateComment(c *gin.Context) {
	comment, ok := s.activeCommentByID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	if comment.UserID != userID && !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		s.logger.Warn("comment update forbidden",
			slog.Uint64("actor_id", uint64(userID)),
			slog.Uint64("comment_id", uint64(comment.ID)),
			slog.Uint64("owner_id", uint64(comment.UserID)))
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to modify this comment"})
		return
	}

	var req updateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}

	if err := s.db.Model(comment).Update("content", content).Error; err != nil {
		s.logger.Error("update comment failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update comment failed"})
		return
	}
	comment.Content = content
	c.JSON(http.StatusOK, toCommentResponse(comment, false))
}

// handleDeleteComment 软删除评论：置 is_active=false，保留记录。
//
// DELETE /comments/:id
func (s *Server) handleDeleteComment(c *gin.Context) {
	comment, ok := s.activeCommentByID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	if comment.UserID != userID && !isStaff(c) {
		metrics.AuthForbiddenTotal.Inc()
		s.logger.Warn("comment delete forbidden",
			slog.Uint64("actor_id", uint64(userID)),
			slog.Uint64("comment_id", uint64(comment.ID)),
			slog.Uint64("owner_id", uint64(comment.UserID)))
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not have permission to delete this comment"})
		return
	}

	if err := s.db.Model(comment).Update("is_active", false).Error; err != nil {
		s.logger.Error("delete comment failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete comment failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
