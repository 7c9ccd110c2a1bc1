package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 菜谱难度枚举。
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ValidDifficulty 校验难度取值是否合法。
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Category 表示菜谱分类（扁平标签）。
//
// recipes_count 永远通过查询按需统计，不落库，避免计数漂移。
type Category struct {
	ID          uint   `gorm:"primaryKey"`                             // 分类 ID
	Name        string `gorm:"type:varchar(100);uniqueIndex;not null"` // 分类名（唯一）
	Description string `gorm:"type:text"`                              // 描述
	Icon        string `gorm:"type:varchar(50)"`                       // 图标标识（如 FontAwesome class）
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Recipe 是平台的核心实体。
//
// 主键使用随机 UUID 而非自增 ID，避免被顺序枚举。
// slug 在首次保存时根据标题生成一次，之后即使标题修改也不再重算。
type Recipe struct {
	ID        string    `gorm:"type:char(36);primaryKey"`               // 随机 UUID
	Title     string    `gorm:"type:varchar(200);not null"`             // 标题
	Slug      string    `gorm:"type:varchar(220);uniqueIndex;not null"` // URL slug（唯一）
	CreatedAt time.Time `gorm:"index:idx_draft_created,priority:2"`
	UpdatedAt time.Time

	Description  string `gorm:"type:text"` // 简介
	Ingredients  string `gorm:"type:text"` // 配料（每行一条）
	Instructions string `gorm:"type:text"` // 做法
	Image        string `gorm:"type:varchar(255)"`

	AuthorID   uint     `gorm:"not null;index"` // 作者
	Author     User     `gorm:"foreignKey:AuthorID"`
	CategoryID uint     `gorm:"not null;index"` // 所属分类
	Category   Category `gorm:"foreignKey:CategoryID"`

	Difficulty string `gorm:"type:varchar(10);default:easy"` // easy / medium / hard
	PrepTime   int    `gorm:"not null;default:0"`            // 备菜时间（分钟）
	CookTime   int    `gorm:"not null;default:0"`            // 烹饪时间（分钟）
	Servings   int    `gorm:"not null;default:1"`            // 份数

	IsDraft    bool `gorm:"default:true;index:idx_draft_created,priority:1"` // 草稿默认不可见
	IsFeatured bool `gorm:"default:false"`                                   // 精选标记
}

// BeforeCreate 在入库前补齐随机主键。
func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// TotalTime 返回备菜与烹饪时间之和（分钟）。
func (r *Recipe) TotalTime() int {
	return r.PrepTime + r.CookTime
}

// Rating 是用户对菜谱的评分，(recipe, user) 全局唯一。
type Rating struct {
	ID        uint   `gorm:"primaryKey"`
	RecipeID  string `gorm:"type:char(36);not null;uniqueIndex:idx_recipe_user"` // 菜谱
	UserID    uint   `gorm:"not null;uniqueIndex:idx_recipe_user"`               // 评分用户
	Recipe    Recipe `gorm:"foreignKey:RecipeID"`
	User      User   `gorm:"foreignKey:UserID"`
	Rating    int    `gorm:"not null"`  // 分值，1-5
	Review    string `gorm:"type:text"` // 可选评语
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment 是菜谱下的评论，最多展示一层回复。
//
// is_active=false 表示被软删除/屏蔽：列表不可见，但记录保留。
type Comment struct {
	ID        uint    `gorm:"primaryKey"`
	RecipeID  string  `gorm:"type:char(36);not null;index"` // 所属菜谱
	UserID    uint    `gorm:"not null"`                     // 评论用户
	User      User    `gorm:"foreignKey:UserID"`
	Content   string  `gorm:"type:text;not null"`
	ParentID  *uint   `gorm:"index"` // 父评论（同一菜谱内）
	IsActive  bool    `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Replies []Comment `gorm:"foreignKey:ParentID"`
}
