package model

import (
	"strings"
	"time"
)

// 用户角色。staff 拥有内容管理权限（分类维护、他人内容处理）。
const (
	RoleUser  = "user"
	RoleStaff = "staff"
)

// User 表示平台用户，以邮箱作为唯一身份标识。
type User struct {
	ID             uint   `gorm:"primaryKey"`                    // 用户 ID
	Email          string `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一）
	Password       string `gorm:"not null"`                      // bcrypt 哈希
	FirstName      string `gorm:"type:varchar(150)"`             // 名
	LastName       string `gorm:"type:varchar(150)"`             // 姓
	Role           string `gorm:"type:varchar(16);default:user"` // 角色: user / staff
	IsChef         bool   `gorm:"default:false"`                 // 是否厨师账号
	EmailConfirmed bool   `gorm:"default:false"`                 // 邮箱是否已验证
	ProfilePicture string `gorm:"type:varchar(255)"`             // 头像 URL
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Recipes []Recipe `gorm:"foreignKey:AuthorID"`
}

// FullName 返回用户完整姓名（首尾去空格）。
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsStaff 返回该用户是否具有管理权限。
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff
}
