package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/metrics"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/notify"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/queue"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/ratelimit"
	"github.com/fatxioken06/Culinary-Canvas/internal/pkg/verifycode"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Handler 提供注册、登录、邮箱验证与个人资料接口。
type Handler struct {
	db        *gorm.DB
	jwtSecret []byte
	codes     *verifycode.Ledger
	cooldown  *ratelimit.Cooldown
	mailer    notify.Notifier
	mailQueue *queue.Queue
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(db *gorm.DB, jwtSecret string, codes *verifycode.Ledger, cooldown *ratelimit.Cooldown, mailer notify.Notifier, mailQueue *queue.Queue, logger *slog.Logger) *Handler {
	return &Handler{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		codes:     codes,
		cooldown:  cooldown,
		mailer:    mailer,
		mailQueue: mailQueue,
		logger:    logger,
	}
}

type registerRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	IsChef          bool   `json:"is_chef"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type userResponse struct {
	ID             uint      `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	FullName       string    `json:"full_name"`
	IsChef         bool      `json:"is_chef"`
	ProfilePicture string    `json:"profile_picture"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		FullName:       u.FullName(),
		IsChef:         u.IsChef,
		ProfilePicture: u.ProfilePicture,
		EmailConfirmed: u.EmailConfirmed,
		CreatedAt:      u.CreatedAt,
	}
}

// Register 创建新用户（未验证状态）并异步发送验证码邮件。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Password != req.PasswordConfirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passwords do not match"})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var existing model.User
	err := h.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Email:     email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsChef:    req.IsChef,
		Role:      model.RoleUser,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
			return
		}
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	if err := h.issueCode(c.Request.Context(), &user); err != nil {
		h.logger.Warn("issue verification code failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue verification code failed"})
		return
	}

	token, err := h.issueToken(user.ID, user.Role)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	h.logger.Info("user registered", slog.String("email", email))
	c.JSON(http.StatusCreated, gin.H{
		"message": "registration successful, check your email for the verification code",
		"user":    toUserResponse(&user),
		"token":   token,
	})
}

// Login 校验凭证并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issueToken(user.ID, user.Role)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	h.logger.Info("user logged in", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"token": token, "user": toUserResponse(&user)})
}

// VerifyEmail 消费验证码并将用户标记为已验证。
//
// 已验证用户直接拒绝，无论提交的码是否正确；
// 码不存在、过期与不匹配对调用方不做区分。
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.EmailConfirmed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is already verified"})
		return
	}

	ok, err := h.codes.Consume(c.Request.Context(), user.ID, strings.TrimSpace(req.Code))
	if err != nil {
		h.logger.Error("verify code lookup failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired verification code"})
		return
	}

	if err := h.db.Model(&user).Update("email_confirmed", true).Error; err != nil {
		h.logger.Error("confirm email failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	h.enqueueMail(func(ctx context.Context) error {
		if err := h.mailer.SendWelcome(user.Email, user.FullName()); err != nil {
			metrics.EmailSendFailedTotal.Inc()
			return err
		}
		metrics.WelcomeEmailsSentTotal.Inc()
		return nil
	})

	h.logger.Info("email verified", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "email verified successfully"})
}

// ResendCode 重新发送验证码，带冷却窗口。
func (h *Handler) ResendCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.EmailConfirmed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is already verified"})
		return
	}

	allowed, remain, err := h.cooldown.Allow(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("resend cooldown check failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resend failed"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many requests",
			"retry_after": int(remain.Seconds()),
		})
		return
	}

	if err := h.issueCode(c.Request.Context(), &user); err != nil {
		h.logger.Warn("resend verification failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resend failed"})
		return
	}

	h.logger.Info("verification code resent", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// Profile 返回当前用户资料。
func (h *Handler) Profile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

type updateProfileRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	IsChef         *bool   `json:"is_chef"`
	ProfilePicture *string `json:"profile_picture"`
}

// UpdateProfile 局部更新当前用户资料。
func (h *Handler) UpdateProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		name := strings.TrimSpace(*req.FirstName)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid first_name"})
			return
		}
		updates["first_name"] = name
	}
	if req.LastName != nil {
		name := strings.TrimSpace(*req.LastName)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_name"})
			return
		}
		updates["last_name"] = name
	}
	if req.IsChef != nil {
		updates["is_chef"] = *req.IsChef
	}
	if req.ProfilePicture != nil {
		updates["profile_picture"] = *req.ProfilePicture
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}

	if err := h.db.Model(user).Updates(updates).Error; err != nil {
		h.logger.Error("update profile failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update profile failed"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword 修改当前用户密码。
func (h *Handler) ChangePassword(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old password is incorrect"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if err := h.db.Model(user).Update("password", string(hash)).Error; err != nil {
		h.logger.Error("change password failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
		return
	}

	h.logger.Info("password changed", slog.String("email", user.Email))
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

func (h *Handler) currentUser(c *gin.Context) (*model.User, bool) {
	userID := c.GetUint("userID")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return &user, true
}

// issueCode 生成验证码、写入短时存储并异步投递邮件。
func (h *Handler) issueCode(ctx context.Context, user *model.User) error {
	code, err := verifycode.Generate(6)
	if err != nil {
		return err
	}
	if err := h.codes.Set(ctx, user.ID, code); err != nil {
		return err
	}

	email, fullName := user.Email, user.FullName()
	h.enqueueMail(func(ctx context.Context) error {
		if err := h.mailer.SendVerificationCode(email, fullName, code); err != nil {
			metrics.EmailSendFailedTotal.Inc()
			return err
		}
		metrics.VerificationEmailsSentTotal.Inc()
		return nil
	})
	return nil
}

// enqueueMail 将邮件任务交给后台 worker 池；无队列时直接同步降级。
func (h *Handler) enqueueMail(job queue.Job) {
	if h.mailQueue != nil {
		h.mailQueue.Enqueue(job)
		return
	}
	go func() {
		if err := job(context.Background()); err != nil {
			h.logger.Warn("mail job failed", slog.String("error", err.Error()))
		}
	}()
}

func (h *Handler) issueToken(userID uint, role string) (string, error) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}
