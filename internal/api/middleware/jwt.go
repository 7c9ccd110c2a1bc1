package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AuthRequired 校验 JWT 并将 userID / role 写入上下文，失败返回 401。
func AuthRequired(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		userID, role, ok := parseToken(c, secret)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			c.Abort()
			return
		}
		c.Set("userID", userID)
		c.Set("role", role)
		c.Next()
	}
}

// AuthOptional 尝试解析 JWT；无凭证或凭证无效时以匿名身份继续。
//
// 草稿可见性等策略依赖"匿名也能访问读接口"，因此这里绝不中断请求。
func AuthOptional(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		if userID, role, ok := parseToken(c, secret); ok {
			c.Set("userID", userID)
			c.Set("role", role)
		}
		c.Next()
	}
}

func parseToken(c *gin.Context, secret []byte) (uint, string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return 0, "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, "", false
	}

	claims := &customClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return 0, "", false
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", false
	}

	role := strings.TrimSpace(strings.ToLower(claims.Role))
	if role == "" {
		role = "user"
	}
	return uint(uid), role, true
}
