package api

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"

	"github.com/gin-gonic/gin"
)

func storedCode(t *testing.T, s *Server, userID uint) string {
	t.Helper()
	code, err := s.rdb.Get(context.Background(), "culinary_canvas:email_verify:"+strconv.FormatUint(uint64(userID), 10)).Result()
	if err != nil {
		t.Fatalf("read stored code: %v", err)
	}
	return code
}

func TestRegisterAndVerifyFlow(t *testing.T) {
	s, _ := newTestServer(t)

	_, userID := registerUser(t, s, "newcomer@example.com")

	// 错码被拒绝，且不销毁正确的码
	w := doJSON(t, s, http.MethodPost, "/verify", "", gin.H{
		"email": "newcomer@example.com",
		"code":  "000000",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong code: expected 400, got %d (%s)", w.Code, w.Body.String())
	}

	code := storedCode(t, s, userID)
	w = doJSON(t, s, http.MethodPost, "/verify", "", gin.H{
		"email": "newcomer@example.com",
		"code":  code,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var user model.User
	if err := s.db.First(&user, userID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if !user.EmailConfirmed {
		t.Error("expected email_confirmed after verification")
	}

	// 已验证用户再提交任何码都拒绝
	w = doJSON(t, s, http.MethodPost, "/verify", "", gin.H{
		"email": "newcomer@example.com",
		"code":  code,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("re-verify: expected 400, got %d", w.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s, _ := newTestServer(t)
	registerUser(t, s, "taken@example.com")

	w := doJSON(t, s, http.MethodPost, "/register", "", gin.H{
		"email":            "taken@example.com",
		"password":         "secret123",
		"password_confirm": "secret123",
		"first_name":       "Dup",
		"last_name":        "User",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRegister_PasswordMismatch(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/register", "", gin.H{
		"email":            "mismatch@example.com",
		"password":         "secret123",
		"password_confirm": "different",
		"first_name":       "Bad",
		"last_name":        "Input",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	registerUser(t, s, "known@example.com")

	w := doJSON(t, s, http.MethodPost, "/login", "", gin.H{
		"email":    "known@example.com",
		"password": "wrongpass",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/login", "", gin.H{
		"email":    "nobody@example.com",
		"password": "secret123",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: expected 401, got %d", w.Code)
	}
}

func TestResendCode_Cooldown(t *testing.T) {
	s, _ := newTestServer(t)
	_, userID := registerUser(t, s, "slow@example.com")
	oldCode := storedCode(t, s, userID)

	w := doJSON(t, s, http.MethodPost, "/resend", "", gin.H{"email": "slow@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("first resend: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	// 旧码被新码覆盖
	if storedCode(t, s, userID) == oldCode {
		t.Log("resent code happened to match previous one; acceptable but unlikely")
	}

	w = doJSON(t, s, http.MethodPost, "/resend", "", gin.H{"email": "slow@example.com"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second resend: expected 429, got %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		RetryAfter int `json:"retry_after"`
	}
	decodeJSON(t, w, &resp)
	if resp.RetryAfter <= 0 {
		t.Errorf("expected positive retry_after, got %d", resp.RetryAfter)
	}
}

func TestResendCode_RejectedForVerifiedUser(t *testing.T) {
	s, _ := newTestServer(t)
	_, userID := registerUser(t, s, "done@example.com")
	if err := s.db.Model(&model.User{}).Where("id = ?", userID).
		Update("email_confirmed", true).Error; err != nil {
		t.Fatalf("confirm user: %v", err)
	}

	w := doJSON(t, s, http.MethodPost, "/resend", "", gin.H{"email": "done@example.com"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestProfileUpdateAndPasswordChange(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "profile@example.com")

	w := doJSON(t, s, http.MethodPatch, "/me", token, gin.H{
		"first_name": "Updated",
		"is_chef":    true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update profile: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/me", token, nil)
	var profile struct {
		FirstName string `json:"first_name"`
		IsChef    bool   `json:"is_chef"`
	}
	decodeJSON(t, w, &profile)
	if profile.FirstName != "Updated" || !profile.IsChef {
		t.Errorf("profile not updated: %+v", profile)
	}

	// 旧密码错误拒绝
	w = doJSON(t, s, http.MethodPost, "/me/password", token, gin.H{
		"old_password": "wrong",
		"new_password": "newsecret",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong old password: expected 400, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/me/password", token, gin.H{
		"old_password": "secret123",
		"new_password": "newsecret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("change password: status %d body %s", w.Code, w.Body.String())
	}

	// 新密码可登录
	w = doJSON(t, s, http.MethodPost, "/login", "", gin.H{
		"email":    "profile@example.com",
		"password": "newsecret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login with new password: status %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)

	if w := doJSON(t, s, http.MethodGet, "/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/me", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", w.Code)
	}
}
