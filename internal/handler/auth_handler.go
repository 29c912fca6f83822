package handler

import (
	"errors"
	"net/http"

	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/fetcher"
	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责登录、注册与登出。
type AuthHandler struct {
	sessions service.SessionService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(sessions service.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// CredentialsRequest 是登录与注册的请求体。
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理登录。远端拒绝时返回 401。
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		badRequest(c, "邮箱和密码不能为空")
		return
	}

	if err := h.sessions.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		var httpErr *fetcher.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			log.Warnf("Login: rejected by backend, email: %s, error: %v", req.Email, err)
			respond(c, http.StatusUnauthorized, err.Error(), nil)
			return
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Login successful", h.sessions.Current())
}

// Signup 处理注册，注册后不自动登录。
func (h *AuthHandler) Signup(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "邮箱和密码不能为空")
		return
	}
	if err := h.sessions.Signup(c.Request.Context(), req.Email, req.Password); err != nil {
		var httpErr *fetcher.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			respond(c, httpErr.StatusCode, err.Error(), nil)
			return
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Signup successful", nil)
}

// Logout 清除登录态，总是成功。
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context())
	respond(c, http.StatusOK, "Logout successful", nil)
}

// Me 返回当前登录态。
func (h *AuthHandler) Me(c *gin.Context) {
	sess := h.sessions.Current()
	ok(c, gin.H{
		"authenticated": sess.Authenticated(),
		"email":         sess.Email,
		"userId":        sess.UserID,
	})
}
