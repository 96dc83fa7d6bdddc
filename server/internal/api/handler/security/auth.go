package security

import (
	"errors"
	"time"

	"ugcleaks/server/internal/api/handler"
	"ugcleaks/server/internal/api/middleware"
	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/db/models"
	"ugcleaks/server/internal/service"
	"ugcleaks/server/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
AuthHandler 注册、登录、注销
注册和登录路由前挂 LoginRateLimit，本处理器只负责登录成功后清除限流记录
*/
type AuthHandler struct {
	app    *types.App
	logger *zap.Logger
}

func NewAuthHandler(app *types.App) *AuthHandler {
	return &AuthHandler{
		app:    app,
		logger: zap.L().Named("auth-handler"),
	}
}

type SigninRequest struct {
	Email    string `json:"email" binding:"required,max=128"`
	Password string `json:"password" binding:"required,max=128"`
}

/*
TokenResponse 登录/注册成功后返回
*/
type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

/*
Signup 注册
路由：POST /api/v1/auth/signup
*/
func (h *AuthHandler) Signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid request body")
		return
	}

	user, err := h.app.Users.Register(&req)
	if err != nil {
		handler.RespondError(c, err, "signup failed")
		return
	}

	h.issue(c, user)
}

/*
Signin 登录
路由：POST /api/v1/auth/signin
*/
func (h *AuthHandler) Signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid request body")
		return
	}

	user, err := h.app.Users.Authenticate(req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		h.logger.Info("登录失败", zap.String("client_ip", c.ClientIP()))
		response.GinUnauthorized(c, service.ErrInvalidCredentials.Error())
		return
	case errors.Is(err, service.ErrAccountDisabled):
		response.GinForbidden(c, "account disabled")
		return
	case err != nil:
		response.GinInternalError(c, "signin failed", err)
		return
	}

	h.app.Limiter.Clear(middleware.LimiterKey("signin", c))
	h.logger.Info("用户登录成功", zap.String("user_id", user.ID), zap.String("client_ip", c.ClientIP()))
	h.issue(c, user)
}

/*
Logout 吊销当前令牌
路由：POST /api/v1/auth/logout
*/
func (h *AuthHandler) Logout(c *gin.Context) {
	payload := middleware.GetTokenPayload(c)
	if err := h.app.Auth.RevokeToken(c.Request.Context(), payload); err != nil {
		/* 内存记录已生效，共享存储失败只影响其他实例 */
		h.logger.Warn("写入令牌吊销记录失败", zap.Error(err))
	}
	response.GinSuccessWithMessage(c, "logged out", nil)
}

func (h *AuthHandler) issue(c *gin.Context, user *models.User) {
	token, payload, err := h.app.Auth.IssueToken(user)
	if err != nil {
		response.GinInternalError(c, "failed to issue token", err)
		return
	}
	response.GinSuccess(c, TokenResponse{
		Token:     token,
		ExpiresAt: payload.ExpiresAt,
		User:      user,
	})
}
