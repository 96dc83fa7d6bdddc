package middleware

import (
	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/service"

	"github.com/gin-gonic/gin"
)

/*
JWTAuth 要求请求携带有效令牌
功能：校验通过后把载荷写入上下文（user_id / email / role / token_payload）
*/
func JWTAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, authErr := auth.RequireAuth(c.Request)
		if authErr != nil {
			response.GinError(c, authErr.Status, authErr.Message)
			return
		}
		setPayload(c, payload)
		c.Next()
	}
}

/*
RequireRole 要求令牌角色不低于 role
未认证返回 401，角色不足返回 403
*/
func RequireRole(auth *service.AuthService, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, authErr := auth.RequireRole(c.Request, role)
		if authErr != nil {
			response.GinError(c, authErr.Status, authErr.Message)
			return
		}
		setPayload(c, payload)
		c.Next()
	}
}

func setPayload(c *gin.Context, payload *service.TokenPayload) {
	c.Set(ctxUserID, payload.UserID)
	c.Set(ctxEmail, payload.Email)
	c.Set(ctxRole, payload.Role)
	c.Set(ctxPayload, payload)
}
