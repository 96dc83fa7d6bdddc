package middleware

import (
	"ugcleaks/server/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID  = "user_id"
	ctxEmail   = "email"
	ctxRole    = "role"
	ctxPayload = "token_payload"
)

/*
以下函数从上下文提取 JWTAuth / RequireRole 注入的信息
未经过认证中间件时返回零值
*/

func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

/* GetTokenPayload 注销时需要 jti 和过期时间 */
func GetTokenPayload(c *gin.Context) *service.TokenPayload {
	v, ok := c.Get(ctxPayload)
	if !ok {
		return nil
	}
	p, _ := v.(*service.TokenPayload)
	return p
}
