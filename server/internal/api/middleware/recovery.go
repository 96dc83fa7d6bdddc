package middleware

import (
	"net/http"
	"runtime/debug"

	"ugcleaks/server/internal/api/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
Recovery 捕获 handler panic，记录堆栈并返回统一的 500 响应
*/
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				zap.L().Error("请求处理 panic",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				response.GinError(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}
