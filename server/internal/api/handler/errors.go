/*
Package handler 各业务 handler 共用的错误映射
*/
package handler

import (
	"errors"
	"strconv"

	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/service"

	"github.com/gin-gonic/gin"
)

/*
RespondError 把 service 层错误映射为 HTTP 响应
ValidationError → 400，ErrNotFound → 404，ErrConflict → 409，其余 → 500
*/
func RespondError(c *gin.Context, err error, internalMsg string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		response.GinBadRequest(c, ve.Message)
	case errors.Is(err, service.ErrNotFound):
		response.GinNotFound(c, "not found")
	case errors.Is(err, service.ErrConflict):
		response.GinConflict(c, err.Error())
	default:
		response.GinInternalError(c, internalMsg, err)
	}
}

/* QueryInt 解析整数 query 参数，缺失或非法时返回 def */
func QueryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
