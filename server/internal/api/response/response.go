/*
Package response 统一 JSON 响应格式

	{"success": true,  "code": 200, "message": "ok", "data": {...}}
	{"success": false, "code": 400, "message": "no ids provided"}
*/
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

/* PageData 分页列表 */
type PageData struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func GinSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Code: http.StatusOK, Message: "ok", Data: data})
}

func GinSuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Code: http.StatusOK, Message: message, Data: data})
}

/* GinCreated 201 */
func GinCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Code: http.StatusCreated, Message: "created", Data: data})
}

/* GinError 任意状态码的失败响应，并中止后续 handler */
func GinError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Code: status, Message: message})
}

func GinBadRequest(c *gin.Context, message string) {
	GinError(c, http.StatusBadRequest, message)
}

func GinUnauthorized(c *gin.Context, message string) {
	GinError(c, http.StatusUnauthorized, message)
}

func GinForbidden(c *gin.Context, message string) {
	GinError(c, http.StatusForbidden, message)
}

func GinNotFound(c *gin.Context, message string) {
	GinError(c, http.StatusNotFound, message)
}

func GinConflict(c *gin.Context, message string) {
	GinError(c, http.StatusConflict, message)
}

func GinTooManyRequests(c *gin.Context, message string) {
	GinError(c, http.StatusTooManyRequests, message)
}

/*
GinInternalError 500
原始错误只写日志，不返回给客户端
*/
func GinInternalError(c *gin.Context, message string, err error) {
	zap.L().Named("response").Error(message,
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
	GinError(c, http.StatusInternalServerError, message)
}
