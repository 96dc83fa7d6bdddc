package middleware

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"ugcleaks/server/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/* redactedParams 日志中需要隐藏值的 query 参数 */
var redactedParams = map[string]struct{}{
	"token":    {},
	"password": {},
	"secret":   {},
}

func sanitizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "***parse_error***"
	}
	for key := range values {
		if _, ok := redactedParams[strings.ToLower(key)]; ok {
			values.Set(key, "***")
		}
	}
	return values.Encode()
}

/*
Logger 访问日志
功能：生成或沿用 X-Request-ID，按状态码选择日志级别，并按路由模板计数
*/
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		log := zap.L().Named("http")
		logFunc := log.Info
		switch {
		case status >= 500:
			logFunc = log.Error
		case status >= 400:
			logFunc = log.Warn
		}
		logFunc("HTTP请求",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", sanitizeQuery(c.Request.URL.RawQuery)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
