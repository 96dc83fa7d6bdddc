package middleware

import (
	"math"
	"strconv"

	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/pkg/metrics"
	"ugcleaks/server/internal/service"

	"github.com/gin-gonic/gin"
)

/* LimiterKey 限流键 "<用途>:<客户端地址>" */
func LimiterKey(purpose string, c *gin.Context) string {
	return purpose + ":" + c.ClientIP()
}

/*
LoginRateLimit 认证端点限流
超限返回 429，Retry-After 为剩余秒数（向上取整）
*/
func LoginRateLimit(limiter *service.LoginLimiter, purpose string, cfg service.LimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.Check(LimiterKey(purpose, c), cfg)
		if !result.Allowed {
			metrics.LoginLimiterDenied.WithLabelValues(purpose).Inc()
			retryAfter := int(math.Ceil(result.ResetIn.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.GinTooManyRequests(c, "too many attempts, try again in "+strconv.Itoa(retryAfter)+" seconds")
			return
		}
		c.Next()
	}
}
