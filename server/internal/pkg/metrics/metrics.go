/*
Package metrics Prometheus 指标
所有指标注册到默认 Registry，由 /metrics 路由通过 promhttp 暴露
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ugcleaks"

var (
	/* StockCacheLookups 库存缓存查询，result = hit | miss */
	StockCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "cache_lookups_total",
		Help:      "Stock cache lookups by result.",
	}, []string{"result"})

	/* StockUpstreamRequests 上游请求结果，outcome = ok | not_limited | rate_limited | error */
	StockUpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "upstream_requests_total",
		Help:      "Outbound catalog requests by outcome.",
	}, []string{"outcome"})

	StockRateLimitTrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "rate_limit_trips_total",
		Help:      "Times the upstream answered 429 and the cooldown started.",
	})

	StockUpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of outbound catalog requests.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	/* LoginLimiterDenied 被限流拒绝的认证请求，purpose = signin | signup */
	LoginLimiterDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "limiter_denied_total",
		Help:      "Authentication attempts rejected by the login limiter.",
	}, []string{"purpose"})

	/* AuthFailures 认证/授权失败，reason = unauthenticated | forbidden */
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Rejected protected requests by reason.",
	}, []string{"reason"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
)
