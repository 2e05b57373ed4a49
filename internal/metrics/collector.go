// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 增强流程指标
	enhanceRequestsTotal *prometheus.CounterVec
	enhanceDuration      *prometheus.HistogramVec
	fetchBytes           prometheus.Histogram

	// 生成后端指标
	generationDuration *prometheus.HistogramVec
	generationResults  *prometheus.HistogramVec

	// 工具调用指标
	toolCallsTotal *prometheus.CounterVec

	// 事件总线指标
	eventsPublished *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 增强流程指标
	c.enhanceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhance_requests_total",
			Help:      "Total number of image enhancement invocations",
		},
		[]string{"profile", "outcome"}, // outcome: success, rejected, failed
	)

	c.enhanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enhance_duration_seconds",
			Help:      "Image enhancement duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"profile"},
	)

	c.fetchBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_bytes",
			Help:      "Size of fetched source images in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 9),
		},
	)

	// 生成后端指标
	c.generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Host generation call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend", "status"},
	)

	c.generationResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_results",
			Help:      "Number of images returned per generation call",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		},
		[]string{"backend"},
	)

	// 工具调用指标
	c.toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	// 事件总线指标
	c.eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of progress events published",
		},
		[]string{"sink", "type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🖼️ 增强流程指标记录
// =============================================================================

// RecordEnhance 记录一次增强调用
func (c *Collector) RecordEnhance(profile, outcome string, duration time.Duration) {
	c.enhanceRequestsTotal.WithLabelValues(profile, outcome).Inc()
	c.enhanceDuration.WithLabelValues(profile).Observe(duration.Seconds())
}

// RecordFetch 记录源图大小
func (c *Collector) RecordFetch(bytes int) {
	c.fetchBytes.Observe(float64(bytes))
}

// RecordGeneration 记录一次生成调用
func (c *Collector) RecordGeneration(backend, status string, duration time.Duration, results int) {
	c.generationDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
	if status == "success" {
		c.generationResults.WithLabelValues(backend).Observe(float64(results))
	}
}

// =============================================================================
// 🔧 工具与事件指标记录
// =============================================================================

// RecordToolCall 记录工具调用
func (c *Collector) RecordToolCall(tool, status string) {
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordEventPublished 记录事件投递
func (c *Collector) RecordEventPublished(sink, eventType string) {
	c.eventsPublished.WithLabelValues(sink, eventType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
