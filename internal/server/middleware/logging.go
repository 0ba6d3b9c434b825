package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThreshold 慢请求阈值
const slowRequestThreshold = 2 * time.Second

// Logging 返回一个记录请求日志的中间件
// HTTP 请求记录方法、路径、状态码、耗时；gRPC 请求记录 Operation
//
// 日志输出示例:
//
//	🟢 GET /v1/snapshot - 200 (3ms)
//	🔴 GET /v1/snapshot/0123456789ab - 404 (1ms)
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
			)

			// 提取请求信息
			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Kind().String()
				path = tr.Operation()

				// 提取 HTTP 特定信息
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
				}
			}

			// 执行实际的处理逻辑
			reply, err := handler(ctx, req)

			duration := time.Since(startTime)
			status := extractHTTPStatus(err)

			logger.Request(method, pkglog.SanitizeURL(path), status, duration.Milliseconds(),
				"ip", ip,
				"user_agent", userAgent,
			)
			if duration > slowRequestThreshold {
				logger.Warnw("msg", "Slow request detected",
					"method", method,
					"path", path,
					"duration_ms", duration.Milliseconds(),
				)
			}

			return reply, err
		}
	}
}

// extractClientIP 从请求中提取客户端真实 IP
// 优先级: X-Real-IP > X-Forwarded-For > RemoteAddr
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	// 取 X-Forwarded-For 的第一个 IP
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus 从 Kratos 错误中提取 HTTP 状态码
// 非 Kratos 错误按 500 处理
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	return int(errors.FromError(err).Code)
}
