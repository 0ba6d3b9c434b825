// Package middleware provides server middleware for admin authentication and request logging.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// ErrUnauthorized is returned when an admin operation is called without a
// valid token.
var ErrUnauthorized = errors.Unauthorized("UNAUTHORIZED", "missing or invalid admin token")

// AdminAuth 返回管理接口认证中间件
// 支持 "Authorization: Bearer {token}" 或 "X-API-Key: {token}"
// token 为空时不做校验（本地开发）
//
// 日志输出示例:
//
//	⚠️ Rejected admin request | {"api_key_masked":"abcdefgh***","path":"/v1/harvest"}
func AdminAuth(token string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if token == "" {
				return handler(ctx, req)
			}

			var (
				apiKey string
				path   string
			)
			if tr, ok := transport.FromServerContext(ctx); ok {
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()
					path = r.URL.Path
					apiKey = authorizationToken(r.Header.Get("Authorization"))
					// Authorization 为空时尝试 X-API-Key
					if apiKey == "" {
						apiKey = r.Header.Get("X-API-Key")
					}
				}
			}

			if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(token)) != 1 {
				logger.Warnw("msg", "Rejected admin request",
					"api_key_masked", maskAPIKey(apiKey),
					"path", path,
				)
				return nil, ErrUnauthorized
			}
			return handler(ctx, req)
		}
	}
}

// authorizationToken 提取 Authorization 中的 token
// "Bearer {token}" 取 token；只有 "Bearer" 时返回空，交给 X-API-Key
func authorizationToken(header string) string {
	header = strings.TrimSpace(header)
	rest, ok := strings.CutPrefix(header, "Bearer")
	if !ok {
		return header
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		// "Bearerxyz" 不是 Bearer 方案
		return header
	}
	return strings.TrimSpace(rest)
}

// maskAPIKey 脱敏 API Key，仅显示前 8 位
// 示例: "sk-1234567890abcdef" -> "sk-12345***"
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "***"
}
