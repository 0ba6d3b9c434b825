package server

import (
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/server/middleware"
	"IntelHarvest/internal/service"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, harvestService *service.HarvestService, logger log.Logger) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)

	var adminToken string
	if c.HTTP != nil {
		adminToken = c.HTTP.AdminToken
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper), // 请求日志中间件：记录请求方法、路径、耗时
			// 仅手动触发接口需要管理 token
			selector.Server(middleware.AdminAuth(adminToken, logHelper)).
				Path(service.OperationHarvestTriggerHarvest).
				Build(),
		),
	}
	if c.HTTP != nil {
		if c.HTTP.Network != "" {
			opts = append(opts, http.Network(c.HTTP.Network))
		}
		if c.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout != nil {
			opts = append(opts, http.Timeout(c.HTTP.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	// Register HTTP services
	service.RegisterHarvestHTTPServer(srv, harvestService)

	return srv
}
