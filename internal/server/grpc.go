package server

import (
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/server/middleware"
	"IntelHarvest/internal/service"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer new a gRPC server exposing the standard health service.
func NewGRPCServer(c *conf.Server, healthService *service.HealthService, logger log.Logger) *grpc.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []grpc.ServerOption{
		// 使用自定义健康检查，状态随采集结果变化
		grpc.CustomHealth(),
		grpc.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
		),
	}
	if c.GRPC != nil {
		if c.GRPC.Network != "" {
			opts = append(opts, grpc.Network(c.GRPC.Network))
		}
		if c.GRPC.Addr != "" {
			opts = append(opts, grpc.Address(c.GRPC.Addr))
		}
		if c.GRPC.Timeout != nil {
			opts = append(opts, grpc.Timeout(c.GRPC.Timeout.AsDuration()))
		}
	}
	srv := grpc.NewServer(opts...)

	healthpb.RegisterHealthServer(srv, healthService)

	return srv
}
