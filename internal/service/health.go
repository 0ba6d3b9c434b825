package service

import (
	"IntelHarvest/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the gRPC health service name of the harvester.
const HealthServiceName = "intelharvest.v1.Harvest"

// HealthService is the standard gRPC health service. It turns NOT_SERVING
// after a run that raised an alert and back to SERVING after a clean run.
type HealthService struct {
	*health.Server
	logger *log.Helper
}

// NewHealthService creates the health service and subscribes it to
// harvest run completions.
func NewHealthService(uc *biz.HarvestUsecase, logger log.Logger) *HealthService {
	s := &HealthService{
		Server: health.NewServer(),
		logger: log.NewHelper(logger),
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	uc.OnRunCompleted(s.observe)
	return s
}

func (s *HealthService) observe(report *biz.RunReport) {
	status := healthpb.HealthCheckResponse_SERVING
	if report.Alert {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.logger.Debugw("msg", "health status updated", "run_id", report.RunID, "status", status.String())
	s.set(status)
}

func (s *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.SetServingStatus("", status)
	s.SetServingStatus(HealthServiceName, status)
}
