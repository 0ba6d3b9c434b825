package service

import (
	"context"
	nethttp "net/http"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// HTTP operations, used as the operation name by the logging middleware.
const (
	OperationHarvestGetSnapshot    = "/intelharvest.v1.Harvest/GetSnapshot"
	OperationHarvestHealth         = "/intelharvest.v1.Harvest/Health"
	OperationHarvestTriggerHarvest = "/intelharvest.v1.Harvest/TriggerHarvest"
)

// RegisterHarvestHTTPServer mounts the snapshot, health and trigger routes.
func RegisterHarvestHTTPServer(s *http.Server, srv *HarvestService) {
	r := s.Route("/")
	r.GET("/v1/snapshot", _Harvest_GetSnapshot_HTTP_Handler(srv))
	r.GET("/v1/snapshot/{version}", _Harvest_GetSnapshot_HTTP_Handler(srv))
	r.GET("/v1/health", _Harvest_Health_HTTP_Handler(srv))
	r.POST("/v1/harvest", _Harvest_TriggerHarvest_HTTP_Handler(srv))
}

func _Harvest_GetSnapshot_HTTP_Handler(srv *HarvestService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		in := GetSnapshotRequest{Version: ctx.Vars().Get("version")}
		http.SetOperation(ctx, OperationHarvestGetSnapshot)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetSnapshot(ctx, req.(*GetSnapshotRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

func _Harvest_Health_HTTP_Handler(srv *HarvestService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in HealthRequest
		http.SetOperation(ctx, OperationHarvestHealth)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Health(ctx, req.(*HealthRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

func _Harvest_TriggerHarvest_HTTP_Handler(srv *HarvestService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in TriggerHarvestRequest
		http.SetOperation(ctx, OperationHarvestTriggerHarvest)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.TriggerHarvest(ctx, req.(*TriggerHarvestRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusAccepted, out)
	}
}
