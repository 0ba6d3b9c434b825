//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"IntelHarvest/internal/biz"
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/data"
	"IntelHarvest/internal/server"
	"IntelHarvest/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Harvest, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}

// wireHarvest init the harvest usecase alone, for -once.
func wireHarvest(*conf.Data, *conf.Harvest, log.Logger) (*biz.HarvestUsecase, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
	))
}
