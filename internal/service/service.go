// Package service exposes the harvest to HTTP and gRPC clients.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewHarvestService, NewHealthService)
