// Package server wires the HTTP, gRPC and cron transports of the harvester.
package server

import (
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer, NewGRPCServer, NewCronServer)
