package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the harvester.
type Bootstrap struct {
	Server  *Server
	Data    *Data
	Harvest *Harvest
	Log     *Log
}

// Server holds the listener configuration of the HTTP and gRPC servers.
type Server struct {
	HTTP *ServerHTTP
	GRPC *ServerGRPC
}

// ServerHTTP configures the snapshot/health HTTP API.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
	// AdminToken guards POST /v1/harvest. Empty disables the check.
	AdminToken string
}

// ServerGRPC configures the gRPC health endpoint.
type ServerGRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage configuration. Database and Redis are optional:
// an empty DSN or address disables the corresponding component.
type Data struct {
	Database *DataDatabase
	Redis    *DataRedis
}

// DataDatabase configures the snapshot history database.
type DataDatabase struct {
	Driver string
	Source string
}

// DataRedis configures the shared Redis instance.
type DataRedis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Harvest configures the harvest run.
type Harvest struct {
	// Schedule is a cron expression with a seconds field.
	Schedule   string
	RunOnStart bool
	RunTimeout *durationpb.Duration

	UserAgent string
	ProxyURL  string

	FetchTimeout *durationpb.Duration
	MaxRetries   int32
	BackoffBase  *durationpb.Duration
	BackoffCap   *durationpb.Duration

	SnapshotPath   string
	StaleThreshold *durationpb.Duration
	EntityFile     string

	CriticalSources []string

	Groups  map[string]*Group
	Sources []*Source
}

// Group configures one dependency group: every source of a group shares
// one rate limiter and, when enabled, one circuit breaker.
type Group struct {
	CallsPerMinute int32
	SharedWindow   bool
	Breaker        *Breaker
}

// Breaker configures a group's circuit breaker.
type Breaker struct {
	Enabled          bool
	FailureThreshold int32
	ResetTimeout     *durationpb.Duration
}

// Source describes one external source.
type Source struct {
	ID     string `mapstructure:"id"`
	Group  string `mapstructure:"group"`
	Pillar string `mapstructure:"pillar"`
	Entity string `mapstructure:"entity"`
	URL    string `mapstructure:"url"`
}
