// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Pillar names accepted by Source.Pillar.
var validPillars = map[string]bool{
	"macro":     true,
	"peers":     true,
	"suppliers": true,
	"cyber":     true,
	"market":    true,
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with INTELHARVEST_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Optional environment variables:
//   - MYSQL_DSN or INTELHARVEST_DATA_DATABASE_SOURCE: snapshot history database
//   - INTELHARVEST_DATA_REDIS_ADDR: shared Redis (rate windows, breaker state, latest snapshot)
//   - INTELHARVEST_SERVER_HTTP_ADMIN_TOKEN: token required by POST /v1/harvest
//   - FETCH_TIMEOUT / MAX_RETRIES / STALE_THRESHOLD: harvest tuning
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("INTELHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names kept for compatibility with the scheduled job definition
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "INTELHARVEST_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "INTELHARVEST_DATA_REDIS_ADDR")
	_ = v.BindEnv("harvest.fetch_timeout", "FETCH_TIMEOUT", "INTELHARVEST_HARVEST_FETCH_TIMEOUT")
	_ = v.BindEnv("harvest.max_retries", "MAX_RETRIES", "INTELHARVEST_HARVEST_MAX_RETRIES")
	_ = v.BindEnv("harvest.stale_threshold", "STALE_THRESHOLD", "INTELHARVEST_HARVEST_STALE_THRESHOLD")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	harvest, err := loadHarvest(v)
	if err != nil {
		return nil, err
	}

	bc := &Bootstrap{
		Server: &Server{
			HTTP: &ServerHTTP{
				Network:    v.GetString("server.http.network"),
				Addr:       v.GetString("server.http.addr"),
				Timeout:    durationpb.New(v.GetDuration("server.http.timeout")),
				AdminToken: v.GetString("server.http.admin_token"),
			},
			GRPC: &ServerGRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &DataDatabase{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &DataRedis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Harvest: harvest,
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

type rawBreaker struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int32         `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

type rawGroup struct {
	CallsPerMinute int32       `mapstructure:"calls_per_minute"`
	SharedWindow   bool        `mapstructure:"shared_window"`
	Breaker        *rawBreaker `mapstructure:"breaker"`
}

func loadHarvest(v *viper.Viper) (*Harvest, error) {
	var groups map[string]rawGroup
	if err := v.UnmarshalKey("harvest.groups", &groups); err != nil {
		return nil, fmt.Errorf("failed to decode harvest.groups: %w", err)
	}
	var sources []*Source
	if err := v.UnmarshalKey("harvest.sources", &sources); err != nil {
		return nil, fmt.Errorf("failed to decode harvest.sources: %w", err)
	}

	h := &Harvest{
		Schedule:        v.GetString("harvest.schedule"),
		RunOnStart:      v.GetBool("harvest.run_on_start"),
		RunTimeout:      durationpb.New(v.GetDuration("harvest.run_timeout")),
		UserAgent:       v.GetString("harvest.user_agent"),
		ProxyURL:        v.GetString("harvest.proxy_url"),
		FetchTimeout:    durationpb.New(secondsOrDuration(v, "harvest.fetch_timeout")),
		MaxRetries:      v.GetInt32("harvest.max_retries"),
		BackoffBase:     durationpb.New(v.GetDuration("harvest.backoff_base")),
		BackoffCap:      durationpb.New(v.GetDuration("harvest.backoff_cap")),
		SnapshotPath:    v.GetString("harvest.snapshot_path"),
		StaleThreshold:  durationpb.New(hoursOrDuration(v, "harvest.stale_threshold")),
		EntityFile:      v.GetString("harvest.entity_file"),
		CriticalSources: v.GetStringSlice("harvest.critical_sources"),
		Groups:          make(map[string]*Group, len(groups)),
		Sources:         sources,
	}

	for name, g := range groups {
		group := &Group{
			CallsPerMinute: g.CallsPerMinute,
			SharedWindow:   g.SharedWindow,
			Breaker:        &Breaker{},
		}
		if g.Breaker != nil {
			group.Breaker = &Breaker{
				Enabled:          g.Breaker.Enabled,
				FailureThreshold: g.Breaker.FailureThreshold,
				ResetTimeout:     durationpb.New(g.Breaker.ResetTimeout),
			}
		}
		h.Groups[name] = group
	}

	return h, nil
}

// secondsOrDuration accepts both "15" (seconds, as the cron job passes it)
// and "15s".
func secondsOrDuration(v *viper.Viper, key string) time.Duration {
	if n := v.GetInt(key); n > 0 && !strings.ContainsAny(v.GetString(key), "smh") {
		return time.Duration(n) * time.Second
	}
	return v.GetDuration(key)
}

// hoursOrDuration accepts both "24" (hours) and "24h".
func hoursOrDuration(v *viper.Viper, key string) time.Duration {
	if n := v.GetInt(key); n > 0 && !strings.ContainsAny(v.GetString(key), "smh") {
		return time.Duration(n) * time.Hour
	}
	return v.GetDuration(key)
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	// Data defaults: history database is disabled until a DSN is provided
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Harvest defaults
	v.SetDefault("harvest.schedule", "0 0 */6 * * *")
	v.SetDefault("harvest.run_on_start", false)
	v.SetDefault("harvest.run_timeout", 30*time.Minute)
	v.SetDefault("harvest.user_agent", "IntelHarvest/1.0")
	v.SetDefault("harvest.fetch_timeout", "15s")
	v.SetDefault("harvest.max_retries", 3)
	v.SetDefault("harvest.backoff_base", time.Second)
	v.SetDefault("harvest.backoff_cap", 30*time.Second)
	v.SetDefault("harvest.snapshot_path", "data/intel_snapshot.json")
	v.SetDefault("harvest.stale_threshold", "24h")
	v.SetDefault("harvest.entity_file", "configs/entities.yaml")
	v.SetDefault("harvest.critical_sources", []string{"cisa_kev", "sec_edgar", "ecb_fx"})
	v.SetDefault("harvest.groups", map[string]interface{}{
		"gov": map[string]interface{}{
			"calls_per_minute": 20,
		},
		"market": map[string]interface{}{
			"calls_per_minute": 20,
			"breaker": map[string]interface{}{
				"enabled":           true,
				"failure_threshold": 5,
				"reset_timeout":     "120s",
			},
		},
	})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all invalid fields.
func Validate(bc *Bootstrap) error {
	var invalid []string

	h := bc.Harvest
	if h == nil {
		return fmt.Errorf("missing required configuration fields: harvest")
	}

	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(h.Schedule); err != nil {
		invalid = append(invalid, fmt.Sprintf("harvest.schedule (%v)", err))
	}
	if h.MaxRetries < 1 {
		invalid = append(invalid, "harvest.max_retries (must be >= 1)")
	}
	if h.FetchTimeout.AsDuration() <= 0 {
		invalid = append(invalid, "harvest.fetch_timeout (must be > 0)")
	}
	if h.BackoffBase.AsDuration() <= 0 {
		invalid = append(invalid, "harvest.backoff_base (must be > 0)")
	}
	if h.BackoffCap.AsDuration() < h.BackoffBase.AsDuration() {
		invalid = append(invalid, "harvest.backoff_cap (must be >= backoff_base)")
	}
	if h.SnapshotPath == "" {
		invalid = append(invalid, "harvest.snapshot_path")
	}

	names := make([]string, 0, len(h.Groups))
	for name := range h.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := h.Groups[name]
		if g.CallsPerMinute < 1 {
			invalid = append(invalid, fmt.Sprintf("harvest.groups.%s.calls_per_minute (must be >= 1)", name))
		}
		if g.Breaker != nil && g.Breaker.Enabled && g.Breaker.FailureThreshold < 1 {
			invalid = append(invalid, fmt.Sprintf("harvest.groups.%s.breaker.failure_threshold (must be >= 1)", name))
		}
	}

	seen := make(map[string]bool, len(h.Sources))
	for i, s := range h.Sources {
		if s == nil || s.ID == "" {
			invalid = append(invalid, fmt.Sprintf("harvest.sources[%d].id", i))
			continue
		}
		if seen[s.ID] {
			invalid = append(invalid, fmt.Sprintf("harvest.sources[%d].id (duplicate %q)", i, s.ID))
		}
		seen[s.ID] = true
		if _, ok := h.Groups[s.Group]; !ok {
			invalid = append(invalid, fmt.Sprintf("harvest.sources[%d].group (unknown %q)", i, s.Group))
		}
		if !validPillars[s.Pillar] {
			invalid = append(invalid, fmt.Sprintf("harvest.sources[%d].pillar (unknown %q)", i, s.Pillar))
		}
		if s.URL == "" {
			invalid = append(invalid, fmt.Sprintf("harvest.sources[%d].url", i))
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalid, ", "))
	}

	return nil
}
