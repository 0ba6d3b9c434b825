package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestNewBootstrap_Defaults(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :8080
data:
  redis:
    addr: 127.0.0.1:6379
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Verify server defaults
	assert.Equal(t, ":8080", bc.Server.HTTP.Addr)
	assert.Equal(t, "tcp", bc.Server.HTTP.Network)
	assert.Equal(t, 30*time.Second, bc.Server.HTTP.Timeout.AsDuration())
	assert.Equal(t, ":9000", bc.Server.GRPC.Addr)

	// Verify data defaults
	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Empty(t, bc.Data.Database.Source)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())

	// Verify harvest defaults
	h := bc.Harvest
	assert.Equal(t, "0 0 */6 * * *", h.Schedule)
	assert.Equal(t, 15*time.Second, h.FetchTimeout.AsDuration())
	assert.Equal(t, int32(3), h.MaxRetries)
	assert.Equal(t, time.Second, h.BackoffBase.AsDuration())
	assert.Equal(t, 30*time.Second, h.BackoffCap.AsDuration())
	assert.Equal(t, "data/intel_snapshot.json", h.SnapshotPath)
	assert.Equal(t, 24*time.Hour, h.StaleThreshold.AsDuration())
	assert.Equal(t, []string{"cisa_kev", "sec_edgar", "ecb_fx"}, h.CriticalSources)

	require.Contains(t, h.Groups, "gov")
	require.Contains(t, h.Groups, "market")
	assert.Equal(t, int32(20), h.Groups["gov"].CallsPerMinute)
	assert.False(t, h.Groups["gov"].Breaker.Enabled)
	assert.True(t, h.Groups["market"].Breaker.Enabled)
	assert.Equal(t, int32(5), h.Groups["market"].Breaker.FailureThreshold)
	assert.Equal(t, 120*time.Second, h.Groups["market"].Breaker.ResetTimeout.AsDuration())

	// Verify log defaults
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedVal func(*Bootstrap) bool
		description string
	}{
		{
			name:    "override_http_addr",
			envVars: map[string]string{"INTELHARVEST_SERVER_HTTP_ADDR": ":9999"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Server.HTTP.Addr == ":9999"
			},
			description: "INTELHARVEST_SERVER_HTTP_ADDR should override default :8080",
		},
		{
			name:    "admin_token",
			envVars: map[string]string{"INTELHARVEST_SERVER_HTTP_ADMIN_TOKEN": "t0ken"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Server.HTTP.AdminToken == "t0ken"
			},
			description: "INTELHARVEST_SERVER_HTTP_ADMIN_TOKEN should guard the trigger route",
		},
		{
			name:    "mysql_dsn_short_name",
			envVars: map[string]string{"MYSQL_DSN": "user:pass@tcp(localhost:3306)/intel"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Data.Database.Source == "user:pass@tcp(localhost:3306)/intel"
			},
			description: "MYSQL_DSN should set the history database",
		},
		{
			name:    "fetch_timeout_in_seconds",
			envVars: map[string]string{"FETCH_TIMEOUT": "20"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Harvest.FetchTimeout.AsDuration() == 20*time.Second
			},
			description: "FETCH_TIMEOUT is a number of seconds",
		},
		{
			name:    "max_retries",
			envVars: map[string]string{"MAX_RETRIES": "5"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Harvest.MaxRetries == 5
			},
			description: "MAX_RETRIES should override default 3",
		},
		{
			name:    "stale_threshold_in_hours",
			envVars: map[string]string{"STALE_THRESHOLD": "48"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Harvest.StaleThreshold.AsDuration() == 48*time.Hour
			},
			description: "STALE_THRESHOLD is a number of hours",
		},
		{
			name:    "override_log_level",
			envVars: map[string]string{"INTELHARVEST_LOG_LEVEL": "debug"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Log.Level == "debug"
			},
			description: "INTELHARVEST_LOG_LEVEL should override default info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, `server:
  http:
    addr: :8080
`)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			bc, err := NewBootstrap(configPath)
			require.NoError(t, err, tt.description)
			require.NotNil(t, bc)
			assert.True(t, tt.expectedVal(bc), tt.description)
		})
	}
}

func TestNewBootstrap_Sources(t *testing.T) {
	configPath := writeConfig(t, `harvest:
  groups:
    gov:
      calls_per_minute: 10
    market:
      calls_per_minute: 30
      shared_window: true
      breaker:
        enabled: true
        failure_threshold: 3
        reset_timeout: 60s
  sources:
    - id: cisa_kev
      group: gov
      pillar: suppliers
      url: https://example.com/kev.json
    - id: market_NVDA
      group: market
      pillar: peers
      entity: Nvidia
      url: https://example.com/quote/NVDA
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	h := bc.Harvest
	require.Len(t, h.Sources, 2)
	assert.Equal(t, "cisa_kev", h.Sources[0].ID)
	assert.Equal(t, "suppliers", h.Sources[0].Pillar)
	assert.Equal(t, "Nvidia", h.Sources[1].Entity)

	assert.Equal(t, int32(10), h.Groups["gov"].CallsPerMinute)
	assert.True(t, h.Groups["market"].SharedWindow)
	assert.Equal(t, int32(3), h.Groups["market"].Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, h.Groups["market"].Breaker.ResetTimeout.AsDuration())
}

func TestNewBootstrap_InvalidSources(t *testing.T) {
	tests := []struct {
		name          string
		sources       string
		expectedError string
	}{
		{
			name: "unknown_group",
			sources: `    - id: a
      group: nowhere
      pillar: macro
      url: https://example.com/a
`,
			expectedError: `harvest.sources[0].group (unknown "nowhere")`,
		},
		{
			name: "duplicate_id",
			sources: `    - id: a
      group: gov
      pillar: macro
      url: https://example.com/a
    - id: a
      group: gov
      pillar: macro
      url: https://example.com/b
`,
			expectedError: `harvest.sources[1].id (duplicate "a")`,
		},
		{
			name: "unknown_pillar",
			sources: `    - id: a
      group: gov
      pillar: weather
      url: https://example.com/a
`,
			expectedError: `harvest.sources[0].pillar (unknown "weather")`,
		},
		{
			name: "missing_url",
			sources: `    - id: a
      group: gov
      pillar: macro
`,
			expectedError: "harvest.sources[0].url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "harvest:\n  sources:\n"+tt.sources)

			bc, err := NewBootstrap(configPath)
			assert.Error(t, err)
			assert.Nil(t, bc, "Bootstrap should be nil when validation fails")
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewBootstrap_ConfigFileNotFound(t *testing.T) {
	bc, err := NewBootstrap("/non/existent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, bc)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_EmptyConfigPath(t *testing.T) {
	bc, err := NewBootstrap("")
	require.NoError(t, err)
	require.NotNil(t, bc)

	assert.Equal(t, ":8080", bc.Server.HTTP.Addr)
	assert.Equal(t, ":9000", bc.Server.GRPC.Addr)
	assert.Empty(t, bc.Harvest.Sources)
}

func TestNewBootstrap_PriorityOrder(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :7777
`)

	// Environment variable should override file value
	t.Setenv("INTELHARVEST_SERVER_HTTP_ADDR", ":8888")

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	assert.Equal(t, ":8888", bc.Server.HTTP.Addr, "Environment variable should override config file")
}

func validHarvest() *Harvest {
	return &Harvest{
		Schedule:     "0 0 */6 * * *",
		FetchTimeout: durationpb.New(15 * time.Second),
		MaxRetries:   3,
		BackoffBase:  durationpb.New(time.Second),
		BackoffCap:   durationpb.New(30 * time.Second),
		SnapshotPath: "data/intel_snapshot.json",
		Groups: map[string]*Group{
			"gov": {CallsPerMinute: 20, Breaker: &Breaker{}},
		},
	}
}

func TestValidate_AllFieldsPresent(t *testing.T) {
	err := Validate(&Bootstrap{Harvest: validHarvest()})
	assert.NoError(t, err)
}

func TestValidate_InvalidFieldsListed(t *testing.T) {
	h := validHarvest()
	h.Schedule = "every day"
	h.MaxRetries = 0
	h.BackoffCap = durationpb.New(100 * time.Millisecond)
	h.Groups["market"] = &Group{CallsPerMinute: 0, Breaker: &Breaker{Enabled: true}}

	err := Validate(&Bootstrap{Harvest: h})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harvest.schedule")
	assert.Contains(t, err.Error(), "harvest.max_retries")
	assert.Contains(t, err.Error(), "harvest.backoff_cap")
	assert.Contains(t, err.Error(), "harvest.groups.market.calls_per_minute")
	assert.Contains(t, err.Error(), "harvest.groups.market.breaker.failure_threshold")
}

func TestValidate_BackoffBase(t *testing.T) {
	for _, base := range []time.Duration{0, -time.Second} {
		h := validHarvest()
		h.BackoffBase = durationpb.New(base)

		err := Validate(&Bootstrap{Harvest: h})
		require.Error(t, err, base.String())
		assert.Contains(t, err.Error(), "harvest.backoff_base")
	}
}

func TestValidate_NilHarvest(t *testing.T) {
	err := Validate(&Bootstrap{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing required configuration fields")
}
