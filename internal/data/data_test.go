package data

import (
	"testing"

	"IntelHarvest/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewData_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	data, cleanup, err := NewData(&conf.Data{}, log.DefaultLogger, rdb, cache, nil)
	require.NoError(t, err)
	require.NotNil(t, data)
	defer cleanup()

	assert.Same(t, rdb, data.GetRedisClient())
	assert.Equal(t, cache, data.GetCache())
	assert.Nil(t, data.GetDB())
}

func TestNewData_WithoutBackends(t *testing.T) {
	// Neither Redis nor MySQL is required (graceful degradation)
	data, cleanup, err := NewData(&conf.Data{}, log.DefaultLogger, nil, NewCacheClient(nil), nil)
	require.NoError(t, err)
	require.NotNil(t, data)
	defer cleanup()

	assert.Nil(t, data.GetRedisClient())
	assert.Nil(t, data.GetDB())
	assert.NotNil(t, data.GetCache())
}

func TestNewMySQLClient_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		c    *conf.Data
	}{
		{"nil config", nil},
		{"nil database section", &conf.Data{}},
		{"empty dsn", &conf.Data{Database: &conf.DataDatabase{Driver: "mysql"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, cleanup, err := NewMySQLClient(tt.c, log.DefaultLogger)
			require.NoError(t, err)
			defer cleanup()
			assert.Nil(t, db)
		})
	}
}
