package middleware

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer mounts a trigger route and a failing route behind mws.
func newTestServer(t *testing.T, mws ...middleware.Middleware) *httptest.Server {
	t.Helper()
	srv := http.NewServer(http.Middleware(mws...))
	r := srv.Route("/")
	r.POST("/v1/harvest", func(ctx http.Context) error {
		h := ctx.Middleware(func(context.Context, interface{}) (interface{}, error) {
			return map[string]bool{"accepted": true}, nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusAccepted, out)
	})
	r.GET("/v1/snapshot/{version}", func(ctx http.Context) error {
		h := ctx.Middleware(func(context.Context, interface{}) (interface{}, error) {
			return nil, errors.NotFound("SNAPSHOT_NOT_FOUND", "snapshot not found")
		})
		_, err := h(ctx, nil)
		return err
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func postTrigger(t *testing.T, url string, headers map[string]string) int {
	t.Helper()
	req, err := nethttp.NewRequest(nethttp.MethodPost, url+"/v1/harvest", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestAdminAuth(t *testing.T) {
	const token = "s3cr3t-admin-token"
	ts := newTestServer(t, AdminAuth(token, pkglog.NewLogHelper(log.DefaultLogger)))

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{name: "no credentials", want: nethttp.StatusUnauthorized},
		{name: "bearer token", headers: map[string]string{"Authorization": "Bearer " + token}, want: nethttp.StatusAccepted},
		{name: "wrong bearer token", headers: map[string]string{"Authorization": "Bearer nope"}, want: nethttp.StatusUnauthorized},
		{name: "api key header", headers: map[string]string{"X-API-Key": token}, want: nethttp.StatusAccepted},
		{name: "wrong api key", headers: map[string]string{"X-API-Key": token + "x"}, want: nethttp.StatusUnauthorized},
		{name: "empty bearer falls back to api key", headers: map[string]string{"Authorization": "Bearer ", "X-API-Key": token}, want: nethttp.StatusAccepted},
		{name: "bare bearer scheme falls back to api key", headers: map[string]string{"Authorization": "Bearer", "X-API-Key": token}, want: nethttp.StatusAccepted},
		{name: "empty bearer without api key", headers: map[string]string{"Authorization": "Bearer "}, want: nethttp.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postTrigger(t, ts.URL, tt.headers))
		})
	}
}

func TestAdminAuth_EmptyTokenDisablesCheck(t *testing.T) {
	ts := newTestServer(t, AdminAuth("", pkglog.NewLogHelper(log.DefaultLogger)))
	assert.Equal(t, nethttp.StatusAccepted, postTrigger(t, ts.URL, nil))
}

func TestAdminAuth_WithoutTransport(t *testing.T) {
	h := AdminAuth("token", pkglog.NewLogHelper(log.DefaultLogger))(func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	_, err := h(context.Background(), nil)
	assert.True(t, errors.IsUnauthorized(err))
}

func TestAuthorizationToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Bearer", ""},
		{"Bearer ", ""},
		{"  Bearer   ", ""},
		{"Bearer abc123", "abc123"},
		{"Bearer   abc123  ", "abc123"},
		{"abc123", "abc123"},
		{"Bearerabc123", "Bearerabc123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, authorizationToken(tt.in), "%q", tt.in)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-1234567890abcdef", "sk-12345***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskAPIKey(tt.in), tt.in)
	}
}
