package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/model"
	"IntelHarvest/pkg/httpx"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultUserAgent = "IntelHarvest/1.0"
	// maxEnvelopeBytes bounds a single source response
	maxEnvelopeBytes = 16 << 20
)

// StatusError is returned for non-2xx source responses.
type StatusError struct {
	SourceID   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source %s returned HTTP %d: %s", e.SourceID, e.StatusCode, e.Body)
}

// HTTPSourceClient fetches normalized signal envelopes over HTTP. Per-call
// timeouts come from the caller's context.
type HTTPSourceClient struct {
	client    *http.Client
	userAgent string
	logger    *pkglog.LogHelper
}

// NewHTTPSourceClient creates a source client, routed through the
// configured proxy when one is set.
func NewHTTPSourceClient(c *conf.Harvest, logger log.Logger) (*HTTPSourceClient, error) {
	userAgent, proxyURL := defaultUserAgent, ""
	if c != nil {
		if c.UserAgent != "" {
			userAgent = c.UserAgent
		}
		proxyURL = c.ProxyURL
	}
	client, err := httpx.NewClient(proxyURL, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create source HTTP client: %w", err)
	}
	return &HTTPSourceClient{
		client:    client,
		userAgent: userAgent,
		logger:    pkglog.NewLogHelper(logger),
	}, nil
}

// FetchEnvelope GETs url and decodes the signal envelope.
func (c *HTTPSourceClient) FetchEnvelope(ctx context.Context, sourceID, url string) (*model.SignalEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", sourceID, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", sourceID, err)
	}
	defer resp.Body.Close()
	c.logger.Request(http.MethodGet, pkglog.SanitizeURL(url), resp.StatusCode, time.Since(start).Milliseconds(), "source", sourceID)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return nil, fmt.Errorf("read response of %s: %w", sourceID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{SourceID: sourceID, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	envelope := &model.SignalEnvelope{}
	if err := json.Unmarshal(body, envelope); err != nil {
		return nil, fmt.Errorf("decode envelope of %s: %w", sourceID, err)
	}
	if envelope.Source == "" {
		envelope.Source = sourceID
	}
	if envelope.FetchedAt.IsZero() {
		envelope.FetchedAt = time.Now().UTC()
	}
	return envelope, nil
}
