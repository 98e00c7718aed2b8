package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/metrics"
	"github.com/me/omicsx/pkg/model"
)

// Source loads a Catalog for a region and service.
type Source interface {
	Load(ctx context.Context, region, service, overridePath string) (Catalog, error)
}

// Loader fetches offer documents over HTTP, or reads them from a local file.
type Loader struct {
	BaseURL    string // e.g. https://pricing.us-east-1.amazonaws.com
	Version    string // e.g. v1.0
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewLoader creates a Loader with an HTTP client bounded by timeout.
func NewLoader(baseURL, version string, timeout time.Duration, logger *slog.Logger) *Loader {
	return &Loader{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Version:    version,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logging.Component(logger, "pricing"),
	}
}

// URL returns the offer index location for service and region.
func (l *Loader) URL(region, service string) string {
	return fmt.Sprintf("%s/offers/%s/aws/%s/current/%s/index.json", l.BaseURL, l.Version, service, region)
}

// Load returns the catalog from overridePath when set, else from the endpoint.
// All failures are PRICING_UNAVAILABLE.
func (l *Loader) Load(ctx context.Context, region, service, overridePath string) (Catalog, error) {
	logger := logging.OrDiscard(l.Logger)
	if overridePath != "" {
		metrics.IncPricingLoad("file")
		return l.loadFile(overridePath, logger)
	}
	metrics.IncPricingLoad("endpoint")

	url := l.URL(region, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.NewPricingUnavailable(url, err)
	}

	logger.Debug("fetching pricing catalog", "url", url)
	resp, err := l.client().Do(req)
	if err != nil {
		return nil, model.NewPricingUnavailable(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, model.NewPricingUnavailable(url, fmt.Errorf("status %d", resp.StatusCode))
	}

	catalog, err := Parse(resp.Body, logger)
	if err != nil {
		return nil, model.NewPricingUnavailable(url, err)
	}
	logger.Debug("pricing catalog loaded", "url", url, "entries", len(catalog))
	return catalog, nil
}

func (l *Loader) loadFile(path string, logger *slog.Logger) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewPricingUnavailable(path, err)
	}
	defer f.Close()

	catalog, err := Parse(f, logger)
	if err != nil {
		return nil, model.NewPricingUnavailable(path, err)
	}
	logger.Debug("pricing catalog loaded", "file", path, "entries", len(catalog))
	return catalog, nil
}

func (l *Loader) client() *http.Client {
	if l.HTTPClient != nil {
		return l.HTTPClient
	}
	return http.DefaultClient
}

// CachingSource memoizes catalogs per (service, region, override) for the
// lifetime of the value. Build one per logical invocation.
type CachingSource struct {
	Source Source

	mu      sync.Mutex
	entries map[string]Catalog
}

// NewCachingSource wraps src.
func NewCachingSource(src Source) *CachingSource {
	return &CachingSource{Source: src, entries: make(map[string]Catalog)}
}

// Load returns a cached catalog or loads and caches it. Failures are not cached.
func (c *CachingSource) Load(ctx context.Context, region, service, overridePath string) (Catalog, error) {
	key := service + "|" + region + "|" + overridePath

	c.mu.Lock()
	defer c.mu.Unlock()
	if cat, ok := c.entries[key]; ok {
		return cat, nil
	}
	cat, err := c.Source.Load(ctx, region, service, overridePath)
	if err != nil {
		return nil, err
	}
	if c.entries == nil {
		c.entries = make(map[string]Catalog)
	}
	c.entries[key] = cat
	return cat, nil
}
