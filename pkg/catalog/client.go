// Package catalog is the single entry point for talking to a DKAN-style
// open-data catalog service. It owns the client configuration, issues every
// operation, normalizes errors, and funnels all reads through a shared query
// cache so that simultaneous consumers never duplicate network work and
// mutations invalidate exactly the affected cache-key subtrees.
package catalog

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/logtrace"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// API path roots for the catalog service.
const (
	metastoreBase = "api/1/metastore/schemas"
	datastoreBase = "api/1/datastore"
	harvestBase   = "api/1/harvest"
	searchBase    = "api/1/search"
	compatBase    = "api/3/action"
)

// Client is the catalog client facade. Construct one per catalog service and
// share it; consumers attach with Mount/Unmount and observe reads through
// Subscribe-style bindings while the client deduplicates and caches the
// underlying requests.
type Client struct {
	cfg    Config
	http   *httpclient.HTTPClient
	cache  *query.Store
	logger zerolog.Logger
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MetadataStaleTime <= 0 {
		cfg.MetadataStaleTime = defaultMetadataStaleTime
	}
	hc := httpclient.NewClientWithOptions(configurator{cfg: cfg}, httpclient.ClientOptions{
		DisableCertValidation: cfg.DisableCertValidation,
		Transport:             cfg.Transport,
		Retry:                 cfg.Retry,
		Timeout:               cfg.Timeout,
	})
	logger := logtrace.ComponentLogger("catalog")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		cache:  query.NewStore(),
		logger: logger,
	}, nil
}

// Mount attaches the client's cache to an active consumer scope. Mount is
// reference-counted; multiple simultaneous consumer trees can share one
// client safely.
func (c *Client) Mount() {
	c.cache.Mount()
}

// Unmount detaches one consumer scope. Shared resources (poll timers) are
// torn down only when the count reaches zero.
func (c *Client) Unmount() {
	c.cache.Unmount()
}

// InvalidateQueries marks every cached entry under the given key prefixes as
// stale. Observed entries refresh immediately; unobserved entries wait for
// their next observer.
func (c *Client) InvalidateQueries(prefixes ...query.Key) {
	c.cache.Invalidate(prefixes...)
}

// metadataStale is the stale time for slow-changing catalog metadata.
// Job-status reads use jobStale instead: their values change server-side
// while a job runs, so every observation refetches.
func (c *Client) metadataStale() time.Duration {
	return c.cfg.MetadataStaleTime
}

const jobStale = time.Duration(0)

// getJSON fetches a key through the cache, issuing the request on miss or
// staleness and decoding the body with decode.
func (c *Client) getJSON(ctx context.Context, key query.Key, staleTime time.Duration, opts httpclient.RequestOptions, decode func([]byte) (any, error)) (any, error) {
	return c.cache.Fetch(ctx, key, c.fetchFunc(opts, decode), staleTime)
}

// fetchFunc binds a request into a cacheable fetch closure.
func (c *Client) fetchFunc(opts httpclient.RequestOptions, decode func([]byte) (any, error)) query.FetchFunc {
	return func(ctx context.Context) (any, error) {
		body, _, err := c.http.DoRequest(ctx, opts)
		if err != nil {
			return nil, normalizeError(err)
		}
		return decode(body)
	}
}

// mutate performs a mutation request and, only after it succeeds, marks the
// affected cache-key prefixes stale. A failed mutation invalidates nothing.
func (c *Client) mutate(ctx context.Context, kind MutationKind, vars any, opts httpclient.RequestOptions) ([]byte, error) {
	body, _, err := c.http.DoRequest(ctx, opts)
	if err != nil {
		return nil, normalizeError(err)
	}
	prefixes := invalidationsFor(kind, vars)
	if len(prefixes) > 0 {
		c.cache.Invalidate(prefixes...)
	}
	c.logger.Debug().Str("mutation", string(kind)).Int("invalidated_prefixes", len(prefixes)).Msg("mutation committed")
	return body, nil
}

// decodeValue decodes a response body into a fresh *T.
func decodeValue[T any](body []byte) (any, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, ErrHTTP.MsgErr("failed to decode response", err)
	}
	return &v, nil
}
