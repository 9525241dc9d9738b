package catalog

import (
	"context"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// PropertyValue is one value of a searchable dataset property (a theme or
// keyword), as a standalone metastore item.
type PropertyValue struct {
	Identifier string `json:"identifier"`
	Data       string `json:"data"`
}

// ListProperties lists the schema identifiers the metastore serves, including
// searchable dataset properties like theme and keyword.
func (c *Client) ListProperties(ctx context.Context) ([]string, error) {
	key := query.Key{"properties"}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   metastoreBase,
	}, decodeValue[map[string]any])
	if err != nil {
		return nil, err
	}
	m := *v.(*map[string]any)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListPropertyValues lists the distinct values of a searchable dataset
// property. Every consumer of the same property shares one cache entry, so
// simultaneous lookups collapse to a single request.
func (c *Client) ListPropertyValues(ctx context.Context, property string) ([]PropertyValue, error) {
	if strings.TrimSpace(property) == "" {
		return nil, fieldError("property", "must not be empty")
	}
	key := query.Key{"properties", "values", property}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, property, "items"),
	}, decodeValue[[]PropertyValue])
	if err != nil {
		return nil, err
	}
	return *v.(*[]PropertyValue), nil
}

// SubscribePropertyValues attaches a reactive observer to a property's value
// list. An empty property name disables the subscription.
func (c *Client) SubscribePropertyValues(property string, opts query.SubscribeOptions) *query.Subscription {
	if strings.TrimSpace(property) == "" {
		opts.Enabled = false
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = c.metadataStale()
	}
	key := query.Key{"properties", "values", property}
	return c.cache.Subscribe(key, c.fetchFunc(httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, property, "items"),
	}, decodeValue[[]PropertyValue]), opts)
}
