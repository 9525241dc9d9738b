package catalog

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/dialect"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// SearchParams is the native dataset search parameter shape. It is shared
// with the dialect translator so compatibility callers can round-trip it.
type SearchParams = dialect.SearchParams

// SearchResult is a page of dataset search results.
type SearchResult struct {
	Total   int       `json:"total"`
	Results []Dataset `json:"results"`
}

// SearchDatasets performs a full-text dataset search. Results are cached
// under the ["datasets","search",params] key with the metadata stale time.
func (c *Client) SearchDatasets(ctx context.Context, params SearchParams) (*SearchResult, error) {
	key, err := query.BuildKey("datasets", "search", params)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid search parameters", err)
	}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        searchBase,
		QueryParams: searchQueryParams(params),
	}, decodeValue[SearchResult])
	if err != nil {
		return nil, err
	}
	return v.(*SearchResult), nil
}

// GetDataset fetches a single dataset by identifier.
func (c *Client) GetDataset(ctx context.Context, identifier string) (*Dataset, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	key := query.Key{"datasets", "single", identifier}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, "dataset", "items", identifier),
	}, decodeValue[Dataset])
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

// CreateDataset creates a dataset and returns it with the server-assigned
// identifier. On success every ["datasets"]-prefixed cache key is marked
// stale.
func (c *Client) CreateDataset(ctx context.Context, ds Dataset) (*Dataset, error) {
	if strings.TrimSpace(ds.Title) == "" {
		return nil, fieldError("title", "must not be empty")
	}
	body, err := json.Marshal(ds)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid dataset", err)
	}
	resp, err := c.mutate(ctx, MutationCreateDataset, ds, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(metastoreBase, "dataset", "items"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if id := gjson.GetBytes(resp, "identifier").String(); id != "" {
		ds.Identifier = id
	}
	return &ds, nil
}

// UpdateDataset replaces a dataset wholesale.
func (c *Client) UpdateDataset(ctx context.Context, ds Dataset) (*Dataset, error) {
	if strings.TrimSpace(ds.Identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	body, err := json.Marshal(ds)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid dataset", err)
	}
	_, err = c.mutate(ctx, MutationUpdateDataset, ds, httpclient.RequestOptions{
		Method: http.MethodPut,
		Path:   path.Join(metastoreBase, "dataset", "items", ds.Identifier),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// PatchDataset applies a partial update to a dataset. patch carries only the
// fields to change.
func (c *Client) PatchDataset(ctx context.Context, identifier string, patch map[string]any) (*Dataset, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	if len(patch) == 0 {
		return nil, fieldError("patch", "must not be empty")
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid patch document", err)
	}
	vars := PatchDatasetVars{Identifier: identifier, Patch: patch}
	_, err = c.mutate(ctx, MutationPatchDataset, vars, httpclient.RequestOptions{
		Method: http.MethodPatch,
		Path:   path.Join(metastoreBase, "dataset", "items", identifier),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return c.GetDataset(ctx, identifier)
}

// DeleteDataset removes a dataset.
func (c *Client) DeleteDataset(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return fieldError("identifier", "must not be empty")
	}
	_, err := c.mutate(ctx, MutationDeleteDataset, DatasetVars{Identifier: identifier}, httpclient.RequestOptions{
		Method: http.MethodDelete,
		Path:   path.Join(metastoreBase, "dataset", "items", identifier),
	})
	return err
}

// SubscribeDataset attaches a reactive observer to a single dataset. An
// empty identifier disables the subscription: no call is issued and the
// binding reports idle, which keeps progressive fetching ergonomic.
func (c *Client) SubscribeDataset(identifier string, opts query.SubscribeOptions) *query.Subscription {
	if strings.TrimSpace(identifier) == "" {
		opts.Enabled = false
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = c.metadataStale()
	}
	key := query.Key{"datasets", "single", identifier}
	return c.cache.Subscribe(key, c.fetchFunc(httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(metastoreBase, "dataset", "items", identifier),
	}, decodeValue[Dataset]), opts)
}

// SubscribeDatasetSearch attaches a reactive observer to a search result
// page.
func (c *Client) SubscribeDatasetSearch(params SearchParams, opts query.SubscribeOptions) (*query.Subscription, error) {
	key, err := query.BuildKey("datasets", "search", params)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid search parameters", err)
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = c.metadataStale()
	}
	return c.cache.Subscribe(key, c.fetchFunc(httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        searchBase,
		QueryParams: searchQueryParams(params),
	}, decodeValue[SearchResult]), opts), nil
}

func searchQueryParams(params SearchParams) map[string]string {
	q := make(map[string]string)
	if params.FullText != "" {
		q["fulltext"] = params.FullText
	}
	if params.Page > 0 {
		q["page"] = strconv.Itoa(params.Page)
	}
	if params.PageSize > 0 {
		q["page-size"] = strconv.Itoa(params.PageSize)
	}
	if params.Sort != "" {
		q["sort"] = params.Sort
	}
	if params.SortOrder != "" {
		q["sort-order"] = params.SortOrder
	}
	return q
}
