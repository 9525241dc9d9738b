package catalog

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/dialect"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// DatastoreCondition filters datastore rows on one column.
type DatastoreCondition struct {
	Property string `json:"property"`
	Value    any    `json:"value"`
	Operator string `json:"operator,omitempty"`
}

// DatastoreSort orders datastore rows on one column.
type DatastoreSort struct {
	Property string `json:"property"`
	Order    string `json:"order,omitempty"`
}

// DatastoreQueryParams shapes a tabular query against one distribution's
// datastore.
type DatastoreQueryParams struct {
	Limit      int                  `json:"limit,omitempty"`
	Offset     int                  `json:"offset,omitempty"`
	Properties []string             `json:"properties,omitempty"`
	Conditions []DatastoreCondition `json:"conditions,omitempty"`
	Sorts      []DatastoreSort      `json:"sorts,omitempty"`
}

// DatastoreQueryResult is a page of datastore rows plus the column schema the
// service reported for them.
type DatastoreQueryResult struct {
	Results []map[string]any `json:"results"`
	Count   int              `json:"count"`
	Schema  map[string]any   `json:"schema,omitempty"`
}

// QueryDatastore runs a tabular query against a distribution's datastore.
// Equal queries against the same distribution share one cache entry; two
// parameter sets that differ only in member order are the same query.
func (c *Client) QueryDatastore(ctx context.Context, distributionID string, params DatastoreQueryParams) (*DatastoreQueryResult, error) {
	if strings.TrimSpace(distributionID) == "" {
		return nil, fieldError("distributionID", "must not be empty")
	}
	key, err := query.Key{"datastore", "query", distributionID}.WithParams(params)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid query parameters", err)
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid query parameters", err)
	}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(datastoreBase, "query", distributionID),
		Body:   body,
	}, decodeValue[DatastoreQueryResult])
	if err != nil {
		return nil, err
	}
	return v.(*DatastoreQueryResult), nil
}

// QueryDatastoreSQL runs a read-only SQL query against the datastore. The
// query text is guarded before any network call: only a single SELECT
// statement is accepted, anything else rejects with ErrSQLRejected.
func (c *Client) QueryDatastoreSQL(ctx context.Context, sqlText string) ([]map[string]any, error) {
	sqlText = strings.TrimSpace(sqlText)
	if err := dialect.GuardSQL(sqlText); err != nil {
		return nil, err
	}
	key := query.Key{"datastore", "sql", sqlText}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(datastoreBase, "sql"),
		QueryParams: map[string]string{"query": sqlText},
	}, decodeValue[[]map[string]any])
	if err != nil {
		return nil, err
	}
	return *v.(*[]map[string]any), nil
}

// DownloadDatastore streams a distribution's datastore in the given format
// (csv or json). The stream bypasses the cache; the caller owns the reader.
// The reported content type is returned alongside it.
func (c *Client) DownloadDatastore(ctx context.Context, distributionID, format string) (io.ReadCloser, string, error) {
	if strings.TrimSpace(distributionID) == "" {
		return nil, "", fieldError("distributionID", "must not be empty")
	}
	if format == "" {
		format = "csv"
	}
	rc, contentType, err := c.http.StreamRequest(ctx, httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(datastoreBase, "query", distributionID, "download"),
		QueryParams: map[string]string{"format": format},
	})
	if err != nil {
		return nil, "", normalizeError(err)
	}
	return rc, contentType, nil
}

// TriggerDatastoreImport asks the service to (re)import a distribution's file
// into the datastore. The import runs asynchronously; observe it with
// SubscribeDatastoreImport or GetDatastoreImport.
func (c *Client) TriggerDatastoreImport(ctx context.Context, distributionID string) (*DatastoreImport, error) {
	if strings.TrimSpace(distributionID) == "" {
		return nil, fieldError("distributionID", "must not be empty")
	}
	body, err := json.Marshal(map[string]string{"resource_id": distributionID})
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid import request", err)
	}
	resp, err := c.mutate(ctx, MutationTriggerImport, ImportVars{DistributionID: distributionID}, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(datastoreBase, "imports"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	imp := &DatastoreImport{Identifier: distributionID, Status: ImportQueued}
	if len(resp) > 0 {
		// best effort: some deployments echo the import record back
		_ = json.Unmarshal(resp, imp)
	}
	return imp, nil
}

// GetDatastoreImports lists the import status of every distribution the
// service knows about, keyed by distribution identifier. Import status is
// job state: it is never served from cache without a refetch.
func (c *Client) GetDatastoreImports(ctx context.Context) (map[string]DatastoreImport, error) {
	key := query.Key{"datastore", "imports"}
	v, err := c.getJSON(ctx, key, jobStale, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(datastoreBase, "imports"),
	}, decodeValue[map[string]DatastoreImport])
	if err != nil {
		return nil, err
	}
	return *v.(*map[string]DatastoreImport), nil
}

// GetDatastoreImport fetches the import status of one distribution.
func (c *Client) GetDatastoreImport(ctx context.Context, distributionID string) (*DatastoreImport, error) {
	if strings.TrimSpace(distributionID) == "" {
		return nil, fieldError("distributionID", "must not be empty")
	}
	key := query.Key{"datastore", "imports", distributionID}
	v, err := c.getJSON(ctx, key, jobStale, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(datastoreBase, "imports", distributionID),
	}, decodeValue[DatastoreImport])
	if err != nil {
		return nil, err
	}
	return v.(*DatastoreImport), nil
}

// GetDatastoreStatistics fetches row and column statistics for a dataset's
// materialized datastore tables.
func (c *Client) GetDatastoreStatistics(ctx context.Context, datasetID string) (*DatastoreStatistics, error) {
	if strings.TrimSpace(datasetID) == "" {
		return nil, fieldError("datasetID", "must not be empty")
	}
	key := query.Key{"datastore", "statistics", datasetID}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(datastoreBase, "statistics", datasetID),
	}, decodeValue[DatastoreStatistics])
	if err != nil {
		return nil, err
	}
	return v.(*DatastoreStatistics), nil
}

// DeleteDatastore drops a distribution's imported datastore table.
func (c *Client) DeleteDatastore(ctx context.Context, distributionID string) error {
	if strings.TrimSpace(distributionID) == "" {
		return fieldError("distributionID", "must not be empty")
	}
	_, err := c.mutate(ctx, MutationDeleteDatastore, ImportVars{DistributionID: distributionID}, httpclient.RequestOptions{
		Method: http.MethodDelete,
		Path:   path.Join(datastoreBase, "imports", distributionID),
	})
	return err
}

// DefaultImportPollInterval is how often an observed import job is refreshed
// while it has not reached a terminal status.
const DefaultImportPollInterval = 2 * time.Second

// SubscribeDatastoreImport attaches a polling observer to a distribution's
// import job. One timer serves all observers of the same job. Polling
// continues through transport errors (the job's own status is the sole
// authority for stopping) and stops at a confirmed terminal status, at which
// point the affected dataset and datastore entries are marked stale exactly
// once.
func (c *Client) SubscribeDatastoreImport(distributionID string, interval time.Duration) *query.Subscription {
	enabled := strings.TrimSpace(distributionID) != ""
	if interval <= 0 {
		interval = DefaultImportPollInterval
	}
	key := query.Key{"datastore", "imports", distributionID}
	fetch := c.fetchFunc(httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(datastoreBase, "imports", distributionID),
	}, decodeValue[DatastoreImport])

	var once sync.Once
	pollFn := func(value any, err error) time.Duration {
		imp, ok := value.(*DatastoreImport)
		if !ok || !imp.Status.Terminal() {
			return interval
		}
		if imp.Status == ImportDone {
			// invalidation must not run under the cache lock
			once.Do(func() {
				go c.cache.Invalidate(invalidationsFor(MutationImportComplete, ImportVars{DistributionID: distributionID})...)
			})
		}
		return 0
	}
	return c.cache.Subscribe(key, fetch, query.SubscribeOptions{
		Enabled:      enabled,
		StaleTime:    jobStale,
		PollInterval: pollFn,
	})
}

// DecodeRows decodes loosely-typed datastore rows into a typed slice. The
// datastore reports every cell as a string, so decoding is weakly typed:
// numeric and boolean fields are converted from their string form.
func DecodeRows[T any](rows []map[string]any) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &v,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, ErrValidation.MsgErr("failed to build row decoder", err)
		}
		if err := dec.Decode(row); err != nil {
			return nil, ErrValidation.MsgErr("failed to decode row", err).SetStatusCode(http.StatusUnprocessableEntity)
		}
		out = append(out, v)
	}
	return out, nil
}
