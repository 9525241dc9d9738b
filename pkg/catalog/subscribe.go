package catalog

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/dialect"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// DatastoreQueryVars shapes a tabular datastore read for the generic binding
// adapter.
type DatastoreQueryVars struct {
	DistributionID string               `mapstructure:"distribution_id"`
	Query          DatastoreQueryParams `mapstructure:"query"`
}

// SQLVars carries the query text for a SQL read binding.
type SQLVars struct {
	Query string `mapstructure:"query"`
}

// PropertyVars identifies a searchable dataset property.
type PropertyVars struct {
	Property string `mapstructure:"property"`
}

// SchemaURLVars identifies a schema document by absolute URL.
type SchemaURLVars struct {
	URL string `mapstructure:"url"`
}

// DatastoreSearchVars shapes a compatibility-dialect datastore read.
type DatastoreSearchVars struct {
	DistributionID string `mapstructure:"resource_id"`
	Limit          int    `mapstructure:"limit"`
	Offset         int    `mapstructure:"offset"`
}

// binding resolves one read operation into its cache key, request and decoder
// so Subscribe can serve any read domain generically.
type binding struct {
	key       query.Key
	opts      httpclient.RequestOptions
	decode    func([]byte) (any, error)
	staleTime time.Duration
	disabled  bool
}

// Subscribe attaches a reactive observer to any read operation, addressed by
// domain and operation name. It is the generic counterpart of the typed
// Subscribe helpers and covers every cached read, including the ones without
// a typed helper. params carries the operation's parameters as its typed
// struct or a loosely-typed map; a required parameter left empty disables the
// binding rather than erroring, matching the typed helpers. The job-status
// operations datastore/import and harvest/run poll at their default intervals;
// use SubscribeDatastoreImport or SubscribeHarvestRun to tune them.
func (c *Client) Subscribe(domain, operation string, params any, opts query.SubscribeOptions) (*query.Subscription, error) {
	switch {
	case domain == "datastore" && operation == "import":
		var v ImportVars
		if err := bindParams(params, &v); err != nil {
			return nil, err
		}
		return c.SubscribeDatastoreImport(v.DistributionID, 0), nil
	case domain == "harvest" && operation == "run":
		var v HarvestVars
		if err := bindParams(params, &v); err != nil {
			return nil, err
		}
		return c.SubscribeHarvestRun(v.RunID, 0), nil
	}

	b, err := c.bindRead(domain, operation, params)
	if err != nil {
		return nil, err
	}
	if b.disabled {
		opts.Enabled = false
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = b.staleTime
	}
	return c.cache.Subscribe(b.key, c.fetchFunc(b.opts, b.decode), opts), nil
}

// bindRead maps a (domain, operation) pair onto the same cache key, request
// and decoder the typed read methods use, so generic observers and typed
// callers share entries.
func (c *Client) bindRead(domain, operation string, params any) (binding, error) {
	switch domain {
	case "datasets":
		return c.bindDatasets(operation, params)
	case "datastore":
		return c.bindDatastore(operation, params)
	case "harvest":
		return c.bindHarvest(operation, params)
	case "schema":
		return c.bindSchema(operation, params)
	case "properties":
		return c.bindProperties(operation, params)
	case "compat":
		return c.bindCompat(operation, params)
	default:
		return binding{}, ErrValidation.Msg("unknown read domain: " + domain)
	}
}

func (c *Client) bindDatasets(operation string, params any) (binding, error) {
	switch operation {
	case "search":
		var p SearchParams
		if err := bindParams(params, &p); err != nil {
			return binding{}, err
		}
		key, err := query.BuildKey("datasets", "search", p)
		if err != nil {
			return binding{}, ErrValidation.MsgErr("invalid search parameters", err)
		}
		return binding{
			key: key,
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        searchBase,
				QueryParams: searchQueryParams(p),
			},
			decode:    decodeValue[SearchResult],
			staleTime: c.metadataStale(),
		}, nil
	case "single":
		var v DatasetVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.Identifier) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"datasets", "single", v.Identifier},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(metastoreBase, "dataset", "items", v.Identifier),
			},
			decode:    decodeValue[Dataset],
			staleTime: c.metadataStale(),
		}, nil
	default:
		return binding{}, unknownRead("datasets", operation)
	}
}

func (c *Client) bindDatastore(operation string, params any) (binding, error) {
	switch operation {
	case "query":
		var v DatastoreQueryVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.DistributionID) == "" {
			return binding{disabled: true}, nil
		}
		key, err := query.Key{"datastore", "query", v.DistributionID}.WithParams(v.Query)
		if err != nil {
			return binding{}, ErrValidation.MsgErr("invalid query parameters", err)
		}
		body, err := json.Marshal(v.Query)
		if err != nil {
			return binding{}, ErrValidation.MsgErr("invalid query parameters", err)
		}
		return binding{
			key: key,
			opts: httpclient.RequestOptions{
				Method: http.MethodPost,
				Path:   path.Join(datastoreBase, "query", v.DistributionID),
				Body:   body,
			},
			decode:    decodeValue[DatastoreQueryResult],
			staleTime: c.metadataStale(),
		}, nil
	case "sql":
		var v SQLVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		sqlText := strings.TrimSpace(v.Query)
		if sqlText == "" {
			return binding{disabled: true}, nil
		}
		if err := dialect.GuardSQL(sqlText); err != nil {
			return binding{}, err
		}
		return binding{
			key: query.Key{"datastore", "sql", sqlText},
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        path.Join(datastoreBase, "sql"),
				QueryParams: map[string]string{"query": sqlText},
			},
			decode:    decodeValue[[]map[string]any],
			staleTime: c.metadataStale(),
		}, nil
	case "imports":
		return binding{
			key: query.Key{"datastore", "imports"},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(datastoreBase, "imports"),
			},
			decode:    decodeValue[map[string]DatastoreImport],
			staleTime: jobStale,
		}, nil
	case "statistics":
		var v DatasetVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.Identifier) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"datastore", "statistics", v.Identifier},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(datastoreBase, "statistics", v.Identifier),
			},
			decode:    decodeValue[DatastoreStatistics],
			staleTime: c.metadataStale(),
		}, nil
	default:
		return binding{}, unknownRead("datastore", operation)
	}
}

func (c *Client) bindHarvest(operation string, params any) (binding, error) {
	switch operation {
	case "plans":
		return binding{
			key: query.Key{"harvest", "plans"},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(harvestBase, "plans"),
			},
			decode:    decodeValue[[]string],
			staleTime: c.metadataStale(),
		}, nil
	case "plan":
		var v HarvestVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.PlanID) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"harvest", "plans", "single", v.PlanID},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(harvestBase, "plans", v.PlanID),
			},
			decode:    decodeValue[HarvestPlan],
			staleTime: c.metadataStale(),
		}, nil
	case "runs":
		var v HarvestVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.PlanID) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"harvest", "runs", v.PlanID},
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        path.Join(harvestBase, "runs"),
				QueryParams: map[string]string{"plan": v.PlanID},
			},
			decode:    decodeValue[[]string],
			staleTime: jobStale,
		}, nil
	default:
		return binding{}, unknownRead("harvest", operation)
	}
}

func (c *Client) bindSchema(operation string, params any) (binding, error) {
	switch operation {
	case "revisions":
		var v RevisionVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.SchemaID) == "" || strings.TrimSpace(v.Identifier) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"schema", v.SchemaID, "revisions", v.Identifier},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(metastoreBase, v.SchemaID, "items", v.Identifier, "revisions"),
			},
			decode:    decodeValue[[]Revision],
			staleTime: c.metadataStale(),
		}, nil
	case "data-dictionaries":
		return binding{
			key: query.Key{"schema", "data-dictionary"},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(metastoreBase, "data-dictionary", "items"),
			},
			decode:    decodeValue[[]DataDictionary],
			staleTime: c.metadataStale(),
		}, nil
	case "data-dictionary":
		var v DictionaryVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.Identifier) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"schema", "data-dictionary", "single", v.Identifier},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(metastoreBase, "data-dictionary", "items", v.Identifier),
			},
			decode:    decodeValue[DataDictionary],
			staleTime: c.metadataStale(),
		}, nil
	case "by-url":
		var v SchemaURLVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.URL) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"schema", "by-url", v.URL},
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				AbsoluteURL: v.URL,
			},
			decode:    decodeValue[DataDictionary],
			staleTime: c.metadataStale(),
		}, nil
	default:
		return binding{}, unknownRead("schema", operation)
	}
}

func (c *Client) bindProperties(operation string, params any) (binding, error) {
	switch operation {
	case "list":
		return binding{
			key: query.Key{"properties"},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   metastoreBase,
			},
			decode:    decodeValue[map[string]any],
			staleTime: c.metadataStale(),
		}, nil
	case "values":
		var v PropertyVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.Property) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"properties", "values", v.Property},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(metastoreBase, v.Property, "items"),
			},
			decode:    decodeValue[[]PropertyValue],
			staleTime: c.metadataStale(),
		}, nil
	default:
		return binding{}, unknownRead("properties", operation)
	}
}

func (c *Client) bindCompat(operation string, params any) (binding, error) {
	switch operation {
	case "package_search":
		var p SearchParams
		if err := bindParams(params, &p); err != nil {
			return binding{}, err
		}
		alt := dialect.ToPackageSearch(p)
		key, err := query.BuildKey("compat", "package_search", alt)
		if err != nil {
			return binding{}, ErrValidation.MsgErr("invalid search parameters", err)
		}
		return binding{
			key: key,
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        path.Join(compatBase, "package_search"),
				QueryParams: packageSearchQuery(alt),
			},
			decode:    decodeCompat[dialect.PackageSearchResult],
			staleTime: c.metadataStale(),
		}, nil
	case "package_show":
		var v DatasetVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.Identifier) == "" {
			return binding{disabled: true}, nil
		}
		return binding{
			key: query.Key{"compat", "package_show", v.Identifier},
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        path.Join(compatBase, "package_show"),
				QueryParams: map[string]string{"id": v.Identifier},
			},
			decode:    decodeCompat[Dataset],
			staleTime: c.metadataStale(),
		}, nil
	case "package_list":
		return binding{
			key: query.Key{"compat", "package_list"},
			opts: httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   path.Join(compatBase, "package_list"),
			},
			decode:    decodeCompat[[]string],
			staleTime: c.metadataStale(),
		}, nil
	case "datastore_search":
		var v DatastoreSearchVars
		if err := bindParams(params, &v); err != nil {
			return binding{}, err
		}
		if strings.TrimSpace(v.DistributionID) == "" {
			return binding{disabled: true}, nil
		}
		key, err := query.BuildKey("compat", "datastore_search", map[string]any{
			"resource_id": v.DistributionID,
			"limit":       v.Limit,
			"offset":      v.Offset,
		})
		if err != nil {
			return binding{}, ErrValidation.MsgErr("invalid datastore search parameters", err)
		}
		q := map[string]string{"resource_id": v.DistributionID}
		if v.Limit > 0 {
			q["limit"] = strconv.Itoa(v.Limit)
		}
		if v.Offset > 0 {
			q["offset"] = strconv.Itoa(v.Offset)
		}
		return binding{
			key: key,
			opts: httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        path.Join(compatBase, "datastore_search"),
				QueryParams: q,
			},
			decode:    decodeCompat[dialect.DatastoreRecords],
			staleTime: c.metadataStale(),
		}, nil
	default:
		return binding{}, unknownRead("compat", operation)
	}
}

func unknownRead(domain, operation string) error {
	return ErrValidation.Msg("unknown read operation: " + domain + "/" + operation)
}

// bindParams coerces loosely-typed binding parameters into the operation's
// variable struct. nil params bind everything to its zero value.
func bindParams(params, out any) error {
	if params == nil {
		return nil
	}
	return decodeVars(params, out)
}
