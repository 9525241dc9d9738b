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

// Compatibility-dialect operations. These talk to the legacy action API
// under /api/3/action and translate parameters and responses through the
// dialect package, so callers see the native shapes on both sides. Action
// responses wrap their payload in a {success, result} envelope; the result
// member is unwrapped here before decoding.

// compatResult extracts the result member of an action-API envelope. A
// response with success=false is surfaced as an HTTP-layer error carrying the
// envelope's error message.
func compatResult(body []byte) ([]byte, error) {
	if s := gjson.GetBytes(body, "success"); s.Exists() && !s.Bool() {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = "action request failed"
		}
		return nil, ErrHTTP.Msg(msg)
	}
	res := gjson.GetBytes(body, "result")
	if !res.Exists() {
		return nil, ErrHTTP.Msg("action response missing result")
	}
	return []byte(res.Raw), nil
}

// decodeCompat decodes the unwrapped result member into a fresh *T.
func decodeCompat[T any](body []byte) (any, error) {
	res, err := compatResult(body)
	if err != nil {
		return nil, err
	}
	return decodeValue[T](res)
}

// PackageSearch searches datasets through the compatibility dialect. The
// native parameters are translated to the dialect's offset/row-count form and
// the dialect response is reshaped back, so the caller never sees the
// alternate shapes. The cache key is derived from the translated parameters:
// the same logical search issued natively and through the dialect remain
// distinct entries, since the endpoints can disagree.
func (c *Client) PackageSearch(ctx context.Context, params SearchParams) (*SearchResult, error) {
	alt := dialect.ToPackageSearch(params)
	key, err := query.BuildKey("compat", "package_search", alt)
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid search parameters", err)
	}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(compatBase, "package_search"),
		QueryParams: packageSearchQuery(alt),
	}, decodeCompat[dialect.PackageSearchResult])
	if err != nil {
		return nil, err
	}
	native := dialect.FromPackageSearchResult(*v.(*dialect.PackageSearchResult))
	out := &SearchResult{Total: native.Total}
	for _, raw := range native.Results {
		var ds Dataset
		buf, err := json.Marshal(raw)
		if err != nil {
			return nil, ErrHTTP.MsgErr("undecodable dataset in action search result", err)
		}
		if err := json.Unmarshal(buf, &ds); err != nil {
			return nil, ErrHTTP.MsgErr("undecodable dataset in action search result", err)
		}
		out.Results = append(out.Results, ds)
	}
	return out, nil
}

// PackageShow fetches a single dataset through the compatibility dialect.
func (c *Client) PackageShow(ctx context.Context, identifier string) (*Dataset, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	key := query.Key{"compat", "package_show", identifier}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(compatBase, "package_show"),
		QueryParams: map[string]string{"id": identifier},
	}, decodeCompat[Dataset])
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

// PackageList lists dataset identifiers through the compatibility dialect.
func (c *Client) PackageList(ctx context.Context) ([]string, error) {
	key := query.Key{"compat", "package_list"}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(compatBase, "package_list"),
	}, decodeCompat[[]string])
	if err != nil {
		return nil, err
	}
	return *v.(*[]string), nil
}

// DatastoreSearch queries a distribution's datastore through the
// compatibility dialect. The dialect's fields/records/count response is
// reshaped into the native schema/rows/total form.
func (c *Client) DatastoreSearch(ctx context.Context, distributionID string, limit, offset int) (*dialect.TableResult, error) {
	if strings.TrimSpace(distributionID) == "" {
		return nil, fieldError("distributionID", "must not be empty")
	}
	params := map[string]string{"resource_id": distributionID}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if offset > 0 {
		params["offset"] = strconv.Itoa(offset)
	}
	key, err := query.BuildKey("compat", "datastore_search", map[string]any{
		"resource_id": distributionID,
		"limit":       limit,
		"offset":      offset,
	})
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid datastore search parameters", err)
	}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(compatBase, "datastore_search"),
		QueryParams: params,
	}, decodeCompat[dialect.DatastoreRecords])
	if err != nil {
		return nil, err
	}
	native := dialect.FromDatastoreRecords(*v.(*dialect.DatastoreRecords))
	return &native, nil
}

// DatastoreSearchSQL runs a read-only SQL query through the compatibility
// dialect. The same client-side guard applies as for the native SQL
// endpoint: only a single SELECT statement ever reaches the network.
func (c *Client) DatastoreSearchSQL(ctx context.Context, sqlText string) (*dialect.TableResult, error) {
	sqlText = strings.TrimSpace(sqlText)
	if err := dialect.GuardSQL(sqlText); err != nil {
		return nil, err
	}
	key := query.Key{"compat", "datastore_search_sql", sqlText}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(compatBase, "datastore_search_sql"),
		QueryParams: map[string]string{"sql": sqlText},
	}, decodeCompat[dialect.DatastoreRecords])
	if err != nil {
		return nil, err
	}
	native := dialect.FromDatastoreRecords(*v.(*dialect.DatastoreRecords))
	return &native, nil
}

func packageSearchQuery(alt dialect.PackageSearchParams) map[string]string {
	q := make(map[string]string)
	if alt.Query != "" {
		q["q"] = alt.Query
	}
	if alt.Rows > 0 {
		q["rows"] = strconv.Itoa(alt.Rows)
	}
	if alt.Start > 0 {
		q["start"] = strconv.Itoa(alt.Start)
	}
	if alt.Sort != "" {
		q["sort"] = alt.Sort
	}
	return q
}
