package catalog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// testService is an in-memory catalog service that counts requests per path.
type testService struct {
	mu     sync.Mutex
	counts map[string]int
	mux    *http.ServeMux
	srv    *httptest.Server
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	ts := &testService{
		counts: make(map[string]int),
		mux:    http.NewServeMux(),
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.counts[r.URL.Path]++
		ts.mu.Unlock()
		ts.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testService) calls(p string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.counts[p]
}

func (ts *testService) handleJSON(pattern string, fn func(r *http.Request) (int, string)) {
	ts.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		status, body := fn(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func newTestClient(t *testing.T, ts *testService) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: ts.srv.URL})
	require.NoError(t, err)
	return c
}

func TestPropertyValuesSharedCache(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/1/metastore/schemas/theme/items", func(*http.Request) (int, string) {
		time.Sleep(20 * time.Millisecond) // hold the request open so readers overlap
		return 200, `[{"identifier":"t1","data":"Transportation"},{"identifier":"t2","data":"Health"}]`
	})
	c := newTestClient(t, ts)

	var wg sync.WaitGroup
	results := make([][]PropertyValue, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vals, err := c.ListPropertyValues(context.Background(), "theme")
			assert.NoError(t, err)
			results[i] = vals
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ts.calls("/api/1/metastore/schemas/theme/items"),
		"simultaneous consumers of the same property must share one request")
	assert.Equal(t, results[0], results[1])
	require.Len(t, results[0], 2)
	assert.Equal(t, "Transportation", results[0][0].Data)
}

func TestDatasetCacheAndRevisionInvalidation(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/1/metastore/schemas/dataset/items/ds-1", func(*http.Request) (int, string) {
		return 200, `{"identifier":"ds-1","title":"Traffic Counts"}`
	})
	revisions := 0
	ts.handleJSON("/api/1/metastore/schemas/dataset/items/ds-1/revisions", func(r *http.Request) (int, string) {
		if r.Method == http.MethodPost {
			revisions++
			if revisions > 1 {
				return 500, `{"message":"boom"}`
			}
			return 200, `{"identifier":"rev-1"}`
		}
		return 200, `[]`
	})
	c := newTestClient(t, ts)
	ctx := context.Background()

	_, err := c.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	_, err = c.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, 1, ts.calls("/api/1/metastore/schemas/dataset/items/ds-1"),
		"second read within the stale window must come from cache")

	rev, err := c.ChangeDatasetState(ctx, "ds-1", WorkflowPublished, "go live")
	require.NoError(t, err)
	assert.Equal(t, "rev-1", rev.Identifier)
	assert.True(t, rev.Published)

	_, err = c.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.calls("/api/1/metastore/schemas/dataset/items/ds-1"),
		"a successful state transition must mark the dataset entry stale")

	// a failed mutation must invalidate nothing
	_, err = c.ChangeDatasetState(ctx, "ds-1", WorkflowArchived, "retire")
	require.Error(t, err)
	_, err = c.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.calls("/api/1/metastore/schemas/dataset/items/ds-1"),
		"a failed mutation must leave the cache untouched")
}

func TestImportPollingStopsAtTerminalStatus(t *testing.T) {
	ts := newTestService(t)
	var polls atomic.Int32
	ts.handleJSON("/api/1/datastore/imports/dist-1", func(*http.Request) (int, string) {
		n := polls.Add(1)
		if n < 3 {
			return 200, `{"identifier":"dist-1","status":"IN_PROGRESS","percent_done":50}`
		}
		return 200, `{"identifier":"dist-1","status":"DONE","records_imported":1200}`
	})
	c := newTestClient(t, ts)
	c.Mount()
	defer c.Unmount()

	sub := c.SubscribeDatastoreImport("dist-1", 10*time.Millisecond)
	defer sub.Close()

	require.Eventually(t, func() bool {
		snap := sub.Snapshot()
		imp, ok := snap.Data.(*DatastoreImport)
		return ok && imp.Status == ImportDone
	}, 2*time.Second, 5*time.Millisecond)

	settled := polls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, polls.Load(), "polling must stop once the job is terminal")

	imp := sub.Snapshot().Data.(*DatastoreImport)
	assert.Equal(t, 1200, imp.RecordsImported)
}

func TestImportCompletionInvalidatesDatasets(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/1/search", func(*http.Request) (int, string) {
		return 200, `{"total":1,"results":[{"identifier":"ds-1","title":"Traffic Counts"}]}`
	})
	ts.handleJSON("/api/1/datastore/imports/dist-1", func(*http.Request) (int, string) {
		return 200, `{"identifier":"dist-1","status":"DONE"}`
	})
	c := newTestClient(t, ts)
	c.Mount()
	defer c.Unmount()
	ctx := context.Background()

	_, err := c.SearchDatasets(ctx, SearchParams{FullText: "traffic"})
	require.NoError(t, err)
	assert.Equal(t, 1, ts.calls("/api/1/search"))

	sub := c.SubscribeDatastoreImport("dist-1", 10*time.Millisecond)
	defer sub.Close()
	require.Eventually(t, func() bool {
		imp, ok := sub.Snapshot().Data.(*DatastoreImport)
		return ok && imp.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond) // allow the completion invalidation to land

	_, err = c.SearchDatasets(ctx, SearchParams{FullText: "traffic"})
	require.NoError(t, err)
	assert.Equal(t, 2, ts.calls("/api/1/search"),
		"a completed import must mark dataset search results stale")
}

func TestQueryDatastoreSQLGuard(t *testing.T) {
	ts := newTestService(t)
	c := newTestClient(t, ts)
	ctx := context.Background()

	for _, q := range []string{
		"DROP TABLE datastore_abc",
		"DELETE FROM datastore_abc",
		"SELECT * FROM abc; DROP TABLE abc",
		"",
	} {
		_, err := c.QueryDatastoreSQL(ctx, q)
		assert.ErrorIs(t, err, ErrSQLRejected, "query %q must be rejected", q)
	}
	assert.Equal(t, 0, ts.calls("/api/1/datastore/sql"),
		"rejected queries must never reach the network")
}

func TestCompatPackageSearch(t *testing.T) {
	ts := newTestService(t)
	var gotQuery map[string][]string
	ts.handleJSON("/api/3/action/package_search", func(r *http.Request) (int, string) {
		gotQuery = r.URL.Query()
		return 200, `{"success":true,"result":{"count":40,"results":[{"identifier":"ds-9","title":"Bike Lanes"}]}}`
	})
	c := newTestClient(t, ts)

	res, err := c.PackageSearch(context.Background(), SearchParams{
		FullText: "bike",
		Page:     3,
		PageSize: 10,
		Sort:     "title",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"20"}, gotQuery["start"], "page 3 of 10 rows must translate to offset 20")
	assert.Equal(t, []string{"10"}, gotQuery["rows"])
	assert.Equal(t, []string{"bike"}, gotQuery["q"])

	assert.Equal(t, 40, res.Total)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Bike Lanes", res.Results[0].Title)
}

func TestCompatPackageSearchUndecodableResult(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/3/action/package_search", func(*http.Request) (int, string) {
		return 200, `{"success":true,"result":{"count":2,"results":[{"identifier":"ds-1","title":"Good"},{"identifier":{"nested":"object"},"title":"Bad"}]}}`
	})
	c := newTestClient(t, ts)

	res, err := c.PackageSearch(context.Background(), SearchParams{FullText: "bike"})
	require.Error(t, err, "a result that cannot decode must fail the whole page, not shrink it")
	assert.ErrorIs(t, err, ErrHTTP)
	assert.Nil(t, res)
}

func TestCompatEnvelopeFailure(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/3/action/package_show", func(*http.Request) (int, string) {
		return 200, `{"success":false,"error":{"message":"Not found: unknown"}}`
	})
	c := newTestClient(t, ts)

	_, err := c.PackageShow(context.Background(), "unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not found: unknown")
}

func TestDisabledSubscriptionIssuesNoCall(t *testing.T) {
	ts := newTestService(t)
	c := newTestClient(t, ts)
	c.Mount()
	defer c.Unmount()

	sub := c.SubscribeDataset("", query.SubscribeOptions{Enabled: true})
	defer sub.Close()

	snap := sub.Snapshot()
	assert.Equal(t, query.StatusIdle, snap.Status)
	assert.Nil(t, snap.Data)
	assert.Nil(t, snap.Err)
	assert.Empty(t, ts.counts, "a disabled subscription must not touch the network")
}

func TestGenericSubscribe(t *testing.T) {
	t.Run("HarvestPlansSharesTypedCache", func(t *testing.T) {
		ts := newTestService(t)
		ts.handleJSON("/api/1/harvest/plans", func(*http.Request) (int, string) {
			return 200, `["plan-a","plan-b"]`
		})
		c := newTestClient(t, ts)
		c.Mount()
		defer c.Unmount()

		sub, err := c.Subscribe("harvest", "plans", nil, query.SubscribeOptions{Enabled: true})
		require.NoError(t, err)
		defer sub.Close()

		require.Eventually(t, func() bool {
			return sub.Snapshot().Status == query.StatusSuccess
		}, time.Second, 5*time.Millisecond)
		plans, ok := sub.Snapshot().Data.(*[]string)
		require.True(t, ok)
		assert.Equal(t, []string{"plan-a", "plan-b"}, *plans)

		// the typed read must land on the same entry
		got, err := c.ListHarvestPlans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"plan-a", "plan-b"}, got)
		assert.Equal(t, 1, ts.calls("/api/1/harvest/plans"),
			"generic and typed consumers of the same read must share one cache entry")
	})

	t.Run("DictionaryByIdentifier", func(t *testing.T) {
		ts := newTestService(t)
		ts.handleJSON("/api/1/metastore/schemas/data-dictionary/items/dd-1", func(*http.Request) (int, string) {
			return 200, `{"identifier":"dd-1","title":"Traffic Columns"}`
		})
		c := newTestClient(t, ts)
		c.Mount()
		defer c.Unmount()

		sub, err := c.Subscribe("schema", "data-dictionary", map[string]any{"identifier": "dd-1"}, query.SubscribeOptions{Enabled: true})
		require.NoError(t, err)
		defer sub.Close()

		require.Eventually(t, func() bool {
			return sub.Snapshot().Status == query.StatusSuccess
		}, time.Second, 5*time.Millisecond)
		d, ok := sub.Snapshot().Data.(*DataDictionary)
		require.True(t, ok)
		assert.Equal(t, "Traffic Columns", d.Title)
	})

	t.Run("EmptyRequiredParamDisables", func(t *testing.T) {
		ts := newTestService(t)
		c := newTestClient(t, ts)
		c.Mount()
		defer c.Unmount()

		sub, err := c.Subscribe("schema", "data-dictionary", map[string]any{"identifier": ""}, query.SubscribeOptions{Enabled: true})
		require.NoError(t, err)
		defer sub.Close()

		assert.Equal(t, query.StatusIdle, sub.Snapshot().Status)
		assert.Empty(t, ts.counts)
	})

	t.Run("UnknownOperationRejected", func(t *testing.T) {
		ts := newTestService(t)
		c := newTestClient(t, ts)
		c.Mount()
		defer c.Unmount()

		_, err := c.Subscribe("harvest", "bogus", nil, query.SubscribeOptions{Enabled: true})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = c.Subscribe("bogus", "plans", nil, query.SubscribeOptions{Enabled: true})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestListPropertiesSorted(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/1/metastore/schemas", func(*http.Request) (int, string) {
		return 200, `{"theme":{},"dataset":{},"keyword":{}}`
	})
	c := newTestClient(t, ts)

	names, err := c.ListProperties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dataset", "keyword", "theme"}, names)
}

func TestGetDatasetNotFound(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/1/metastore/schemas/dataset/items/missing", func(*http.Request) (int, string) {
		return 404, `{"message":"dataset not found"}`
	})
	c := newTestClient(t, ts)

	_, err := c.GetDataset(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidationRejectsBeforeNetwork(t *testing.T) {
	ts := newTestService(t)
	c := newTestClient(t, ts)
	ctx := context.Background()

	_, err := c.GetDataset(ctx, "  ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = c.CreateDataset(ctx, Dataset{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = c.GetHarvestPlan(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, ts.counts)
}

func TestDictionaryValidation(t *testing.T) {
	ts := newTestService(t)
	c := newTestClient(t, ts)
	ctx := context.Background()

	t.Run("RejectsEmptyFields", func(t *testing.T) {
		_, err := c.CreateDataDictionary(ctx, DataDictionary{Title: "empty"})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, ts.counts, "invalid dictionaries must fail before the network")
	})

	t.Run("RejectsUnknownFieldType", func(t *testing.T) {
		_, err := c.CreateDataDictionary(ctx, DataDictionary{
			Data: TableSchema{Fields: []DictionaryField{{Name: "year", Type: "decimal"}}},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestExecuteMutationDispatch(t *testing.T) {
	ts := newTestService(t)
	ts.handleJSON("/api/1/metastore/schemas/dataset/items", func(r *http.Request) (int, string) {
		return 200, `{"identifier":"srv-assigned","endpoint":"/api/1/metastore/schemas/dataset/items/srv-assigned"}`
	})
	c := newTestClient(t, ts)

	out, err := c.Execute(context.Background(), MutationCreateDataset, map[string]any{
		"Title":       "Street Trees",
		"AccessLevel": "public",
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "srv-assigned")

	_, err = c.Execute(context.Background(), MutationKind("bogus"), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecodeRows(t *testing.T) {
	type record struct {
		Year  int     `json:"year"`
		Value float64 `json:"value"`
		Label string  `json:"label"`
	}
	rows := []map[string]any{
		{"year": "2024", "value": "12.5", "label": "a"},
		{"year": "2025", "value": "13.1", "label": "b"},
	}
	out, err := DecodeRows[record](rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2024, out[0].Year)
	assert.InDelta(t, 13.1, out[1].Value, 0.001)

	_, err = DecodeRows[record]([]map[string]any{{"year": "not-a-number"}})
	assert.Error(t, err)
}

func TestHarvestRunPolling(t *testing.T) {
	ts := newTestService(t)
	var polls atomic.Int32
	ts.handleJSON("/api/1/harvest/runs/run-1", func(*http.Request) (int, string) {
		n := polls.Add(1)
		if n < 3 {
			return 200, `{"identifier":"run-1","status":"running"}`
		}
		return 200, `{"identifier":"run-1","status":"complete","load":{"created":4,"updated":1}}`
	})
	c := newTestClient(t, ts)
	c.Mount()
	defer c.Unmount()

	sub := c.SubscribeHarvestRun("run-1", 10*time.Millisecond)
	defer sub.Close()

	require.Eventually(t, func() bool {
		run, ok := sub.Snapshot().Data.(*HarvestRun)
		return ok && run.Status == HarvestComplete
	}, 2*time.Second, 5*time.Millisecond)

	settled := polls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, polls.Load(), "polling must stop once the run is terminal")

	run := sub.Snapshot().Data.(*HarvestRun)
	assert.Equal(t, 4, run.Load.Created)
}

func TestDownloadDatastore(t *testing.T) {
	ts := newTestService(t)
	ts.mux.HandleFunc("/api/1/datastore/query/dist-1/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("year,value\n2024,12.5\n"))
	})
	c := newTestClient(t, ts)

	rc, contentType, err := c.DownloadDatastore(context.Background(), "dist-1", "csv")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "text/csv", contentType)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, rc)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2024,12.5")
}
