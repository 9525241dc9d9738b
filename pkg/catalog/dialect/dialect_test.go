package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageSearchTranslation(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		native := SearchParams{
			FullText:  "health",
			Page:      3,
			PageSize:  25,
			Sort:      "title",
			SortOrder: "asc",
		}

		alt := ToPackageSearch(native)
		assert.Equal(t, "health", alt.Query)
		assert.Equal(t, 25, alt.Rows)
		assert.Equal(t, 50, alt.Start)
		assert.Equal(t, "title asc", alt.Sort)

		back := FromPackageSearch(alt)
		assert.Equal(t, native, back)
	})

	t.Run("RoundTripAllPages", func(t *testing.T) {
		for page := 1; page <= 7; page++ {
			for _, rows := range []int{1, 10, 25, 100} {
				native := SearchParams{Page: page, PageSize: rows}
				back := FromPackageSearch(ToPackageSearch(native))
				assert.Equal(t, native, back, "page=%d rows=%d", page, rows)
			}
		}
	})

	t.Run("FirstPageZeroOffset", func(t *testing.T) {
		alt := ToPackageSearch(SearchParams{Page: 1, PageSize: 10})
		assert.Equal(t, 0, alt.Start)
	})

	t.Run("SortWithoutOrder", func(t *testing.T) {
		back := FromPackageSearch(PackageSearchParams{Sort: "modified"})
		assert.Equal(t, "modified", back.Sort)
		assert.Empty(t, back.SortOrder)
	})
}

func TestResultReshaping(t *testing.T) {
	t.Run("SearchResult", func(t *testing.T) {
		alt := PackageSearchResult{
			Count:   2,
			Results: []map[string]any{{"identifier": "a"}, {"identifier": "b"}},
		}
		native := FromPackageSearchResult(alt)
		assert.Equal(t, 2, native.Total)
		assert.Len(t, native.Results, 2)
		assert.Equal(t, alt, ToPackageSearchResult(native))
	})

	t.Run("DatastoreRecords", func(t *testing.T) {
		alt := DatastoreRecords{
			Fields:  []Field{{ID: "year", Type: "int"}, {ID: "value", Type: "text"}},
			Records: []map[string]any{{"year": 2020, "value": "x"}},
			Count:   1,
		}
		native := FromDatastoreRecords(alt)
		assert.Equal(t, alt.Fields, native.Schema)
		assert.Equal(t, alt.Records, native.Rows)
		assert.Equal(t, 1, native.Total)
		assert.Equal(t, alt, ToDatastoreRecords(native))
	})
}

func TestGuardSQL(t *testing.T) {
	t.Run("AllowsSelect", func(t *testing.T) {
		assert.NoError(t, GuardSQL("SELECT * FROM abc-123"))
		assert.NoError(t, GuardSQL("select year, value from abc-123 limit 10"))
		assert.NoError(t, GuardSQL("[SELECT * FROM abc-123][LIMIT 5];"))
	})

	t.Run("RejectsMutations", func(t *testing.T) {
		for _, q := range []string{
			"DROP TABLE abc-123",
			"DELETE FROM abc-123",
			"INSERT INTO abc-123 VALUES (1)",
			"UPDATE abc-123 SET a = 1",
			"",
			"  ",
		} {
			err := GuardSQL(q)
			assert.ErrorIs(t, err, ErrSQLRejected, "query %q must be rejected", q)
		}
	})

	t.Run("RejectsStackedStatements", func(t *testing.T) {
		err := GuardSQL("SELECT * FROM abc-123; DROP TABLE abc-123")
		assert.ErrorIs(t, err, ErrSQLRejected)
	})
}
