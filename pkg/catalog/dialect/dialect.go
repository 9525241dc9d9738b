// Package dialect provides the bidirectional mapping between the catalog's
// native parameter and response shapes and the legacy compatibility dialect
// exposed under /api/3/action. Each operation family is translated once here
// so the client facade never duplicates the mapping.
package dialect

import (
	"net/http"
	"strings"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/apperrors"
)

// ErrSQLRejected indicates a query text that is not a read-only SELECT.
// The guard runs before any network call; server-side rejections pass
// through untouched as HTTP errors.
var ErrSQLRejected apperrors.Error = apperrors.New("sql query rejected: only read-only SELECT statements are allowed").SetStatusCode(http.StatusBadRequest)

// SearchParams is the native search parameter shape.
type SearchParams struct {
	FullText  string `json:"fulltext,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page-size,omitempty"`
	Sort      string `json:"sort,omitempty"`
	SortOrder string `json:"sort-order,omitempty"`
}

// PackageSearchParams is the compatibility-dialect search parameter shape.
type PackageSearchParams struct {
	Query string `json:"q,omitempty"`
	Rows  int    `json:"rows,omitempty"`
	Start int    `json:"start,omitempty"`
	Sort  string `json:"sort,omitempty"`
}

// ToPackageSearch translates native search parameters into the compatibility
// shape. The full-text term becomes the query term and page/page-size become
// offset/row-count with offset = (page-1) * rowCount.
func ToPackageSearch(native SearchParams) PackageSearchParams {
	alt := PackageSearchParams{
		Query: native.FullText,
		Rows:  native.PageSize,
	}
	if native.Page >= 1 && native.PageSize >= 1 {
		alt.Start = (native.Page - 1) * native.PageSize
	}
	if native.Sort != "" {
		alt.Sort = native.Sort
		if native.SortOrder != "" {
			alt.Sort += " " + native.SortOrder
		}
	}
	return alt
}

// FromPackageSearch translates compatibility-dialect search parameters back
// into the native shape. It is the exact inverse of ToPackageSearch for all
// page >= 1, rowCount >= 1: page = offset / rowCount + 1.
func FromPackageSearch(alt PackageSearchParams) SearchParams {
	native := SearchParams{
		FullText: alt.Query,
		PageSize: alt.Rows,
	}
	if alt.Rows >= 1 {
		native.Page = alt.Start/alt.Rows + 1
	}
	if alt.Sort != "" {
		parts := strings.SplitN(alt.Sort, " ", 2)
		native.Sort = parts[0]
		if len(parts) == 2 {
			native.SortOrder = parts[1]
		}
	}
	return native
}

// SearchResult is the native search response shape.
type SearchResult struct {
	Total   int              `json:"total"`
	Results []map[string]any `json:"results"`
}

// PackageSearchResult is the compatibility-dialect search response shape.
type PackageSearchResult struct {
	Count   int              `json:"count"`
	Results []map[string]any `json:"results"`
}

// FromPackageSearchResult reshapes a compatibility search response into the
// native shape: count becomes total, results carry over unchanged.
func FromPackageSearchResult(alt PackageSearchResult) SearchResult {
	return SearchResult{
		Total:   alt.Count,
		Results: alt.Results,
	}
}

// ToPackageSearchResult reshapes a native search response into the
// compatibility shape.
func ToPackageSearchResult(native SearchResult) PackageSearchResult {
	return PackageSearchResult{
		Count:   native.Total,
		Results: native.Results,
	}
}

// Field describes a single column in a datastore response.
type Field struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// TableResult is the native datastore response shape.
type TableResult struct {
	Schema []Field          `json:"schema"`
	Rows   []map[string]any `json:"rows"`
	Total  int              `json:"total"`
}

// DatastoreRecords is the compatibility-dialect datastore response shape.
type DatastoreRecords struct {
	Fields  []Field          `json:"fields"`
	Records []map[string]any `json:"records"`
	Count   int              `json:"count"`
}

// FromDatastoreRecords reshapes a compatibility datastore response into the
// native shape: fields become schema, records become rows.
func FromDatastoreRecords(alt DatastoreRecords) TableResult {
	return TableResult{
		Schema: alt.Fields,
		Rows:   alt.Records,
		Total:  alt.Count,
	}
}

// ToDatastoreRecords reshapes a native datastore response into the
// compatibility shape.
func ToDatastoreRecords(native TableResult) DatastoreRecords {
	return DatastoreRecords{
		Fields:  native.Schema,
		Records: native.Rows,
		Count:   native.Total,
	}
}

// GuardSQL validates that a SQL-style query is a single read-only SELECT
// statement. It returns ErrSQLRejected for anything else. Bracket wrapping
// used by the catalog's SQL endpoint ([SELECT ...][...];) is tolerated.
func GuardSQL(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return ErrSQLRejected.Msg("empty query")
	}
	q = strings.TrimSuffix(q, ";")
	q = strings.TrimSpace(q)
	q = strings.TrimPrefix(q, "[")
	q = strings.TrimSpace(q)

	if !hasKeywordPrefix(q, "SELECT") {
		return ErrSQLRejected
	}

	// a second statement smuggled in after the terminator is not read-only
	if idx := strings.Index(q, ";"); idx >= 0 && strings.TrimSpace(q[idx+1:]) != "" {
		return ErrSQLRejected.Msg("multiple statements are not allowed")
	}
	return nil
}

func hasKeywordPrefix(q, keyword string) bool {
	if len(q) < len(keyword) {
		return false
	}
	return strings.EqualFold(q[:len(keyword)], keyword)
}
