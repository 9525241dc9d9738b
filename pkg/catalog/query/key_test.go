package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	t.Run("OrderIndependent", func(t *testing.T) {
		type searchParams struct {
			Keyword string `json:"keyword,omitempty"`
			Page    int    `json:"page,omitempty"`
		}

		k1, err := BuildKey("datasets", "search", searchParams{Keyword: "health", Page: 1})
		require.NoError(t, err)
		k2, err := BuildKey("datasets", "search", map[string]any{"page": 1, "keyword": "health"})
		require.NoError(t, err)
		assert.True(t, k1.Equal(k2))
		assert.Equal(t, k1.String(), k2.String())
	})

	t.Run("NestedObjectsSorted", func(t *testing.T) {
		k1, err := BuildKey("datastore", "query", map[string]any{
			"conditions": map[string]any{"b": 2, "a": 1},
			"limit":      10,
		})
		require.NoError(t, err)
		k2, err := BuildKey("datastore", "query", map[string]any{
			"limit":      10,
			"conditions": map[string]any{"a": 1, "b": 2},
		})
		require.NoError(t, err)
		assert.True(t, k1.Equal(k2))
	})

	t.Run("ArraysKeepOrder", func(t *testing.T) {
		k1, err := BuildKey("datastore", "query", map[string]any{"sorts": []string{"date", "title"}})
		require.NoError(t, err)
		k2, err := BuildKey("datastore", "query", map[string]any{"sorts": []string{"title", "date"}})
		require.NoError(t, err)
		assert.False(t, k1.Equal(k2))
	})

	t.Run("NullDistinctFromAbsent", func(t *testing.T) {
		k1, err := BuildKey("datasets", "search", map[string]any{"keyword": nil})
		require.NoError(t, err)
		k2, err := BuildKey("datasets", "search", map[string]any{})
		require.NoError(t, err)
		assert.False(t, k1.Equal(k2))
	})

	t.Run("NilParamsOmitted", func(t *testing.T) {
		k, err := BuildKey("datasets", "", nil)
		require.NoError(t, err)
		assert.Equal(t, Key{"datasets"}, k)

		var p *struct{ Name string }
		k, err = BuildKey("datasets", "single", p)
		require.NoError(t, err)
		assert.Equal(t, Key{"datasets", "single"}, k)
	})
}

func TestKeyPrefix(t *testing.T) {
	base := Key{"datasets"}
	search := MustBuildKey("datasets", "search", map[string]any{"keyword": "health"})
	single := Key{"datasets", "single", "dataset-123"}
	other := Key{"harvest", "runs"}

	assert.True(t, search.HasPrefix(base))
	assert.True(t, single.HasPrefix(base))
	assert.True(t, single.HasPrefix(Key{"datasets", "single"}))
	assert.False(t, other.HasPrefix(base))
	assert.False(t, base.HasPrefix(single))
	assert.True(t, single.HasPrefix(single))
}
