package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_HitOnSecondCompile(t *testing.T) {
	compiles := 0
	c, err := New(4, func(s string) (string, error) {
		compiles++
		return "compiled:" + s, nil
	})
	require.NoError(t, err)

	first, err := c.Get("//Order")
	require.NoError(t, err)
	second, err := c.Get("//Order")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, compiles)
	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, 1, st.Len)
	assert.Equal(t, 4, st.Capacity)
}

func TestCache_ErrorsNotCached(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	c, err := New(0, func(s string) (int, error) {
		calls++
		return 0, boom
	})
	require.NoError(t, err)

	_, err = c.Get("x")
	assert.ErrorIs(t, err, boom)
	_, err = c.Get("x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Stats().Len)
	assert.Equal(t, DefaultCapacity, c.Stats().Capacity)
}

func TestCache_BoundedAndReset(t *testing.T) {
	c, err := New(2, func(s string) (string, error) { return s, nil })
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Get(k)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Stats().Len)

	// "a" was evicted.
	_, err = c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), c.Stats().Misses)

	c.Reset()
	st := c.Stats()
	assert.Equal(t, 0, st.Len)
	assert.Equal(t, uint64(1), st.Resets)

	_, err = c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c.Stats().Misses)
}

func TestNormalizeJSONPath(t *testing.T) {
	tests := map[string]string{
		"":              "$",
		"orders":        "$.orders",
		"orders.items":  "$.orders.items",
		"$.orders[*]":   "$.orders[*]",
		"[0].id":        "$[0].id",
		"@.id":          "@.id",
		"  data.rows  ": "$.data.rows",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeJSONPath(in), in)
	}
}

func TestStreamSelector(t *testing.T) {
	ns := map[string]string{"o": "urn:orders"}
	assert.Equal(t, "//Order", StreamSelector("//o:Order", ns))
	assert.Equal(t, "/Root/Order", StreamSelector("/Root/Order", ns))
	assert.Equal(t, "//info:Order", StreamSelector("//info:Order", ns))
}

func TestSet(t *testing.T) {
	s, err := NewSet(8, map[string]string{"o": "urn:orders"})
	require.NoError(t, err)

	x1, err := s.XPath.Get("o:Total")
	require.NoError(t, err)
	x2, err := s.XPath.Get("o:Total")
	require.NoError(t, err)
	assert.Same(t, x1, x2)

	_, err = s.JSON.Get("orders.items")
	require.NoError(t, err)
	_, err = s.XPath.Get("//[")
	assert.Error(t, err)

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(3), st.Misses)
	assert.Equal(t, 16, st.Capacity)

	s.Reset()
	assert.Equal(t, 0, s.Stats().Len)
	assert.Equal(t, uint64(2), s.Stats().Resets)
}
