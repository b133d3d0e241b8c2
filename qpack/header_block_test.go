package qpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiredInsertCountRoundTrip(t *testing.T) {
	maxEntries := uint64(10)

	cases := []struct {
		ric          uint64
		totalInserts uint64
	}{
		{0, 0},
		{1, 0},
		{5, 3},
		{15, 15},
		{25, 20},
	}

	for _, c := range cases {
		encoded := encodeRequiredInsertCount(c.ric, maxEntries)
		got, err := decodeRequiredInsertCount(encoded, maxEntries, c.totalInserts)
		require.NoError(t, err)
		require.Equal(t, c.ric, got)
	}
}

func TestHeaderBlockPrefixRoundTrip(t *testing.T) {
	maxEntries := uint64(128)

	cases := []struct {
		ric  uint64
		base uint64
	}{
		{0, 0},
		{1, 1},
		{5, 5},
		{5, 10},
		{10, 5},
	}

	for _, c := range cases {
		encoded := encodeHeaderBlockPrefix(nil, c.ric, c.base, maxEntries)
		prefix, n, err := decodeHeaderBlockPrefix(encoded, maxEntries, c.ric)
		require.NoError(t, err)
		require.Equal(t, c.ric, prefix.RequiredInsertCount)
		require.Equal(t, c.base, prefix.Base)
		require.Equal(t, len(encoded), n)
	}
}

func TestResolveIndexedRejectsRelativeIndexAtOrAboveBase(t *testing.T) {
	table := newDynamicTable(4096, false)
	require.NoError(t, table.SetCapacity(1000))
	_, err := table.Insert("foo", "bar")
	require.NoError(t, err)

	_, err = resolveIndexed(false, 1, 1, table)
	require.Error(t, err)
}

func TestResolvePostBaseRejectsIndexAtOrAboveRIC(t *testing.T) {
	table := newDynamicTable(4096, false)
	require.NoError(t, table.SetCapacity(1000))
	_, err := table.Insert("foo", "bar")
	require.NoError(t, err)

	// base=0, ric=1: postBaseIndex 1 resolves to absolute index 1, which is
	// not yet inserted and not less than ric.
	_, err = resolvePostBase(1, 0, 1, table)
	require.Error(t, err)
}
