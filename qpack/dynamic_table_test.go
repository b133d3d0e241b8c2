package qpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDynamicTableInsertAndLookup(t *testing.T) {
	table := newDynamicTable(4096, false)
	require.NoError(t, table.SetCapacity(100))

	idx, err := table.Insert("foo", "bar")
	require.NoError(t, err)
	require.Equal(t, uint64(0), idx)
	require.Equal(t, uint64(1), table.InsertedCount())

	field, ok := table.LookupAbsolute(0)
	require.True(t, ok)
	require.Equal(t, HeaderField{Name: "foo", Value: "bar"}, field)

	foundIdx, ok := table.FindNameValue("foo", "bar")
	require.True(t, ok)
	require.Equal(t, uint64(0), foundIdx)
}

func TestDynamicTableEvictsOldestFirst(t *testing.T) {
	table := newDynamicTable(4096, false)
	// Each entry costs 1+3+32 = 36 bytes; capacity fits two.
	require.NoError(t, table.SetCapacity(76))

	_, err := table.Insert("a", "111")
	require.NoError(t, err)
	_, err = table.Insert("b", "222")
	require.NoError(t, err)
	_, err = table.Insert("c", "333")
	require.NoError(t, err)

	require.Equal(t, uint64(1), table.DroppedCount())
	_, ok := table.LookupAbsolute(0)
	require.False(t, ok, "oldest entry should have been evicted")

	field, ok := table.LookupAbsolute(2)
	require.True(t, ok)
	require.Equal(t, HeaderField{Name: "c", Value: "333"}, field)
}

func TestDynamicTableEntryLargerThanCapacityFails(t *testing.T) {
	table := newDynamicTable(4096, false)
	require.NoError(t, table.SetCapacity(10))

	_, err := table.Insert("name", "a-value-much-longer-than-ten-bytes")
	require.Error(t, err)
}

func TestDynamicTableRefusesEvictingUnacknowledgedEntries(t *testing.T) {
	table := newDynamicTable(4096, true)
	require.NoError(t, table.SetCapacity(76))

	_, err := table.Insert("a", "111")
	require.NoError(t, err)
	_, err = table.Insert("b", "222")
	require.NoError(t, err)

	// Neither entry has been acknowledged; shrinking capacity below their
	// combined size must fail rather than silently dropping "a".
	err = table.SetCapacity(38)
	require.Error(t, err)
	require.Equal(t, uint64(0), table.DroppedCount())
}

func TestDynamicTableDuplicate(t *testing.T) {
	table := newDynamicTable(4096, false)
	require.NoError(t, table.SetCapacity(1000))

	_, err := table.Insert("foo", "bar")
	require.NoError(t, err)

	dupIdx, err := table.DuplicateRelative(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), dupIdx)

	field, ok := table.LookupAbsolute(1)
	require.True(t, ok)
	require.Equal(t, HeaderField{Name: "foo", Value: "bar"}, field)
}

func TestDynamicTableFindNameFallsBackToOlderLiveEntry(t *testing.T) {
	table := newDynamicTable(4096, false)
	// Each "dup" entry costs 3+1+32 = 36 bytes; capacity fits two.
	require.NoError(t, table.SetCapacity(74))

	_, err := table.Insert("dup", "1")
	require.NoError(t, err)
	_, err = table.Insert("dup", "2")
	require.NoError(t, err)

	// Inserting a third entry evicts "dup"/"1" (absolute index 0) but
	// leaves "dup"/"2" (absolute index 1) live. FindName must still report
	// the surviving occurrence rather than forgetting the name entirely.
	_, err = table.Insert("other", "3")
	require.NoError(t, err)

	idx, ok := table.FindName("dup")
	require.True(t, ok, "an older live entry with this name should still be found")
	require.Equal(t, uint64(1), idx)

	_, ok = table.FindNameValue("dup", "1")
	require.False(t, ok, "the evicted (name, value) pair must not be found")

	idx, ok = table.FindNameValue("dup", "2")
	require.True(t, ok)
	require.Equal(t, uint64(1), idx)
}

func TestDynamicTableMaxEntries(t *testing.T) {
	table := newDynamicTable(4096, false)
	require.Equal(t, uint64(128), table.MaxEntries())
}

func TestDynamicTableOnInsertCountIncrement(t *testing.T) {
	table := newDynamicTable(4096, true)
	require.NoError(t, table.SetCapacity(1000))

	_, err := table.Insert("a", "1")
	require.NoError(t, err)
	_, err = table.Insert("b", "2")
	require.NoError(t, err)

	require.NoError(t, table.OnInsertCountIncrement(1))
	require.Equal(t, uint64(1), table.KnownReceivedCount())

	err = table.OnInsertCountIncrement(5)
	require.Error(t, err)
}
