package qpack

import "fmt"

// dynamicEntry is one live insertion, addressed by its absolute index.
// Absolute indices increase monotonically for the life of the table; they
// are never reused, unlike the teacher's HPACK slice which renumbers
// entries relative to the table's current front on every eviction.
type dynamicEntry struct {
	HeaderField
	absoluteIndex uint64
}

// nameValueKey is the composite lookup key for exact (name, value) matches.
type nameValueKey struct{ name, value string }

// DynamicTable is the size-bounded FIFO of dynamic-table entries shared
// (in spirit, not in memory) between one encoder and one decoder. Both the
// Encoder and the Decoder own one instance each; per §5 neither is ever
// touched from more than one goroutine.
//
// trackAcknowledgements distinguishes the two roles: the encoder's table
// must never evict an entry the decoder may not have received yet
// (protected by knownReceivedCount, raised only by acknowledgements from
// the decoder stream); the decoder's table has no such peer to wait for,
// eviction is a pure function of insertions and SetCapacity calls.
type DynamicTable struct {
	capacity    uint64
	maxCapacity uint64
	totalSize   uint64

	insertedCount      uint64
	droppedCount       uint64
	knownReceivedCount uint64

	trackAcknowledgements bool

	entries           []dynamicEntry
	nameToLatest      map[string]uint64
	nameValueToLatest map[nameValueKey]uint64
}

// newDynamicTable builds a table bounded by maxCapacity, the peer-advertised
// upper bound from settings (§6, QPACK_MAX_TABLE_CAPACITY).
func newDynamicTable(maxCapacity uint64, trackAcknowledgements bool) *DynamicTable {
	return &DynamicTable{
		maxCapacity:           maxCapacity,
		trackAcknowledgements: trackAcknowledgements,
		nameToLatest:          make(map[string]uint64),
		nameValueToLatest:     make(map[nameValueKey]uint64),
	}
}

// Capacity returns the table's current capacity in bytes.
func (t *DynamicTable) Capacity() uint64 { return t.capacity }

// MaxEntries is floor(maximum_dynamic_table_capacity / 32), used by RIC
// encoding (§3).
func (t *DynamicTable) MaxEntries() uint64 { return t.maxCapacity / 32 }

// InsertedCount, DroppedCount and KnownReceivedCount expose the table's
// three counters (§3 invariant b: dropped <= known-received <= inserted).
func (t *DynamicTable) InsertedCount() uint64      { return t.insertedCount }
func (t *DynamicTable) DroppedCount() uint64       { return t.droppedCount }
func (t *DynamicTable) KnownReceivedCount() uint64 { return t.knownReceivedCount }

// SetCapacity updates the table's capacity, evicting from the oldest end
// until the size invariant holds again. It fails if the peer (or local
// policy) tries to exceed the negotiated maximum.
func (t *DynamicTable) SetCapacity(c uint64) error {
	if c > t.maxCapacity {
		return fmt.Errorf("qpack: dynamic table capacity %d exceeds maximum %d", c, t.maxCapacity)
	}
	t.capacity = c
	return t.evict()
}

// evict drops entries from the oldest end until totalSize <= capacity. On
// an acknowledgement-tracking table it will never drop an entry at or past
// knownReceivedCount; if that leaves the table still over capacity, the
// caller (the encoder) violated its own responsibility to avoid this, and
// evict reports it rather than silently evicting an unacknowledged entry.
func (t *DynamicTable) evict() error {
	drop := 0
	size := t.totalSize

	for size > t.capacity && drop < len(t.entries) {
		e := t.entries[drop]
		if t.trackAcknowledgements && e.absoluteIndex >= t.knownReceivedCount {
			break
		}
		size -= e.size()
		drop++
	}

	if drop > 0 {
		t.entries = t.entries[drop:]
		t.droppedCount += uint64(drop)
		t.totalSize = size
		t.pruneLookupMaps()
	}

	if t.totalSize > t.capacity {
		return fmt.Errorf("qpack: cannot evict unacknowledged entries to reach capacity %d", t.capacity)
	}
	return nil
}

// pruneLookupMaps rebuilds both lookup maps from the entries still live
// after an eviction, so they keep reflecting exactly the live entries (§3
// invariant c) rather than dropping a name outright when only its most
// recent occurrence was evicted while an older entry with that name
// remains. entries is oldest-first, so iterating forward and always
// overwriting leaves each name/(name,value) pointing at its most recent
// surviving occurrence. This is a linear rebuild, which is fine since it
// only runs after an eviction, not on every lookup.
func (t *DynamicTable) pruneLookupMaps() {
	for name := range t.nameToLatest {
		delete(t.nameToLatest, name)
	}
	for key := range t.nameValueToLatest {
		delete(t.nameValueToLatest, key)
	}
	for _, e := range t.entries {
		t.nameToLatest[e.Name] = e.absoluteIndex
		t.nameValueToLatest[nameValueKey{e.Name, e.Value}] = e.absoluteIndex
	}
}

// Insert adds a new entry, evicting older ones as needed to respect
// capacity. It fails if the entry alone is larger than the total capacity,
// or, on an acknowledgement-tracking table, if room for it could only be
// made by evicting an unacknowledged entry. A failed Insert leaves the
// table unchanged.
func (t *DynamicTable) Insert(name, value string) (absoluteIndex uint64, err error) {
	field := HeaderField{Name: name, Value: value}
	if field.size() > t.capacity {
		return 0, fmt.Errorf("qpack: entry is larger than the total table capacity")
	}

	if t.trackAcknowledgements {
		size := t.totalSize + field.size()
		for _, e := range t.entries {
			if size <= t.capacity || e.absoluteIndex >= t.knownReceivedCount {
				break
			}
			size -= e.size()
		}
		if size > t.capacity {
			return 0, fmt.Errorf("qpack: cannot evict unacknowledged entries to make room for new entry")
		}
	}

	absoluteIndex = t.insertedCount
	t.entries = append(t.entries, dynamicEntry{HeaderField: field, absoluteIndex: absoluteIndex})
	t.totalSize += field.size()
	t.insertedCount++

	if !t.trackAcknowledgements {
		t.knownReceivedCount = t.insertedCount
	}

	t.nameToLatest[name] = absoluteIndex
	t.nameValueToLatest[nameValueKey{name, value}] = absoluteIndex

	if err := t.evict(); err != nil {
		return absoluteIndex, err
	}
	return absoluteIndex, nil
}

// DuplicateRelative inserts a copy of the entry currently at relativeIndex
// (0 = most recently inserted entry), per the encoder-stream Duplicate
// instruction (§4.4).
func (t *DynamicTable) DuplicateRelative(relativeIndex uint64) (absoluteIndex uint64, err error) {
	entry, ok := t.lookupRelativeToInsertedCount(relativeIndex)
	if !ok {
		return 0, fmt.Errorf("qpack: duplicate references invalid index %d", relativeIndex)
	}
	return t.Insert(entry.Name, entry.Value)
}

// LookupAbsolute returns the entry at absolute index i, or false if it has
// already been dropped or was never inserted.
func (t *DynamicTable) LookupAbsolute(i uint64) (HeaderField, bool) {
	if i < t.droppedCount || i >= t.insertedCount {
		return HeaderField{}, false
	}
	e := t.entries[i-t.droppedCount]
	return e.HeaderField, true
}

// lookupRelativeToInsertedCount resolves the encoder-stream indexing
// convention: relative index 0 is the most recently inserted entry.
func (t *DynamicTable) lookupRelativeToInsertedCount(relativeIndex uint64) (HeaderField, bool) {
	if relativeIndex >= t.insertedCount {
		return HeaderField{}, false
	}
	return t.LookupAbsolute(t.insertedCount - 1 - relativeIndex)
}

// FindName returns the absolute index of the most recently inserted entry
// with the given name, for the encoder's strategy step 3 (§4.9).
func (t *DynamicTable) FindName(name string) (uint64, bool) {
	idx, ok := t.nameToLatest[name]
	return idx, ok
}

// FindNameValue returns the absolute index of the most recently inserted
// entry with an exact (name, value) match, for the encoder's strategy
// step 2 (§4.9).
func (t *DynamicTable) FindNameValue(name, value string) (uint64, bool) {
	idx, ok := t.nameValueToLatest[nameValueKey{name, value}]
	return idx, ok
}

// OnInsertCountIncrement raises knownReceivedCount by delta, per the
// decoder stream's Insert Count Increment instruction consumed by the
// encoder (§4.3/§4.6). It is only meaningful on an acknowledgement-
// tracking (encoder-side) table.
func (t *DynamicTable) OnInsertCountIncrement(delta uint64) error {
	if delta == 0 {
		return fmt.Errorf("qpack: increment must be non-zero")
	}
	next := t.knownReceivedCount + delta
	if next > t.insertedCount {
		return fmt.Errorf("qpack: increment would exceed inserted count")
	}
	t.knownReceivedCount = next
	return nil
}

// RaiseKnownReceivedCount bumps knownReceivedCount up to at least v, used
// when a Section Acknowledgement implies the decoder must have received
// insertions up to the acknowledged stream's largest reference (§4.3/§4.6).
func (t *DynamicTable) RaiseKnownReceivedCount(v uint64) {
	if v > t.knownReceivedCount {
		t.knownReceivedCount = v
	}
}
