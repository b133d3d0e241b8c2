package qpack

// HeaderField is a single decoded or to-be-encoded (name, value) pair.
type HeaderField struct {
	Name  string
	Value string
}

// size is the accounting size used by the dynamic table and by the
// max_header_list_size budget: name + value length plus the 32-byte
// per-entry overhead defined by the QPACK draft.
func (h HeaderField) size() uint64 {
	return uint64(len(h.Name)) + uint64(len(h.Value)) + 32
}

// HeaderList is an ordered sequence of decoded header fields plus the two
// accumulated byte counters callers use for max_header_list_size
// accounting on the application side. A HeaderList whose
// UncompressedHeaderBytes and CompressedHeaderBytes are both zero with a nil Fields slice is the
// over-limit sentinel described in §7.
type HeaderList struct {
	Fields                  []HeaderField
	UncompressedHeaderBytes uint64
	CompressedHeaderBytes   uint64
}
