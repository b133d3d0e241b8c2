package qpack

import "golang.org/x/net/http2/hpack"

// StaticHuffmanTables is the external service the string literal codec
// (C3) relies on to Huffman-encode and decode field names/values. QPACK
// reuses HPACK's static canonical Huffman code verbatim (RFC 7541 Appendix
// B); this package does not re-derive that 256-symbol code table, it
// delegates to the same table already implemented and fuzz-tested in the
// standard HTTP/2 ecosystem.
type StaticHuffmanTables interface {
	// EncodedLen returns the number of bytes s would occupy Huffman-encoded,
	// without allocating the encoding itself. The string codec uses this to
	// decide whether the H-flag is worth setting.
	EncodedLen(s string) int

	// Encode appends the Huffman encoding of s to dst and returns the result.
	Encode(dst []byte, s string) []byte

	// Decode returns the Huffman-decoded bytes of v, or a decoding error:
	// an invalid code, an EOS symbol encountered mid-string, or trailing
	// padding bits that are not all ones.
	Decode(v []byte) ([]byte, error)
}

// huffmanCodec is the default StaticHuffmanTables, backed by
// golang.org/x/net/http2/hpack's canonical Huffman implementation.
type huffmanCodec struct{}

// NewHuffmanCodec returns the default StaticHuffmanTables implementation.
func NewHuffmanCodec() StaticHuffmanTables { return huffmanCodec{} }

func (huffmanCodec) EncodedLen(s string) int {
	return int(hpack.HuffmanEncodeLength(s))
}

func (huffmanCodec) Encode(dst []byte, s string) []byte {
	return hpack.AppendHuffmanString(dst, s)
}

func (huffmanCodec) Decode(v []byte) ([]byte, error) {
	s, err := hpack.HuffmanDecodeToString(v)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
