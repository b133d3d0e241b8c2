package qpack

import "fmt"

// HuffmanPreference controls whether the string codec (C3) Huffman-encodes
// outgoing literals.
type HuffmanPreference int

const (
	// HuffmanAuto encodes with Huffman only when it is strictly smaller
	// than the raw bytes.
	HuffmanAuto HuffmanPreference = iota
	// HuffmanAlways always sets the H-flag, even when it doesn't shrink
	// the string; useful for exercising decoders in tests.
	HuffmanAlways
	// HuffmanNever never sets the H-flag.
	HuffmanNever
)

// errStringTooLarge is wrapped with the offending length by decodeString.
var errStringTooLarge = fmt.Errorf("qpack: string literal exceeds configured buffer limit")

// encodeString appends a length-prefixed, optionally Huffman-encoded byte
// string to dst. prefixBits is the width of the length prefix; the H-flag
// occupies the bit immediately above that prefix, per the per-instruction
// bit layouts of §4.4.
func encodeString(
	dst []byte,
	s []byte,
	prefixBits int,
	opcodeBits byte,
	codec StaticHuffmanTables,
	pref HuffmanPreference,
) []byte {
	huffmanFlag := byte(0)
	useHuffman := false

	switch pref {
	case HuffmanAlways:
		useHuffman = true
	case HuffmanAuto:
		useHuffman = codec.EncodedLen(string(s)) < len(s)
	}

	if useHuffman {
		huffmanFlag = 1 << uint(prefixBits)
	}

	if useHuffman {
		encoded := codec.Encode(nil, string(s))
		dst = encodeVarint(dst, uint64(len(encoded)), prefixBits, opcodeBits|huffmanFlag)
		return append(dst, encoded...)
	}

	dst = encodeVarint(dst, uint64(len(s)), prefixBits, opcodeBits)
	return append(dst, s...)
}

// decodeString decodes a length-prefixed, optionally Huffman-encoded byte
// string from block. maxLen bounds the decoded length before any body
// bytes are consumed, so an oversize literal is rejected without buffering
// its full (possibly attacker-controlled) length.
func decodeString(block []byte, prefixBits int, codec StaticHuffmanTables, maxLen uint64) (value []byte, consumed int, err error) {
	if len(block) == 0 {
		return nil, 0, errNeedMoreData
	}

	huffman := block[0]&(1<<uint(prefixBits)) != 0

	length, n, err := decodeVarint(block, prefixBits)
	if err != nil {
		return nil, 0, err
	}

	if length > maxLen {
		return nil, 0, fmt.Errorf("%w: %d bytes", errStringTooLarge, length)
	}

	total := n + int(length)
	if len(block) < total {
		return nil, 0, errNeedMoreData
	}

	raw := block[n:total]
	if !huffman {
		return append([]byte(nil), raw...), total, nil
	}

	decoded, err := codec.Decode(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("qpack: huffman error: %w", err)
	}

	return decoded, total, nil
}
