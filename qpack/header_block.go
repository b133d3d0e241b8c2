package qpack

import "fmt"

// headerBlockPrefix is the two-varint prefix every encoded field section
// starts with (§3).
type headerBlockPrefix struct {
	RequiredInsertCount uint64
	Base                uint64
}

// encodeRequiredInsertCount implements the wire transform of §3: a
// non-zero RIC is encoded as (RIC mod 2*MaxEntries) + 1, so the decoder can
// recover it unambiguously from its own InsertedCount even though the
// dynamic table's absolute index space has long since outgrown a single
// byte.
func encodeRequiredInsertCount(ric, maxEntries uint64) uint64 {
	if ric == 0 || maxEntries == 0 {
		return 0
	}
	return (ric % (2 * maxEntries)) + 1
}

// decodeRequiredInsertCount inverts encodeRequiredInsertCount using the
// decoder's current totalInserts as the disambiguating anchor, per the
// QPACK draft's required insert count decoding algorithm.
func decodeRequiredInsertCount(encoded, maxEntries, totalInserts uint64) (uint64, error) {
	if encoded == 0 {
		return 0, nil
	}
	if maxEntries == 0 {
		return 0, fmt.Errorf("qpack: non-zero required insert count with zero max entries")
	}

	fullRange := 2 * maxEntries
	if encoded > fullRange {
		return 0, fmt.Errorf("qpack: encoded required insert count %d out of range", encoded)
	}

	maxValue := totalInserts + maxEntries
	maxWrapped := (maxValue / fullRange) * fullRange
	ric := maxWrapped + encoded - 1

	if ric > maxValue {
		if ric <= fullRange {
			return 0, fmt.Errorf("qpack: required insert count decodes below zero")
		}
		ric -= fullRange
	}
	if ric == 0 {
		return 0, fmt.Errorf("qpack: required insert count decodes to zero")
	}
	return ric, nil
}

// encodeHeaderBlockPrefix appends the RIC (8-bit prefix) and signed Base
// delta (7-bit prefix, sign at the top bit) to dst.
func encodeHeaderBlockPrefix(dst []byte, ric, base, maxEntries uint64) []byte {
	dst = encodeVarint(dst, encodeRequiredInsertCount(ric, maxEntries), 8, 0)

	var sign byte
	var delta uint64
	if base >= ric {
		delta = base - ric
	} else {
		sign = 0x80
		delta = ric - base
	}
	return encodeVarint(dst, delta, 7, sign)
}

// decodeHeaderBlockPrefix decodes the two prefix varints. totalInserts is
// the decoder's InsertedCount at the time of the call, used only to
// disambiguate the wrapped RIC encoding; it does not affect Base.
func decodeHeaderBlockPrefix(block []byte, maxEntries, totalInserts uint64) (headerBlockPrefix, int, error) {
	encodedRIC, n1, err := decodeVarint(block, 8)
	if err != nil {
		return headerBlockPrefix{}, 0, err
	}

	ric, err := decodeRequiredInsertCount(encodedRIC, maxEntries, totalInserts)
	if err != nil {
		return headerBlockPrefix{}, 0, err
	}

	rest := block[n1:]
	if len(rest) == 0 {
		return headerBlockPrefix{}, 0, errNeedMoreData
	}
	sign := rest[0]&0x80 != 0
	delta, n2, err := decodeVarint(rest, 7)
	if err != nil {
		return headerBlockPrefix{}, 0, err
	}

	var base uint64
	if sign {
		if delta > ric {
			return headerBlockPrefix{}, 0, fmt.Errorf("qpack: base delta underflows required insert count")
		}
		base = ric - delta
	} else {
		base = ric + delta
	}

	return headerBlockPrefix{RequiredInsertCount: ric, Base: base}, n1 + n2, nil
}

// Header-block body instruction opcodes (§4.4), shortest opcode prefix first,
// the order decodeFieldLineInstruction tests them in.
const (
	opIndexedMask, opIndexedVal                 = 0x80, 0x80
	opLiteralNameRefMask, opLiteralNameRefVal   = 0xC0, 0x40
	opLiteralLiteralMask, opLiteralLiteralVal   = 0xE0, 0x20
	opIndexedPostBaseMask, opIndexedPostBaseVal = 0xF0, 0x10
	opLiteralPostBaseMask, opLiteralPostBaseVal = 0xF0, 0x00
)

// fieldLineResolver is the subset of Decoder/Encoder dynamic-table state a
// field line instruction needs to resolve a reference.
type fieldLineResolver interface {
	LookupAbsolute(i uint64) (HeaderField, bool)
	DroppedCount() uint64
}

// decodeFieldLineInstruction decodes one body instruction and returns the
// resulting header field. base and ric come from the block's prefix;
// table is the decoder's dynamic table.
func decodeFieldLineInstruction(
	block []byte,
	base, ric uint64,
	table fieldLineResolver,
	codec StaticHuffmanTables,
	maxLen uint64,
) (HeaderField, int, error) {
	b := block[0]

	switch {
	case b&opIndexedMask == opIndexedVal:
		isStatic := b&0x40 != 0
		index, n, err := decodeVarint(block, 6)
		if err != nil {
			return HeaderField{}, 0, err
		}
		field, err := resolveIndexed(isStatic, index, base, table)
		if err != nil {
			return HeaderField{}, 0, err
		}
		return field, n, nil

	case b&opLiteralNameRefMask == opLiteralNameRefVal:
		isStatic := b&0x10 != 0
		index, n, err := decodeVarint(block, 4)
		if err != nil {
			return HeaderField{}, 0, err
		}
		name, err := resolveIndexedName(isStatic, index, base, table)
		if err != nil {
			return HeaderField{}, 0, err
		}
		value, vn, err := decodeString(block[n:], 7, codec, maxLen)
		if err != nil {
			return HeaderField{}, 0, err
		}
		return HeaderField{Name: name, Value: string(value)}, n + vn, nil

	case b&opLiteralLiteralMask == opLiteralLiteralVal:
		name, n, err := decodeString(block, 3, codec, maxLen)
		if err != nil {
			return HeaderField{}, 0, err
		}
		value, vn, err := decodeString(block[n:], 7, codec, maxLen)
		if err != nil {
			return HeaderField{}, 0, err
		}
		return HeaderField{Name: string(name), Value: string(value)}, n + vn, nil

	case b&opIndexedPostBaseMask == opIndexedPostBaseVal:
		postBase, n, err := decodeVarint(block, 4)
		if err != nil {
			return HeaderField{}, 0, err
		}
		field, err := resolvePostBase(postBase, base, ric, table)
		if err != nil {
			return HeaderField{}, 0, err
		}
		return field, n, nil

	default: // opLiteralPostBaseVal (0000)
		postBase, n, err := decodeVarint(block, 3)
		if err != nil {
			return HeaderField{}, 0, err
		}
		nameField, err := resolvePostBase(postBase, base, ric, table)
		if err != nil {
			return HeaderField{}, 0, err
		}
		value, vn, err := decodeString(block[n:], 7, codec, maxLen)
		if err != nil {
			return HeaderField{}, 0, err
		}
		return HeaderField{Name: nameField.Name, Value: string(value)}, n + vn, nil
	}
}

// resolveIndexed resolves an Indexed Field Line reference (§4.7).
func resolveIndexed(isStatic bool, index, base uint64, table fieldLineResolver) (HeaderField, error) {
	if isStatic {
		field, ok := staticLookup(index)
		if !ok {
			return HeaderField{}, newHeaderBlockError(0, "Static table entry not found.")
		}
		return field, nil
	}

	if index >= base {
		return HeaderField{}, newHeaderBlockError(0, "Invalid relative index.")
	}
	absolute := base - 1 - index
	if absolute < table.DroppedCount() {
		return HeaderField{}, newHeaderBlockError(0, "Invalid relative index.")
	}
	field, ok := table.LookupAbsolute(absolute)
	if !ok {
		return HeaderField{}, newHeaderBlockError(0, "Invalid relative index.")
	}
	return field, nil
}

// resolveIndexedName resolves the name half of a Literal With Name
// Reference instruction.
func resolveIndexedName(isStatic bool, index, base uint64, table fieldLineResolver) (string, error) {
	field, err := resolveIndexed(isStatic, index, base, table)
	if err != nil {
		return "", err
	}
	return field.Name, nil
}

// resolvePostBase resolves a post-Base dynamic reference: absolute index =
// Base + postBaseIndex, valid only while it is still below the block's
// Required Insert Count (§4.7).
func resolvePostBase(postBaseIndex, base, ric uint64, table fieldLineResolver) (HeaderField, error) {
	absolute := base + postBaseIndex
	if absolute >= ric {
		return HeaderField{}, newHeaderBlockError(0, "Invalid post-base index.")
	}
	field, ok := table.LookupAbsolute(absolute)
	if !ok {
		return HeaderField{}, newHeaderBlockError(0, "Invalid post-base index.")
	}
	return field, nil
}

// Field-line encoders, used by the Encoder (C15) to write a header block
// body. Each appends to dst and returns the extended slice.

func encodeIndexedFieldLine(dst []byte, isStatic bool, index uint64) []byte {
	highBits := byte(opIndexedVal)
	if isStatic {
		highBits |= 0x40
	}
	return encodeVarint(dst, index, 6, highBits)
}

func encodeIndexedPostBase(dst []byte, postBaseIndex uint64) []byte {
	return encodeVarint(dst, postBaseIndex, 4, opIndexedPostBaseVal)
}

func encodeLiteralWithNameReference(
	dst []byte,
	isStatic, neverIndex bool,
	nameIndex uint64,
	value string,
	codec StaticHuffmanTables,
	pref HuffmanPreference,
) []byte {
	highBits := byte(opLiteralNameRefVal)
	if neverIndex {
		highBits |= 0x20
	}
	if isStatic {
		highBits |= 0x10
	}
	dst = encodeVarint(dst, nameIndex, 4, highBits)
	return encodeString(dst, []byte(value), 7, 0, codec, pref)
}

func encodeLiteralWithPostBaseNameReference(
	dst []byte,
	neverIndex bool,
	postBaseIndex uint64,
	value string,
	codec StaticHuffmanTables,
	pref HuffmanPreference,
) []byte {
	highBits := byte(opLiteralPostBaseVal)
	if neverIndex {
		highBits |= 0x08
	}
	dst = encodeVarint(dst, postBaseIndex, 3, highBits)
	return encodeString(dst, []byte(value), 7, 0, codec, pref)
}

func encodeLiteralWithLiteralName(
	dst []byte,
	neverIndex bool,
	name, value string,
	codec StaticHuffmanTables,
	pref HuffmanPreference,
) []byte {
	highBits := byte(opLiteralLiteralVal)
	if neverIndex {
		highBits |= 0x10
	}
	dst = encodeString(dst, []byte(name), 3, highBits, codec, pref)
	return encodeString(dst, []byte(value), 7, 0, codec, pref)
}
