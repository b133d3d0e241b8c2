package qpack

import "fmt"

// Encoder-stream instruction opcodes (§4.4), matched high-bits first since
// the 1T and 01H forms overlap the 001 and 000 prefixes of the others.
const (
	opSetCapacityMask, opSetCapacityVal                   = 0xE0, 0x20
	opInsertWithNameRefMask, opInsertWithNameRefVal       = 0x80, 0x80
	opInsertWithoutNameRefMask, opInsertWithoutNameRefVal = 0xC0, 0x40
	opDuplicateMask, opDuplicateVal                       = 0xE0, 0x00
)

// encoderStreamSender is C8: it serialises encoder-stream instructions and
// hands the bytes to the peer's unidirectional stream.
type encoderStreamSender struct {
	out   StreamSender
	codec StaticHuffmanTables
	pref  HuffmanPreference
}

func newEncoderStreamSender(out StreamSender, codec StaticHuffmanTables, pref HuffmanPreference) *encoderStreamSender {
	return &encoderStreamSender{out: out, codec: codec, pref: pref}
}

// SendSetCapacity emits Set Dynamic Table Capacity: opcode 001, 5-bit prefix.
func (s *encoderStreamSender) SendSetCapacity(capacity uint64) {
	s.out.Write(encodeVarint(nil, capacity, 5, opSetCapacityVal))
}

// SendInsertWithNameReference emits Insert With Name Reference: opcode 1T,
// 6-bit name index, then the value string.
func (s *encoderStreamSender) SendInsertWithNameReference(isStatic bool, nameIndex uint64, value string) {
	highBits := byte(opInsertWithNameRefVal)
	if isStatic {
		highBits |= 0x40
	}
	buf := encodeVarint(nil, nameIndex, 6, highBits)
	buf = encodeString(buf, []byte(value), 7, 0, s.codec, s.pref)
	s.out.Write(buf)
}

// SendInsertWithoutNameReference emits Insert Without Name Reference:
// opcode 01H, 5-bit name length, name string, then value string.
func (s *encoderStreamSender) SendInsertWithoutNameReference(name, value string) {
	buf := encodeString(nil, []byte(name), 5, opInsertWithoutNameRefVal, s.codec, s.pref)
	buf = encodeString(buf, []byte(value), 7, 0, s.codec, s.pref)
	s.out.Write(buf)
}

// SendDuplicate emits Duplicate: opcode 000, 5-bit prefix.
func (s *encoderStreamSender) SendDuplicate(relativeIndex uint64) {
	s.out.Write(encodeVarint(nil, relativeIndex, 5, opDuplicateVal))
}

// encoderStreamReceiver is C9: it consumes the remote peer's encoder-stream
// bytes in wire order and mutates the local dynamic table. It buffers a
// partial instruction across Feed calls, since instructions need not align
// with QUIC stream read boundaries.
type encoderStreamReceiver struct {
	table *DynamicTable
	codec StaticHuffmanTables
	maxLen uint64

	buf []byte
}

func newEncoderStreamReceiver(table *DynamicTable, codec StaticHuffmanTables, maxLen uint64) *encoderStreamReceiver {
	return &encoderStreamReceiver{table: table, codec: codec, maxLen: maxLen}
}

// Feed appends data to the buffered tail and decodes as many complete
// instructions as are available. It returns the number of entries
// inserted (via Insert/Duplicate/InsertWithoutNameRef), so the caller can
// re-attempt progressive decoders blocked on those insertions (§4.5, the
// two-phase re-entry pattern of §9).
func (r *encoderStreamReceiver) Feed(data []byte) (inserted int, err error) {
	r.buf = append(r.buf, data...)

	for len(r.buf) > 0 {
		n, didInsert, err := r.decodeOne(r.buf)
		if err == errNeedMoreData {
			break
		}
		if err != nil {
			return inserted, newEncoderStreamError("%s", err.Error())
		}
		r.buf = r.buf[n:]
		if didInsert {
			inserted++
		}
	}

	return inserted, nil
}

func (r *encoderStreamReceiver) decodeOne(block []byte) (consumed int, inserted bool, err error) {
	b := block[0]

	switch {
	case b&opInsertWithNameRefMask == opInsertWithNameRefVal:
		return r.decodeInsertWithNameReference(block)
	case b&opInsertWithoutNameRefMask == opInsertWithoutNameRefVal:
		return r.decodeInsertWithoutNameReference(block)
	case b&opSetCapacityMask == opSetCapacityVal:
		return r.decodeSetCapacity(block)
	default:
		return r.decodeDuplicate(block)
	}
}

func (r *encoderStreamReceiver) decodeInsertWithNameReference(block []byte) (int, bool, error) {
	isStatic := block[0]&0x40 != 0
	nameIndex, n, err := decodeVarint(block, 6)
	if err != nil {
		return 0, false, err
	}

	var name string
	if isStatic {
		field, ok := staticLookup(nameIndex)
		if !ok {
			return 0, false, fmt.Errorf("qpack: insert references invalid static index %d", nameIndex)
		}
		name = field.Name
	} else {
		field, ok := r.table.lookupRelativeToInsertedCount(nameIndex)
		if !ok {
			return 0, false, fmt.Errorf("qpack: insert references invalid dynamic index %d", nameIndex)
		}
		name = field.Name
	}

	value, vn, err := decodeString(block[n:], 7, r.codec, r.maxLen)
	if err != nil {
		return 0, false, err
	}

	if _, err := r.table.Insert(name, string(value)); err != nil {
		return 0, false, err
	}
	return n + vn, true, nil
}

func (r *encoderStreamReceiver) decodeInsertWithoutNameReference(block []byte) (int, bool, error) {
	name, n, err := decodeString(block, 5, r.codec, r.maxLen)
	if err != nil {
		return 0, false, err
	}

	value, vn, err := decodeString(block[n:], 7, r.codec, r.maxLen)
	if err != nil {
		return 0, false, err
	}

	if _, err := r.table.Insert(string(name), string(value)); err != nil {
		return 0, false, err
	}
	return n + vn, true, nil
}

func (r *encoderStreamReceiver) decodeSetCapacity(block []byte) (int, bool, error) {
	capacity, n, err := decodeVarint(block, 5)
	if err != nil {
		return 0, false, err
	}
	if err := r.table.SetCapacity(capacity); err != nil {
		return 0, false, err
	}
	return n, false, nil
}

func (r *encoderStreamReceiver) decodeDuplicate(block []byte) (int, bool, error) {
	index, n, err := decodeVarint(block, 5)
	if err != nil {
		return 0, false, err
	}
	if _, err := r.table.DuplicateRelative(index); err != nil {
		return 0, false, err
	}
	return n, true, nil
}
