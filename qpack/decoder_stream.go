package qpack

import "fmt"

// Decoder-stream instruction opcodes (§4.4).
const (
	opSectionAckMask, opSectionAckVal           = 0x80, 0x80
	opStreamCancelMask, opStreamCancelVal       = 0xC0, 0x40
	opInsertCountIncrMask, opInsertCountIncrVal = 0xC0, 0x00
)

// decoderStreamSender is C10: emits header-acknowledgement, stream-
// cancellation and insert-count-increment instructions, owned by the
// Decoder and read by the peer's Encoder.
type decoderStreamSender struct {
	out StreamSender
}

func newDecoderStreamSender(out StreamSender) *decoderStreamSender {
	return &decoderStreamSender{out: out}
}

// SendSectionAcknowledgement emits Section Acknowledgement: opcode 1,
// 7-bit stream id.
func (s *decoderStreamSender) SendSectionAcknowledgement(streamID uint64) {
	s.out.Write(encodeVarint(nil, streamID, 7, opSectionAckVal))
}

// SendStreamCancellation emits Stream Cancellation: opcode 01, 6-bit
// stream id.
func (s *decoderStreamSender) SendStreamCancellation(streamID uint64) {
	s.out.Write(encodeVarint(nil, streamID, 6, opStreamCancelVal))
}

// SendInsertCountIncrement emits Insert Count Increment: opcode 00, 6-bit
// increment.
func (s *decoderStreamSender) SendInsertCountIncrement(increment uint64) {
	s.out.Write(encodeVarint(nil, increment, 6, opInsertCountIncrVal))
}

// decoderStreamDelegate receives the decoded instructions from the peer's
// decoder stream; the Encoder implements this (§4.6).
type decoderStreamDelegate interface {
	OnInsertCountIncrement(increment uint64) error
	OnSectionAcknowledgement(streamID uint64)
	OnStreamCancellation(streamID uint64)
}

// decoderStreamReceiver is C11: consumes the peer's decoder-stream bytes in
// wire order, owned by the Encoder.
type decoderStreamReceiver struct {
	delegate decoderStreamDelegate
	buf      []byte
}

func newDecoderStreamReceiver(delegate decoderStreamDelegate) *decoderStreamReceiver {
	return &decoderStreamReceiver{delegate: delegate}
}

// Feed appends data to the buffered tail and dispatches as many complete
// instructions as are available. Errors are always connection-fatal
// (§4.6); the caller is expected to report them as DecoderStreamError.
func (r *decoderStreamReceiver) Feed(data []byte) error {
	r.buf = append(r.buf, data...)

	for len(r.buf) > 0 {
		n, err := r.decodeOne(r.buf)
		if err == errNeedMoreData {
			break
		}
		if err != nil {
			return newDecoderStreamError("%s", err.Error())
		}
		r.buf = r.buf[n:]
	}
	return nil
}

func (r *decoderStreamReceiver) decodeOne(block []byte) (int, error) {
	b := block[0]

	switch {
	case b&opSectionAckMask == opSectionAckVal:
		streamID, n, err := decodeVarint(block, 7)
		if err != nil {
			return 0, err
		}
		r.delegate.OnSectionAcknowledgement(streamID)
		return n, nil

	case b&opStreamCancelMask == opStreamCancelVal:
		streamID, n, err := decodeVarint(block, 6)
		if err != nil {
			return 0, err
		}
		r.delegate.OnStreamCancellation(streamID)
		return n, nil

	default:
		increment, n, err := decodeVarint(block, 6)
		if err != nil {
			return 0, err
		}
		if err := r.delegate.OnInsertCountIncrement(increment); err != nil {
			return 0, fmt.Errorf("insert count increment: %w", err)
		}
		return n, nil
	}
}
