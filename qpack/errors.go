package qpack

import (
	"errors"
	"fmt"
)

// HTTP/3 error codes carried by the connection-fatal error types below. The
// numeric values match the codes named in the QPACK draft; callers pass
// these through to their ConnectionErrorSink unchanged.
const (
	CodeQPACKDecompressionFailed uint64 = 0x200
	CodeQPACKEncoderStreamError  uint64 = 0x201
	CodeQPACKDecoderStreamError  uint64 = 0x202
)

// errNeedMoreData signals that a codec needs more bytes than are currently
// buffered; it is never surfaced to callers directly, only used internally
// by the instruction decoder and string/varint codecs to decide whether to
// buffer and retry.
var errNeedMoreData = errors.New("qpack: need more data")

// EncoderStreamError reports a malformed or illegal instruction on the
// encoder stream. It is always connection-fatal.
type EncoderStreamError struct {
	Message string
}

func (e *EncoderStreamError) Error() string { return e.Message }

func newEncoderStreamError(format string, a ...interface{}) *EncoderStreamError {
	return &EncoderStreamError{Message: fmt.Sprintf(format, a...)}
}

// DecoderStreamError reports a malformed or illegal instruction on the
// decoder stream. It is always connection-fatal.
type DecoderStreamError struct {
	Message string
}

func (e *DecoderStreamError) Error() string { return e.Message }

func newDecoderStreamError(format string, a ...interface{}) *DecoderStreamError {
	return &DecoderStreamError{Message: fmt.Sprintf(format, a...)}
}

// HeaderBlockError reports a per-stream decoding failure: an incomplete
// prefix, an invalid reference, a Huffman error, or a literal that exceeds
// the configured buffer limit. It is delivered to the stream's Visitor, not
// to the connection error sink.
type HeaderBlockError struct {
	StreamID uint64
	Message  string
}

func (e *HeaderBlockError) Error() string { return e.Message }

func newHeaderBlockError(streamID uint64, format string, a ...interface{}) *HeaderBlockError {
	return &HeaderBlockError{StreamID: streamID, Message: fmt.Sprintf(format, a...)}
}

// BlockedStreamLimitError reports that a request stream would have pushed
// the number of concurrently blocked streams past the peer-advertised
// maximum.
type BlockedStreamLimitError struct {
	StreamID uint64
}

func (e *BlockedStreamLimitError) Error() string {
	return "Limit on number of blocked streams exceeded."
}
