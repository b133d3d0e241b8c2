package qpack

// StreamSender is how an encoder-stream or decoder-stream sender hands its
// serialised instruction bytes to the transport. Implementations write to a
// unidirectional QUIC stream; this package never touches the network
// itself (§1 Non-goals).
type StreamSender interface {
	Write(data []byte)
}

// ConnectionErrorSink is where a connection-fatal error (malformed
// encoder/decoder stream data) is reported, so the caller can close the
// connection with the right HTTP/3 error code (§4.4, §5).
type ConnectionErrorSink interface {
	OnConnectionError(code uint64, err error)
}
