// Package qpack implements the QPACK header compression core used by the
// HTTP/3 binding of a QUIC connection: the dynamic table, the instruction
// codecs, the encoder-stream and decoder-stream instruction streams, the
// per-request encoded field section format, and the decoded-headers
// accumulator that assembles a finished header list for a request.
//
// QUIC transport, the HTTP/3 frame layer, and TLS are not part of this
// package; callers supply StreamSender, ConnectionErrorSink and
// StaticHuffmanTables implementations (NewHuffmanCodec returns the default
// StaticHuffmanTables).
package qpack
