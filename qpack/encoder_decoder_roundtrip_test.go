package qpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// wiredPair builds an Encoder and a Decoder connected back-to-back: the
// encoder's encoder-stream/decoder-stream writes are fed directly into the
// decoder's corresponding receivers and vice versa, exactly as a QUIC
// connection would deliver them.
type wiredPair struct {
	t       *testing.T
	encoder *Encoder
	decoder *Decoder
}

func newWiredPair(t *testing.T) *wiredPair {
	settings := DefaultSettings()
	codec := NewHuffmanCodec()

	p := &wiredPair{t: t}
	encOut := &forwardingSender{}
	decOut := &forwardingSender{}

	p.encoder = NewEncoder(settings, codec, encOut, nil)
	p.decoder = NewDecoder(settings, codec, decOut, &fakeErrorSink{}, nil)

	encOut.forward = func(b []byte) { require.NoError(t, p.decoder.OnEncoderStreamBytes(b)) }
	decOut.forward = func(b []byte) { require.NoError(t, p.encoder.FeedDecoderStreamBytes(b)) }

	require.NoError(t, p.encoder.SetDynamicTableCapacity(1000))
	return p
}

type forwardingSender struct {
	forward func([]byte)
}

func (s *forwardingSender) Write(data []byte) { s.forward(data) }

func (p *wiredPair) roundTrip(streamID uint64, fields []HeaderField, maxHeaderListSize uint64) *HeaderList {
	block := p.encoder.EncodeHeaderList(streamID, fields)

	v := &recordingVisitor{}
	acc := p.decoder.CreateProgressiveDecoder(streamID, v, maxHeaderListSize)
	acc.Decode(block)
	acc.EndHeaderBlock()

	require.Empty(p.t, v.errMsg)
	require.NotNil(p.t, v.decoded)
	return v.decoded
}

func TestEncodeDecodeRoundTripStaticOnly(t *testing.T) {
	p := newWiredPair(t)

	fields := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":status", Value: "200"},
	}
	got := p.roundTrip(1, fields, 1<<20)
	require.Equal(t, fields, got.Fields)
}

func TestEncodeDecodeRoundTripWithNewDynamicEntries(t *testing.T) {
	p := newWiredPair(t)

	fields := []HeaderField{
		{Name: "x-custom-header", Value: "some-value"},
		{Name: "x-custom-header", Value: "some-value"}, // repeated: should reuse the dynamic entry
	}
	got := p.roundTrip(1, fields, 1<<20)
	require.Equal(t, fields, got.Fields)
}

func TestEncodeDecodeRoundTripReusesAcrossHeaderBlocks(t *testing.T) {
	p := newWiredPair(t)

	first := []HeaderField{{Name: "x-trace-id", Value: "abc123"}}
	got := p.roundTrip(1, first, 1<<20)
	require.Equal(t, first, got.Fields)

	second := []HeaderField{{Name: "x-trace-id", Value: "abc123"}}
	got = p.roundTrip(3, second, 1<<20)
	require.Equal(t, second, got.Fields)
}

func TestEncodeDecodeRoundTripUncompressedByteCount(t *testing.T) {
	p := newWiredPair(t)

	fields := []HeaderField{{Name: "foo", Value: "bar"}, {Name: "baz", Value: "qux"}}
	got := p.roundTrip(1, fields, 1<<20)

	var want uint64
	for _, f := range fields {
		want += uint64(len(f.Name) + len(f.Value))
	}
	require.Equal(t, want, got.UncompressedHeaderBytes)
}
