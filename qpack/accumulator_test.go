package qpack

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingVisitor struct {
	decoded   *HeaderList
	errMsg    string
	gotResult bool
}

func (v *recordingVisitor) OnDecoded(list HeaderList) {
	v.decoded = &list
	v.gotResult = true
}

func (v *recordingVisitor) OnError(message string) {
	v.errMsg = message
	v.gotResult = true
}

type fakeErrorSink struct {
	code uint64
	err  error
}

func (s *fakeErrorSink) OnConnectionError(code uint64, err error) {
	s.code, s.err = code, err
}

func newTestDecoder() (*Decoder, *recordingSender, *fakeErrorSink) {
	decStreamOut := &recordingSender{}
	sink := &fakeErrorSink{}
	d := NewDecoder(DefaultSettings(), NewHuffmanCodec(), decStreamOut, sink, nil)
	return d, decStreamOut, sink
}

func mustHex(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestScenarioEmptyPrefixOnly(t *testing.T) {
	d, _, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, ""))
	acc.EndHeaderBlock()

	require.Equal(t, "Incomplete header data prefix.", v.errMsg)
}

func TestScenarioTruncatedPrefix(t *testing.T) {
	d, _, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "00"))
	acc.EndHeaderBlock()

	require.Equal(t, "Incomplete header data prefix.", v.errMsg)
}

func TestScenarioEmptyHeaderList(t *testing.T) {
	d, decStreamOut, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "0000"))
	acc.EndHeaderBlock()

	require.NotNil(t, v.decoded)
	require.Empty(t, v.decoded.Fields)
	require.Equal(t, uint64(0), v.decoded.UncompressedHeaderBytes)
	require.Equal(t, uint64(2), v.decoded.CompressedHeaderBytes)
	require.Empty(t, decStreamOut.all(), "a block with RequiredInsertCount 0 has nothing to acknowledge")
}

func TestScenarioLiteralFooBar(t *testing.T) {
	d, _, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "000023666f6f03626172"))
	acc.EndHeaderBlock()

	require.NotNil(t, v.decoded)
	require.Equal(t, []HeaderField{{Name: "foo", Value: "bar"}}, v.decoded.Fields)
	require.Equal(t, uint64(6), v.decoded.UncompressedHeaderBytes)
	require.Equal(t, uint64(10), v.decoded.CompressedHeaderBytes)
}

func TestScenarioTruncatedBody(t *testing.T) {
	d, _, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "00002366"))
	acc.EndHeaderBlock()

	require.Equal(t, "Incomplete header block.", v.errMsg)
}

func TestScenarioInvalidStaticReference(t *testing.T) {
	d, _, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "0000ff23ff24"))

	require.Equal(t, "Static table entry not found.", v.errMsg)
}

func TestScenarioBlockedThenUnblock(t *testing.T) {
	d, decStreamOut, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "020080"))
	acc.EndHeaderBlock()
	require.False(t, v.gotResult, "should still be blocked")

	encSender := &recordingSender{}
	es := newEncoderStreamSender(encSender, NewHuffmanCodec(), HuffmanNever)
	es.SendSetCapacity(100)
	es.SendInsertWithoutNameReference("foo", "bar")

	require.NoError(t, d.OnEncoderStreamBytes(encSender.all()))

	require.NotNil(t, v.decoded)
	require.Equal(t, []HeaderField{{Name: "foo", Value: "bar"}}, v.decoded.Fields)
	require.Equal(t, []byte{0x81}, decStreamOut.all()[len(decStreamOut.all())-1:])
}

func TestScenarioUnblockThenError(t *testing.T) {
	d, _, _ := newTestDecoder()
	v := &recordingVisitor{}
	acc := d.CreateProgressiveDecoder(1, v, 1<<20)

	acc.Decode(mustHex(t, "0200"))
	acc.Decode(mustHex(t, "80"))
	acc.Decode(mustHex(t, "81"))

	encSender := &recordingSender{}
	es := newEncoderStreamSender(encSender, NewHuffmanCodec(), HuffmanNever)
	es.SendSetCapacity(100)
	es.SendInsertWithoutNameReference("foo", "bar")

	require.NoError(t, d.OnEncoderStreamBytes(encSender.all()))

	require.Equal(t, "Invalid relative index.", v.errMsg)
}

func TestScenarioOverLimitList(t *testing.T) {
	d, decStreamOut, _ := newTestDecoder()
	v := &recordingVisitor{}
	// A tiny max_header_list_size so even one short field trips it.
	acc := d.CreateProgressiveDecoder(1, v, 10)

	acc.Decode(mustHex(t, "000023666f6f03626172"))
	acc.EndHeaderBlock()

	require.NotNil(t, v.decoded)
	require.Empty(t, v.decoded.Fields)
	require.Equal(t, uint64(0), v.decoded.UncompressedHeaderBytes)
	require.Equal(t, uint64(0), v.decoded.CompressedHeaderBytes)
	require.Empty(t, decStreamOut.all(), "a block with RequiredInsertCount 0 has nothing to acknowledge")
}
