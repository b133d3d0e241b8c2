// Command qpackdemo exercises one Encoder and one Decoder wired directly
// together, the way two ends of a QUIC connection's encoder/decoder
// streams would be, and logs the round trip of a sample header list. It
// is not an HTTP/3 server: QUIC transport and the HTTP/3 frame layer are
// out of scope for this module (see SPEC_FULL.md §1).
package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/tmoniuszko-opera/quiche/qpack"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	settings := qpack.DefaultSettings()
	if path := os.Getenv("QPACK_SETTINGS_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatal("opening settings file", zap.Error(err))
		}
		defer f.Close()

		settings, err = qpack.LoadSettings(f)
		if err != nil {
			log.Fatal("loading settings", zap.Error(err))
		}
	}

	codec := qpack.NewHuffmanCodec()

	var toDecoder, toEncoder pipeSender
	errSink := loggingErrorSink{log: log}

	decoder := qpack.NewDecoder(settings, codec, &toEncoder, errSink, log.Named("decoder"))
	encoder := qpack.NewEncoder(settings, codec, &toDecoder, log.Named("encoder"))

	toDecoder.deliver = decoder.OnEncoderStreamBytes
	toEncoder.deliver = encoder.FeedDecoderStreamBytes

	if err := encoder.SetDynamicTableCapacity(settings.MaxTableCapacity); err != nil {
		log.Fatal("setting dynamic table capacity", zap.Error(err))
	}

	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "example.com"},
		{Name: "user-agent", Value: "qpackdemo/1.0"},
	}

	block := encoder.EncodeHeaderList(1, fields)
	log.Info("encoded header block", zap.Int("bytes", len(block)))

	visitor := &loggingVisitor{log: log}
	acc := decoder.CreateProgressiveDecoder(1, visitor, 1<<16)
	acc.Decode(block)
	acc.EndHeaderBlock()
}

// pipeSender feeds every write straight to deliver, standing in for the
// unidirectional QUIC streams a real connection would use to carry
// encoder-stream and decoder-stream bytes.
type pipeSender struct {
	deliver func([]byte) error
}

func (p *pipeSender) Write(data []byte) {
	if err := p.deliver(data); err != nil {
		panic(err) // demo only: a real caller reports this via ConnectionErrorSink
	}
}

type loggingErrorSink struct {
	log *zap.Logger
}

func (s loggingErrorSink) OnConnectionError(code uint64, err error) {
	s.log.Error("connection-fatal QPACK error", zap.Uint64("code", code), zap.Error(err))
}

type loggingVisitor struct {
	log *zap.Logger
}

func (v *loggingVisitor) OnDecoded(list qpack.HeaderList) {
	for _, f := range list.Fields {
		v.log.Info("decoded field", zap.String("name", f.Name), zap.String("value", f.Value))
	}
	v.log.Info("decoded header list",
		zap.Int("fields", len(list.Fields)),
		zap.Uint64("uncompressed_bytes", list.UncompressedHeaderBytes),
		zap.Uint64("compressed_bytes", list.CompressedHeaderBytes))
}

func (v *loggingVisitor) OnError(message string) {
	v.log.Error("header block decoding failed", zap.String("message", message))
}
