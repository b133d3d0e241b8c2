package qpack

import "go.uber.org/zap"

// decoderState is the per-request state machine of §3/§4.7.
type decoderState uint8

const (
	stateReadingPrefix decoderState = iota
	stateBody
	stateBlocked
	stateDone
	stateError
)

// progressiveDecoderHost is the subset of Decoder a progressiveDecoder
// needs: blocked-stream bookkeeping and the decoder-stream sender. The
// registry itself only ever sees stream ids (§3 "referenced weakly"); the
// host is what lets a progressiveDecoder reach it without holding a
// pointer back into Decoder's full state.
type progressiveDecoderHost interface {
	registerBlocked(streamID uint64) error
	deregisterBlocked(streamID uint64)
	sendSectionAcknowledgement(streamID, requiredInsertCount uint64)
}

// progressiveDecoder is C12: the per-request-stream state machine that
// turns encoded field-section bytes into a HeaderList, blocking when its
// Required Insert Count is not yet satisfied.
type progressiveDecoder struct {
	streamID uint64
	table    *DynamicTable
	codec    StaticHuffmanTables
	host     progressiveDecoderHost
	log      *zap.Logger

	maxStringLiteralLength uint64
	maxHeaderListSize      uint64

	state  decoderState
	buf    []byte
	ended  bool
	prefix headerBlockPrefix

	fields            []HeaderField
	runningSize       uint64
	overLimit         bool
	uncompressedBytes uint64
	compressedBytes   uint64
}

func newProgressiveDecoder(
	streamID uint64,
	table *DynamicTable,
	codec StaticHuffmanTables,
	host progressiveDecoderHost,
	maxStringLiteralLength, maxHeaderListSize uint64,
	log *zap.Logger,
) *progressiveDecoder {
	return &progressiveDecoder{
		streamID:               streamID,
		table:                  table,
		codec:                  codec,
		host:                   host,
		log:                    log,
		maxStringLiteralLength: maxStringLiteralLength,
		maxHeaderListSize:      maxHeaderListSize,
		state:                  stateReadingPrefix,
	}
}

// feed appends data and makes as much progress as the current buffer
// allows. It returns a HeaderBlockError if parsing fails; it never returns
// a finished list directly — finalisation only happens via endHeaderBlock
// or unblock, matching §4.10 (decode() only fires on_error synchronously).
func (d *progressiveDecoder) feed(data []byte) error {
	if d.state == stateDone || d.state == stateError {
		return nil
	}

	d.buf = append(d.buf, data...)
	if d.state == stateBlocked {
		return nil
	}

	return d.advance()
}

// advance drives the state machine as far as the buffered bytes allow
// without blocking on the network.
func (d *progressiveDecoder) advance() error {
	if d.state == stateReadingPrefix {
		if err := d.readPrefix(); err != nil || d.state != stateBody {
			return err
		}
	}

	if d.state == stateBody {
		return d.runBody()
	}
	return nil
}

func (d *progressiveDecoder) readPrefix() error {
	prefix, n, err := decodeHeaderBlockPrefix(d.buf, d.table.MaxEntries(), d.table.InsertedCount())
	if err == errNeedMoreData {
		return nil
	}
	if err != nil {
		return d.fail("Incomplete header data prefix.")
	}

	d.buf = d.buf[n:]
	d.prefix = prefix
	d.compressedBytes += uint64(n)

	if prefix.RequiredInsertCount <= d.table.InsertedCount() {
		d.state = stateBody
		return nil
	}

	if err := d.host.registerBlocked(d.streamID); err != nil {
		return d.failWith(err)
	}
	d.state = stateBlocked
	if d.log != nil {
		d.log.Debug("progressive decoder blocked",
			zap.Uint64("stream", d.streamID),
			zap.Uint64("required_insert_count", prefix.RequiredInsertCount))
	}
	return nil
}

func (d *progressiveDecoder) runBody() error {
	for len(d.buf) > 0 {
		field, n, err := decodeFieldLineInstruction(d.buf, d.prefix.Base, d.prefix.RequiredInsertCount, d.table, d.codec, d.maxStringLiteralLength)
		if err == errNeedMoreData {
			return nil
		}
		if err != nil {
			if hbe, ok := err.(*HeaderBlockError); ok {
				return d.fail(hbe.Message)
			}
			return d.fail(err.Error())
		}

		d.buf = d.buf[n:]
		d.compressedBytes += uint64(n)
		d.uncompressedBytes += uint64(len(field.Name) + len(field.Value))
		d.runningSize += field.size()
		if d.runningSize > d.maxHeaderListSize {
			d.overLimit = true
		}
		d.fields = append(d.fields, field)
	}
	return nil
}

// unblock is called by the Decoder (via the host/registry two-phase
// pattern of §9) once the table's InsertedCount reaches this block's
// Required Insert Count. It returns a finished list if the block was
// already fully buffered and closed.
func (d *progressiveDecoder) unblock() (*HeaderList, error) {
	if d.state != stateBlocked {
		return nil, nil
	}

	d.host.deregisterBlocked(d.streamID)
	d.state = stateBody

	if err := d.runBody(); err != nil {
		return nil, err
	}
	return d.drainIfEnded()
}

// endHeaderBlock is called when the owning stream signals no more bytes
// are coming. Per §4.10 it must be safe even before any bytes arrived.
func (d *progressiveDecoder) endHeaderBlock() (*HeaderList, error) {
	switch d.state {
	case stateDone, stateError:
		return nil, nil
	case stateReadingPrefix:
		return nil, d.fail("Incomplete header data prefix.")
	case stateBlocked:
		d.ended = true
		return nil, nil
	default: // stateBody
		d.ended = true
		return d.drainIfEnded()
	}
}

// drainIfEnded finalises the block if it has been closed and fully
// parsed, or reports an incomplete block if closed with a partial
// instruction still buffered.
func (d *progressiveDecoder) drainIfEnded() (*HeaderList, error) {
	if !d.ended {
		return nil, nil
	}
	if len(d.buf) > 0 {
		return nil, d.fail("Incomplete header block.")
	}
	return d.finalize(), nil
}

func (d *progressiveDecoder) finalize() *HeaderList {
	d.state = stateDone
	// A block that referenced no dynamic entry (RequiredInsertCount == 0)
	// has nothing to acknowledge; sending one anyway is a decoder-stream
	// protocol violation on the peer.
	if d.prefix.RequiredInsertCount > 0 {
		d.host.sendSectionAcknowledgement(d.streamID, d.prefix.RequiredInsertCount)
	}

	if d.overLimit {
		return &HeaderList{}
	}
	return &HeaderList{
		Fields:                  d.fields,
		UncompressedHeaderBytes: d.uncompressedBytes,
		CompressedHeaderBytes:   d.compressedBytes,
	}
}

func (d *progressiveDecoder) fail(message string) error {
	return d.failWith(newHeaderBlockError(d.streamID, message))
}

func (d *progressiveDecoder) failWith(err error) error {
	d.state = stateError
	d.host.deregisterBlocked(d.streamID)
	if d.log != nil {
		d.log.Debug("progressive decoder error",
			zap.Uint64("stream", d.streamID), zap.Error(err))
	}
	return err
}

// isBlocked reports whether this decoder is currently registered as
// blocked, used by the Decoder to decide whether a stream cancellation
// needs to emit a Stream Cancellation instruction (§5).
func (d *progressiveDecoder) isBlocked() bool { return d.state == stateBlocked }
