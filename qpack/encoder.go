package qpack

import "go.uber.org/zap"

// Encoder is C15: the per-connection encoder. It owns the dynamic table,
// the sender for this connection's encoder stream, and the receiver for
// the peer's decoder stream. Encoding strategy follows §4.9: an exact
// match in the static table wins outright; an exact match in the dynamic
// table wins if referencing it is currently safe; failing that, a fresh
// insertion is attempted so future header blocks can reuse it; failing
// that, the field is sent as a literal.
type Encoder struct {
	settings *Settings
	table    *DynamicTable
	codec    StaticHuffmanTables
	pref     HuffmanPreference

	encStreamSender *encoderStreamSender
	decStreamRecv   *decoderStreamReceiver
	log             *zap.Logger

	maxBlockedStreams uint64
	riskyStreams      map[uint64]struct{}
	streamRIC         map[uint64]uint64
}

// NewEncoder builds an Encoder for one connection. encoderStreamOut is
// where this encoder writes its own instructions; every byte read from the
// peer's decoder stream should be passed to FeedDecoderStreamBytes.
func NewEncoder(settings *Settings, codec StaticHuffmanTables, encoderStreamOut StreamSender, log *zap.Logger) *Encoder {
	table := newDynamicTable(settings.MaxTableCapacity, true)
	e := &Encoder{
		settings:          settings,
		table:             table,
		codec:             codec,
		pref:              settings.HuffmanPreference,
		encStreamSender:   newEncoderStreamSender(encoderStreamOut, codec, settings.HuffmanPreference),
		log:               log,
		maxBlockedStreams: settings.BlockedStreams,
		riskyStreams:      make(map[uint64]struct{}),
		streamRIC:         make(map[uint64]uint64),
	}
	e.decStreamRecv = newDecoderStreamReceiver(e)
	return e
}

// SetDynamicTableCapacity sets this connection's outgoing dynamic table
// capacity and announces it to the peer, up to the SETTINGS_QPACK_MAX_TABLE_CAPACITY
// negotiated for this connection.
func (e *Encoder) SetDynamicTableCapacity(capacity uint64) error {
	if err := e.table.SetCapacity(capacity); err != nil {
		return err
	}
	e.encStreamSender.SendSetCapacity(capacity)
	return nil
}

// FeedDecoderStreamBytes consumes bytes read from the peer's decoder
// stream. Any error is connection-fatal (§4.6); the caller should report
// it via its ConnectionErrorSink and close the connection.
func (e *Encoder) FeedDecoderStreamBytes(data []byte) error {
	return e.decStreamRecv.Feed(data)
}

// EncodeHeaderList serialises fields for streamID, choosing the cheapest
// representation §4.9 allows for each field, and returns the complete
// header block (prefix and body) ready to write to the request stream.
func (e *Encoder) EncodeHeaderList(streamID uint64, fields []HeaderField) []byte {
	base := e.table.InsertedCount()
	var body []byte
	var ric uint64

	for _, f := range fields {
		body, ric = e.encodeField(streamID, f, base, ric, body)
	}

	if ric > 0 {
		if existing, ok := e.streamRIC[streamID]; !ok || ric > existing {
			e.streamRIC[streamID] = ric
		}
	}

	prefix := encodeHeaderBlockPrefix(nil, ric, base, e.table.MaxEntries())
	return append(prefix, body...)
}

func (e *Encoder) encodeField(streamID uint64, f HeaderField, base, ric uint64, body []byte) ([]byte, uint64) {
	if idx, ok := findStaticNameValue(f.Name, f.Value); ok {
		return encodeIndexedFieldLine(body, true, idx), ric
	}

	if idx, ok := e.table.FindNameValue(f.Name, f.Value); ok && e.safeToReference(streamID, idx) {
		e.trackReference(streamID, idx)
		return e.emitDynamicIndexed(body, idx, base), max64(ric, idx+1)
	}

	if absIdx, ok := e.tryInsert(f); ok {
		e.trackReference(streamID, absIdx)
		return e.emitDynamicIndexed(body, absIdx, base), max64(ric, absIdx+1)
	}

	return e.encodeLiteral(f, base, ric, body)
}

// tryInsert adds f to the dynamic table when doing so is worthwhile: there
// is capacity for it and inserting doesn't require evicting an entry the
// peer hasn't acknowledged yet.
func (e *Encoder) tryInsert(f HeaderField) (uint64, bool) {
	if e.table.Capacity() == 0 {
		return 0, false
	}
	if f.size() > e.table.Capacity() {
		return 0, false
	}

	// Apply the insertion to the local table before announcing it: the
	// decoder-stream echo for this instruction (Insert Count Increment or a
	// Section Acknowledgement) may arrive back before this call returns,
	// and it must find the entry already present.
	staticIdx, isStaticName := findStaticName(f.Name)
	dynIdx, isDynamicName := uint64(0), false
	if !isStaticName {
		dynIdx, isDynamicName = e.table.FindName(f.Name)
	}

	absIdx, err := e.table.Insert(f.Name, f.Value)
	if err != nil {
		if e.log != nil {
			e.log.Debug("dynamic table insert declined", zap.Error(err))
		}
		return 0, false
	}

	switch {
	case isStaticName:
		e.encStreamSender.SendInsertWithNameReference(true, staticIdx, f.Value)
	case isDynamicName:
		relative := absIdx - 1 - dynIdx
		e.encStreamSender.SendInsertWithNameReference(false, relative, f.Value)
	default:
		e.encStreamSender.SendInsertWithoutNameReference(f.Name, f.Value)
	}
	return absIdx, true
}

func (e *Encoder) encodeLiteral(f HeaderField, base, ric uint64, body []byte) ([]byte, uint64) {
	if staticIdx, ok := findStaticName(f.Name); ok {
		return encodeLiteralWithNameReference(body, true, false, staticIdx, f.Value, e.codec, e.pref), ric
	}
	if dynIdx, ok := e.table.FindName(f.Name); ok {
		if dynIdx < base {
			relative := base - 1 - dynIdx
			return encodeLiteralWithNameReference(body, false, false, relative, f.Value, e.codec, e.pref), max64(ric, dynIdx+1)
		}
		postBase := dynIdx - base
		return encodeLiteralWithPostBaseNameReference(body, false, postBase, f.Value, e.codec, e.pref), max64(ric, dynIdx+1)
	}
	return encodeLiteralWithLiteralName(body, false, f.Name, f.Value, e.codec, e.pref), ric
}

func (e *Encoder) emitDynamicIndexed(body []byte, absIdx, base uint64) []byte {
	if absIdx < base {
		return encodeIndexedFieldLine(body, false, base-1-absIdx)
	}
	return encodeIndexedPostBase(body, absIdx-base)
}

// safeToReference reports whether referencing absIdx (which may not yet be
// acknowledged by the peer) would keep streamID within the connection's
// blocked-stream budget. An index below KnownReceivedCount is always safe:
// the peer has confirmed it received that insertion.
func (e *Encoder) safeToReference(streamID, absIdx uint64) bool {
	if absIdx < e.table.KnownReceivedCount() {
		return true
	}
	if _, already := e.riskyStreams[streamID]; already {
		return true
	}
	return uint64(len(e.riskyStreams)) < e.maxBlockedStreams
}

func (e *Encoder) trackReference(streamID, absIdx uint64) {
	if absIdx < e.table.KnownReceivedCount() {
		return
	}
	e.riskyStreams[streamID] = struct{}{}
}

// OnInsertCountIncrement, OnSectionAcknowledgement and OnStreamCancellation
// implement decoderStreamDelegate: they consume the peer decoder's stream.
func (e *Encoder) OnInsertCountIncrement(increment uint64) error {
	return e.table.OnInsertCountIncrement(increment)
}

// OnSectionAcknowledgement raises KnownReceivedCount to the RIC that block
// was encoded with: the decoder could not have decoded it without having
// received every entry the block referenced.
func (e *Encoder) OnSectionAcknowledgement(streamID uint64) {
	if ric, ok := e.streamRIC[streamID]; ok {
		e.table.RaiseKnownReceivedCount(ric)
	}
	delete(e.streamRIC, streamID)
	delete(e.riskyStreams, streamID)
}

// OnStreamCancellation frees streamID's blocked-stream budget slot without
// asserting anything about which entries the peer actually received.
func (e *Encoder) OnStreamCancellation(streamID uint64) {
	delete(e.streamRIC, streamID)
	delete(e.riskyStreams, streamID)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
