package qpack

import "go.uber.org/zap"

// Decoder is C16: the per-connection decoder. It owns the dynamic table,
// the receiver for the peer's encoder stream, the sender for this
// connection's decoder stream, the blocked-stream registry, and every
// still-open progressive decoder. Like every other type in this package it
// is single-threaded: a connection's QPACK state is only ever touched from
// the one goroutine that owns that connection (§5).
type Decoder struct {
	settings *Settings
	table    *DynamicTable
	codec    StaticHuffmanTables

	encReceiver *encoderStreamReceiver
	decSender   *decoderStreamSender
	blocked     *blockedStreamRegistry
	errSink     ConnectionErrorSink
	log         *zap.Logger

	streams map[uint64]*Accumulator

	// toldInsertCount is how many insertions the peer's encoder has been
	// told about, via either a Section Acknowledgement (whose Required
	// Insert Count implies the encoder's Known Received Count, §4.4.3) or
	// an explicit Insert Count Increment. OnEncoderStreamBytes only sends
	// the latter for whatever part of a new insertion batch draining
	// blocked streams didn't already convey.
	toldInsertCount uint64
}

// NewDecoder builds a Decoder for one connection. decoderStreamOut is where
// this decoder writes Section Acknowledgement / Stream Cancellation /
// Insert Count Increment instructions; errSink receives connection-fatal
// errors discovered while processing the peer's encoder stream.
func NewDecoder(settings *Settings, codec StaticHuffmanTables, decoderStreamOut StreamSender, errSink ConnectionErrorSink, log *zap.Logger) *Decoder {
	table := newDynamicTable(settings.MaxTableCapacity, false)
	return &Decoder{
		settings:    settings,
		table:       table,
		codec:       codec,
		encReceiver: newEncoderStreamReceiver(table, codec, settings.MaxStringLiteralLength),
		decSender:   newDecoderStreamSender(decoderStreamOut),
		blocked:     newBlockedStreamRegistry(settings.BlockedStreams),
		errSink:     errSink,
		log:         log,
		streams:     make(map[uint64]*Accumulator),
	}
}

// CreateProgressiveDecoder returns a handle for decoding one request
// stream's header block. maxHeaderListSize is the application's
// max_header_list_size budget for this block (§7).
func (d *Decoder) CreateProgressiveDecoder(streamID uint64, visitor Visitor, maxHeaderListSize uint64) *Accumulator {
	pd := newProgressiveDecoder(streamID, d.table, d.codec, d, d.settings.MaxStringLiteralLength, maxHeaderListSize, d.log)
	acc := &Accumulator{pd: pd, visitor: visitor, streamID: streamID, decoder: d}
	d.streams[streamID] = acc
	return acc
}

// OnEncoderStreamBytes feeds bytes read from the peer's encoder stream into
// the dynamic table, then drains any progressive decoders that were
// blocked on the insertions just applied. Mutating the table fully before
// touching any blocked decoder is the two-phase pattern of §9: a decoder
// unblocked mid-mutation must never observe a table that is only partially
// updated.
//
// An Insert Count Increment is only sent for whatever part of this batch
// draining didn't already convey via a Section Acknowledgement: unblocking
// a stream whose Required Insert Count matches the new total tells the
// peer's encoder everything an explicit increment would.
func (d *Decoder) OnEncoderStreamBytes(data []byte) error {
	inserted, err := d.encReceiver.Feed(data)
	if err != nil {
		d.errSink.OnConnectionError(CodeQPACKEncoderStreamError, err)
		return err
	}
	if inserted == 0 {
		return nil
	}

	d.drainBlockedStreams()

	if total := d.table.InsertedCount(); total > d.toldInsertCount {
		d.decSender.SendInsertCountIncrement(total - d.toldInsertCount)
		d.toldInsertCount = total
	}
	return nil
}

// drainBlockedStreams wakes every progressive decoder whose Required
// Insert Count is now satisfied. It takes a snapshot of currently blocked
// ids first: unblocking one stream never blocks another, but it does
// delete from the registry mid-iteration.
func (d *Decoder) drainBlockedStreams() {
	ids := make([]uint64, 0, d.blocked.len())
	for id := range d.blocked.blocked {
		ids = append(ids, id)
	}

	for _, id := range ids {
		acc, ok := d.streams[id]
		if !ok {
			continue
		}
		if acc.pd.prefix.RequiredInsertCount > d.table.InsertedCount() {
			continue
		}

		list, err := acc.pd.unblock()
		switch {
		case err != nil:
			acc.deliverError(err)
		case list != nil:
			acc.deliverDecoded(*list)
		}
	}
}

// OnStreamCancel is called when the request stream closes before its
// header block completed. A still-blocked stream must tell the peer's
// encoder it can stop waiting for an acknowledgement of entries referenced
// only by that block (§4.6).
func (d *Decoder) OnStreamCancel(streamID uint64) {
	acc, ok := d.streams[streamID]
	if !ok {
		return
	}
	if acc.pd.isBlocked() {
		d.decSender.SendStreamCancellation(streamID)
	}
	d.cleanupStream(streamID)
}

func (d *Decoder) cleanupStream(streamID uint64) {
	d.blocked.unblock(streamID)
	delete(d.streams, streamID)
}

// registerBlocked, deregisterBlocked and sendSectionAcknowledgement
// implement progressiveDecoderHost.
func (d *Decoder) registerBlocked(streamID uint64) error { return d.blocked.tryBlock(streamID) }
func (d *Decoder) deregisterBlocked(streamID uint64)     { d.blocked.unblock(streamID) }

func (d *Decoder) sendSectionAcknowledgement(streamID, requiredInsertCount uint64) {
	d.decSender.SendSectionAcknowledgement(streamID)
	if requiredInsertCount > d.toldInsertCount {
		d.toldInsertCount = requiredInsertCount
	}
}
