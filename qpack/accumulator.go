package qpack

// Visitor receives the terminal outcome of exactly one header block: either
// the decoded fields or a human-readable error, never both, never twice
// (§4.10). A stream dropped through Decoder.OnStreamCancel before its block
// finished gets neither.
type Visitor interface {
	OnDecoded(list HeaderList)
	OnError(message string)
}

// Accumulator is C14: the thin per-request-stream handle returned by
// Decoder.CreateProgressiveDecoder. It forwards Decode/EndHeaderBlock onto
// the underlying progressiveDecoder and guarantees the Visitor sees at most
// one terminal callback even if EndHeaderBlock and an encoder-stream-driven
// unblock race to finish the same block.
type Accumulator struct {
	pd       *progressiveDecoder
	visitor  Visitor
	streamID uint64
	decoder  *Decoder
	done     bool
}

// Decode feeds bytes read from the request stream. Malformed references or
// an oversize literal are reported to the Visitor immediately; everything
// else is buffered until EndHeaderBlock or an encoder-stream-driven
// unblock completes the block.
func (a *Accumulator) Decode(data []byte) {
	if a.done {
		return
	}
	if err := a.pd.feed(data); err != nil {
		a.deliverError(err)
	}
}

// EndHeaderBlock signals that no more bytes are coming for this header
// block, per §4.10. It is safe to call before any Decode call at all.
func (a *Accumulator) EndHeaderBlock() {
	if a.done {
		return
	}
	list, err := a.pd.endHeaderBlock()
	switch {
	case err != nil:
		a.deliverError(err)
	case list != nil:
		a.deliverDecoded(*list)
	}
}

func (a *Accumulator) deliverDecoded(list HeaderList) {
	if a.done {
		return
	}
	a.done = true
	a.decoder.cleanupStream(a.streamID)
	a.visitor.OnDecoded(list)
}

func (a *Accumulator) deliverError(err error) {
	if a.done {
		return
	}
	a.done = true
	a.decoder.cleanupStream(a.streamID)
	a.visitor.OnError(err.Error())
}
