package qpack

// blockedStreamRegistry is C13: the decoder-side bound on how many request
// streams may simultaneously wait on pending encoder-stream insertions
// (§4.7, SETTINGS_QPACK_BLOCKED_STREAMS). It only ever stores stream ids —
// the progressive decoders themselves are held by the Decoder, never here
// (§3 "referenced weakly").
type blockedStreamRegistry struct {
	max     uint64
	blocked map[uint64]struct{}
}

func newBlockedStreamRegistry(max uint64) *blockedStreamRegistry {
	return &blockedStreamRegistry{max: max, blocked: make(map[uint64]struct{})}
}

// tryBlock registers streamID as blocked, or returns a BlockedStreamLimitError
// if doing so would exceed the configured maximum. Re-registering an
// already-blocked stream is a no-op.
func (r *blockedStreamRegistry) tryBlock(streamID uint64) error {
	if _, ok := r.blocked[streamID]; ok {
		return nil
	}
	if uint64(len(r.blocked)) >= r.max {
		return &BlockedStreamLimitError{StreamID: streamID}
	}
	r.blocked[streamID] = struct{}{}
	return nil
}

func (r *blockedStreamRegistry) unblock(streamID uint64) {
	delete(r.blocked, streamID)
}

func (r *blockedStreamRegistry) isBlocked(streamID uint64) bool {
	_, ok := r.blocked[streamID]
	return ok
}

func (r *blockedStreamRegistry) len() int { return len(r.blocked) }
