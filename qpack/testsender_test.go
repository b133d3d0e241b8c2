package qpack

// recordingSender is a StreamSender that appends every write to a buffer,
// used by tests that need to inspect emitted instruction bytes.
type recordingSender struct {
	writes [][]byte
}

func (s *recordingSender) Write(data []byte) {
	s.writes = append(s.writes, append([]byte(nil), data...))
}

func (s *recordingSender) all() []byte {
	var out []byte
	for _, w := range s.writes {
		out = append(out, w...)
	}
	return out
}
