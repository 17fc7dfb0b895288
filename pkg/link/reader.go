package link

// DefaultBufferCap is the default cap of bytes buffered by a Reader.
const DefaultBufferCap = 2 * MaxFrameSize

// ReaderStats counts what a Reader has seen.
type ReaderStats struct {
	Frames    uint64
	Errors    map[DecodeErrorKind]uint64
	Discarded uint64
}

// Reader reassembles frames from a byte stream with arbitrary chunking.
// A corrupt frame only costs the bytes up to the next plausible opcode:
// the stream is never permanently desynchronized. A partial frame is
// abandoned as soon as a complete frame arrives after it, or by Timeout.
// Reader is not safe for concurrent use.
type Reader struct {
	Registry *Registry
	// Cap bounds the buffered bytes, DefaultBufferCap if zero.
	Cap int

	buf   []byte
	stats ReaderStats
}

// NewReader creates a Reader using the registry, nil for the default one.
func NewReader(reg *Registry) *Reader {
	if reg == nil {
		reg = defaultRegistry
	}
	return &Reader{Registry: reg, Cap: DefaultBufferCap}
}

// Stats returns a copy of the counters.
func (r *Reader) Stats() ReaderStats {
	s := r.stats
	s.Errors = make(map[DecodeErrorKind]uint64, len(r.stats.Errors))
	for k, v := range r.stats.Errors {
		s.Errors[k] = v
	}
	return s
}

// Buffered returns the number of bytes waiting for a complete frame.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Reset drops all buffered bytes.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
}

// Feed appends received bytes. Frames are then pulled with Next.
// If the unconsumed bytes exceed the cap the stale buffer is flushed,
// only the newest bytes are kept, and a BufferOverflow error is returned.
func (r *Reader) Feed(p []byte) error {
	limit := r.Cap
	if limit <= 0 {
		limit = DefaultBufferCap
	}
	if len(r.buf)+len(p) <= limit {
		r.buf = append(r.buf, p...)
		return nil
	}
	dropped := len(r.buf)
	if len(p) > limit {
		dropped += len(p) - limit
		p = p[len(p)-limit:]
	}
	r.buf = append(r.buf[:0], p...)
	return r.fail(&DecodeError{Kind: BufferOverflow, Discarded: dropped})
}

// Next returns the next complete frame.
// It returns (nil, nil) when more bytes are needed. A *DecodeError is
// returned after corrupt bytes were discarded, call Next again to
// continue with the remaining bytes.
func (r *Reader) Next() (*Frame, error) {
	if len(r.buf) == 0 {
		return nil, nil
	}
	op := Opcode(r.buf[0])
	spec, ok := r.Registry.Lookup(op)
	if !ok {
		return nil, r.resync(UnknownOpcode, op)
	}
	if len(r.buf) < HeaderSize {
		return nil, nil
	}
	if size := int(r.buf[1]); size > spec.MaxLen {
		return nil, r.resync(Oversized, op)
	}
	f, err := r.Registry.Decode(r.buf)
	if err != nil {
		if err.(*DecodeError).Kind == Truncated {
			return nil, r.skipStalled(op)
		}
		return nil, r.resync(err.(*DecodeError).Kind, op)
	}
	r.consume(f.Len())
	r.stats.Frames++
	return f, nil
}

// Frames drains all complete frames, decode errors are reported to onErr.
func (r *Reader) Frames(onErr func(error)) []*Frame {
	var frames []*Frame
	for {
		f, err := r.Next()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			continue
		}
		if f == nil {
			return frames
		}
		frames = append(frames, f)
	}
}

// Timeout abandons a partial frame which stalled, e.g. a corrupted
// length byte declaring more bytes than the peer will ever send.
// It returns a Truncated error if anything was discarded.
func (r *Reader) Timeout() error {
	if len(r.buf) == 0 {
		return nil
	}
	return r.resync(Truncated, Opcode(r.buf[0]))
}

// skipStalled discards a partial frame when the buffer ends with a
// complete valid frame after it, the partial one is garbage the peer
// never finishes. It returns nil if nothing was discarded.
func (r *Reader) skipStalled(op Opcode) error {
	for k := 1; k+Overhead <= len(r.buf); k++ {
		if int(r.buf[k+1]) != len(r.buf)-k-Overhead {
			continue
		}
		f, err := r.Registry.Decode(r.buf[k:])
		if err != nil || r.Registry.Validate(f) != nil {
			continue
		}
		r.consume(k)
		return r.fail(&DecodeError{Kind: Truncated, Opcode: op, Discarded: k})
	}
	return nil
}

// resync drops the lead byte and skips to the next known opcode.
func (r *Reader) resync(kind DecodeErrorKind, op Opcode) error {
	n := 1
	for n < len(r.buf) {
		if _, ok := r.Registry.Lookup(Opcode(r.buf[n])); ok {
			break
		}
		n++
	}
	r.consume(n)
	return r.fail(&DecodeError{Kind: kind, Opcode: op, Discarded: n})
}

func (r *Reader) consume(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}

func (r *Reader) fail(err *DecodeError) error {
	if r.stats.Errors == nil {
		r.stats.Errors = make(map[DecodeErrorKind]uint64)
	}
	r.stats.Errors[err.Kind]++
	r.stats.Discarded += uint64(err.Discarded)
	return err
}
