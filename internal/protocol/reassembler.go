package protocol

import (
	"encoding/binary"
	"time"
)

// DefaultStallTimeout bounds how long a partially received frame may sit idle
// before the Reassembler drops it and hunts for the next SOF.
const DefaultStallTimeout = 200 * time.Millisecond

// ReassemblerState is the parser position within a frame.
type ReassemblerState int

const (
	WaitSOF1 ReassemblerState = iota
	WaitSOF2
	ReadHeader
	ReadPayload
	ReadCRC
)

func (s ReassemblerState) String() string {
	switch s {
	case WaitSOF1:
		return "WaitSOF1"
	case WaitSOF2:
		return "WaitSOF2"
	case ReadHeader:
		return "ReadHeader"
	case ReadPayload:
		return "ReadPayload"
	case ReadCRC:
		return "ReadCRC"
	default:
		return "Unknown"
	}
}

// ReassemblerStats counts what the parser consumed.
type ReassemblerStats struct {
	Frames         uint64 // frames emitted, valid or not
	CRCErrors      uint64 // frames emitted with CRCValid=false
	DiscardedBytes uint64 // bytes dropped while hunting for SOF or on stall
	StallResets    uint64
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithStallTimeout sets the mid-frame idle limit. Zero disables it.
func WithStallTimeout(d time.Duration) ReassemblerOption {
	return func(r *Reassembler) { r.stallTimeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ReassemblerOption {
	return func(r *Reassembler) { r.now = now }
}

// Reassembler turns an arbitrarily fragmented byte stream into frames.
// State persists across Process calls, so feeding a stream in any number of
// chunks yields the same frames as feeding it whole.
//
// When the byte after SOF1 is not SOF2 the byte is dropped rather than
// re-tested as a new SOF1.
//
// A Reassembler is not safe for concurrent use; the transport reader owns it.
type Reassembler struct {
	stallTimeout time.Duration
	now          func() time.Time

	state        ReassemblerState
	header       [HeaderSize]byte
	headerN      int
	length       int
	payload      []byte
	crc          [CRCSize]byte
	crcN         int
	lastProgress time.Time

	stats ReassemblerStats
}

// NewReassembler creates a parser waiting for SOF1.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{
		stallTimeout: DefaultStallTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current parser state.
func (r *Reassembler) State() ReassemblerState { return r.state }

// Stats returns a copy of the counters.
func (r *Reassembler) Stats() ReassemblerStats { return r.stats }

// Reset discards any partial frame and returns to WaitSOF1.
func (r *Reassembler) Reset() {
	r.stats.DiscardedBytes += uint64(r.partialLen())
	r.state = WaitSOF1
	r.headerN = 0
	r.length = 0
	r.payload = nil
	r.crcN = 0
}

func (r *Reassembler) partialLen() int {
	switch r.state {
	case WaitSOF2:
		return 1
	case ReadHeader, ReadPayload, ReadCRC:
		return 2 + r.headerN + len(r.payload) + r.crcN
	}
	return 0
}

// Process consumes chunk and returns every frame completed by it.
func (r *Reassembler) Process(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}

	now := r.now()
	if r.state != WaitSOF1 && r.stallTimeout > 0 && now.Sub(r.lastProgress) >= r.stallTimeout {
		r.stats.StallResets++
		r.Reset()
	}
	r.lastProgress = now

	var frames []Frame
	for _, b := range chunk {
		if f, ok := r.step(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func (r *Reassembler) step(b byte) (Frame, bool) {
	switch r.state {
	case WaitSOF1:
		if b == SOF1 {
			r.state = WaitSOF2
		} else {
			r.stats.DiscardedBytes++
		}

	case WaitSOF2:
		if b == SOF2 {
			r.state = ReadHeader
			r.headerN = 0
		} else {
			r.stats.DiscardedBytes += 2
			r.state = WaitSOF1
		}

	case ReadHeader:
		r.header[r.headerN] = b
		r.headerN++
		if r.headerN == HeaderSize {
			r.length = int(binary.LittleEndian.Uint16(r.header[2:4]))
			r.payload = make([]byte, 0, r.length)
			r.crcN = 0
			if r.length > 0 {
				r.state = ReadPayload
			} else {
				r.state = ReadCRC
			}
		}

	case ReadPayload:
		r.payload = append(r.payload, b)
		if len(r.payload) == r.length {
			r.state = ReadCRC
		}

	case ReadCRC:
		r.crc[r.crcN] = b
		r.crcN++
		if r.crcN == CRCSize {
			f := r.finish()
			return f, true
		}
	}
	return Frame{}, false
}

func (r *Reassembler) finish() Frame {
	received := binary.LittleEndian.Uint16(r.crc[:])
	computed := updateCRC(updateCRC(crcInit, r.header[:]), r.payload)

	f := Frame{
		Version:  r.header[0],
		Kind:     Kind(r.header[1]),
		Payload:  r.payload,
		CRC:      received,
		CRCValid: received == computed,
	}

	r.stats.Frames++
	if !f.CRCValid {
		r.stats.CRCErrors++
	}

	r.state = WaitSOF1
	r.headerN = 0
	r.length = 0
	r.payload = nil
	r.crcN = 0
	return f
}
