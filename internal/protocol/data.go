package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// SampleLayout is the cross-frame context needed to decode DATA payloads.
// It is taken from the most recent STATUS.
type SampleLayout struct {
	ActiveMap uint32
	Bits      [MaxSensors]uint8
}

// Indices returns the active sensor indices in ascending order.
func (l SampleLayout) Indices() []int {
	return mapIndices(l.ActiveMap)
}

// PayloadSize is the DATA payload length implied by the layout.
func (l SampleLayout) PayloadSize() (int, error) {
	n := 4
	for _, idx := range l.Indices() {
		w, err := fieldWidth(l.Bits[idx])
		if err != nil {
			return 0, fmt.Errorf("sensor %d: %w", idx, err)
		}
		n += w
	}
	return n, nil
}

// Sample is one raw reading.
type Sample struct {
	Index int
	Value uint32
}

// DataPayload carries one reading per active sensor in ascending index order.
// Timestamp is device-clock microseconds.
type DataPayload struct {
	Timestamp uint32
	Samples   []Sample
}

func (DataPayload) Kind() Kind { return KindData }

func (d DataPayload) String() string {
	parts := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		parts[i] = fmt.Sprintf("%d:%d", s.Index, s.Value)
	}
	return fmt.Sprintf("Data{ts=%d, samples=[%s]}", d.Timestamp, strings.Join(parts, " "))
}

// Value returns the reading for sensor idx.
func (d DataPayload) Value(idx int) (uint32, bool) {
	for _, s := range d.Samples {
		if s.Index == idx {
			return s.Value, true
		}
	}
	return 0, false
}

// fieldWidth returns ceil(bits/8).
func fieldWidth(bits uint8) (int, error) {
	if bits < 1 || bits > 32 {
		return 0, fmt.Errorf("%w: bits per sample %d outside 1..32", ErrInvalidArgument, bits)
	}
	return (int(bits) + 7) / 8, nil
}

func valueMask(bits uint8) uint32 {
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return 1<<bits - 1
}

// EncodeData packs timestamp and samples using the layout. The samples must
// cover exactly the active indices in ascending order. Values wider than the
// configured bit depth are truncated to the low bits, as the firmware does.
func EncodeData(timestamp uint32, samples []Sample, layout SampleLayout) ([]byte, error) {
	indices := layout.Indices()
	if len(samples) != len(indices) {
		return nil, fmt.Errorf("%w: %d samples for %d active sensors", ErrInvalidArgument, len(samples), len(indices))
	}

	size, err := layout.PayloadSize()
	if err != nil {
		return nil, err
	}

	p := make([]byte, size)
	binary.LittleEndian.PutUint32(p, timestamp)
	off := 4
	for i, s := range samples {
		if s.Index != indices[i] {
			return nil, fmt.Errorf("%w: sample %d has index %d, want %d", ErrInvalidArgument, i, s.Index, indices[i])
		}
		bits := layout.Bits[s.Index]
		w, _ := fieldWidth(bits)
		putUintN(p[off:off+w], s.Value&valueMask(bits))
		off += w
	}
	return p, nil
}

// DecodeData unpacks a DATA payload. A nil layout means no STATUS has been
// observed yet and yields ErrMissingContext.
func DecodeData(p []byte, layout *SampleLayout) (DataPayload, error) {
	var d DataPayload
	if layout == nil {
		return d, decodeErr(KindData, ErrMissingContext)
	}

	size, err := layout.PayloadSize()
	if err != nil {
		return d, decodeErr(KindData, err)
	}
	if len(p) != size {
		return d, lengthErr(KindData, len(p), size)
	}

	d.Timestamp = binary.LittleEndian.Uint32(p)
	indices := layout.Indices()
	d.Samples = make([]Sample, 0, len(indices))
	off := 4
	for _, idx := range indices {
		bits := layout.Bits[idx]
		w, _ := fieldWidth(bits)
		d.Samples = append(d.Samples, Sample{Index: idx, Value: uintN(p[off:off+w]) & valueMask(bits)})
		off += w
	}
	return d, nil
}

func putUintN(dst []byte, v uint32) {
	for i := range dst {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func uintN(src []byte) uint32 {
	var v uint32
	for i, b := range src {
		v |= uint32(b) << (8 * uint(i))
	}
	return v
}
