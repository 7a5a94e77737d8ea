package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/kineintra/kineintra/internal/protocol"
)

// Source produces one sample per active sensor of layout, in ascending index
// order. A Source is used by a single streaming goroutine.
type Source interface {
	Samples(layout protocol.SampleLayout) []protocol.Sample
}

func maxValue(bits uint8) uint64 {
	if bits == 0 || bits > 32 {
		bits = DefaultBits
	}
	return uint64(1)<<bits - 1
}

// RandomSource draws uniformly from [baseline, max] where baseline is a
// fixed share of the sensor's full scale.
type RandomSource struct {
	Baseline float64
	rng      *rand.Rand
}

// DefaultBaseline is the RandomSource floor as a share of full scale.
const DefaultBaseline = 0.3

// NewRandomSource returns a RandomSource. The same seed yields the same
// sequence.
func NewRandomSource(seed uint64) *RandomSource {
	return &RandomSource{
		Baseline: DefaultBaseline,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *RandomSource) Samples(layout protocol.SampleLayout) []protocol.Sample {
	idx := layout.Indices()
	out := make([]protocol.Sample, len(idx))
	for n, i := range idx {
		full := maxValue(layout.Bits[i])
		base := uint64(float64(full) * s.Baseline)
		if base > full {
			base = full
		}
		out[n] = protocol.Sample{Index: i, Value: uint32(base + s.rng.Uint64N(full-base+1))}
	}
	return out
}

// SineSource gives every sensor a full-scale sine wave. Sensor n uses
// Frequencies[n % len(Frequencies)], sampled at SampleRate.
type SineSource struct {
	Frequencies []float64
	SampleRate  float64
	count       uint64
}

// DefaultFrequencies are the per-sensor sine frequencies in Hz.
var DefaultFrequencies = []float64{1, 2, 3, 5, 8, 13, 21, 34}

// NewSineSource returns a SineSource with the default frequencies and a
// 100 Hz sample clock.
func NewSineSource() *SineSource {
	return &SineSource{Frequencies: DefaultFrequencies, SampleRate: 100}
}

func (s *SineSource) Samples(layout protocol.SampleLayout) []protocol.Sample {
	t := float64(s.count) / s.SampleRate
	s.count++

	idx := layout.Indices()
	out := make([]protocol.Sample, len(idx))
	for n, i := range idx {
		freq := s.Frequencies[n%len(s.Frequencies)]
		norm := (math.Sin(2*math.Pi*freq*t) + 1) / 2
		out[n] = protocol.Sample{Index: i, Value: uint32(norm * float64(maxValue(layout.Bits[i])))}
	}
	return out
}

// ConstantSource reports fixed values. Sensors missing from Values report
// Default. Every value is clamped to the sensor's bit range.
type ConstantSource struct {
	Values  map[int]uint32
	Default uint32
}

// DefaultConstant is mid-scale for a 12-bit sensor.
const DefaultConstant = 2048

func (s *ConstantSource) Samples(layout protocol.SampleLayout) []protocol.Sample {
	idx := layout.Indices()
	out := make([]protocol.Sample, len(idx))
	for n, i := range idx {
		v, ok := s.Values[i]
		if !ok {
			v = s.Default
		}
		if full := maxValue(layout.Bits[i]); uint64(v) > full {
			v = uint32(full)
		}
		out[n] = protocol.Sample{Index: i, Value: v}
	}
	return out
}

// NewSource builds a source by name: "random", "sine" or "constant".
func NewSource(name string, seed uint64) (Source, error) {
	switch strings.ToLower(name) {
	case "", "random":
		return NewRandomSource(seed), nil
	case "sine":
		return NewSineSource(), nil
	case "constant", "static":
		return &ConstantSource{Default: DefaultConstant}, nil
	default:
		return nil, fmt.Errorf("unknown sample source %q", name)
	}
}
