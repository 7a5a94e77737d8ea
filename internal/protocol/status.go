package protocol

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// StatusPayloadSize is the fixed STATUS payload length.
const StatusPayloadSize = 144

// STATUS field offsets
const (
	statusOffState     = 0
	statusOffCount     = 1
	statusOffActiveMap = 2
	statusOffHealthMap = 6
	statusOffRates     = 10  // 32 x u16
	statusOffBits      = 74  // 32 x u8
	statusOffRoles     = 106 // 32 x u8
	statusOffADCFlags  = 138
	statusOffReserved  = 140
	// 142..143 padding
)

// StatusPayload is a snapshot of the device configuration. All 32 slots are
// always carried; only indices below SensorCount are meaningful.
type StatusPayload struct {
	State         DeviceState
	SensorCount   uint8
	ActiveMap     uint32
	HealthMap     uint32
	SampleRates   [MaxSensors]uint16
	BitsPerSample [MaxSensors]uint8
	Roles         [MaxSensors]SensorRole
	ADCFlags      uint16
	Reserved      uint16
}

func (StatusPayload) Kind() Kind { return KindStatus }

func (s StatusPayload) String() string {
	return fmt.Sprintf("Status{state=%s, n=%d, active=0x%08x, health=0x%08x, adc_flags=0x%04x}",
		s.State, s.SensorCount, s.ActiveMap, s.HealthMap, s.ADCFlags)
}

// ActiveSensors returns the enabled sensor indices in ascending order.
func (s StatusPayload) ActiveSensors() []int {
	return mapIndices(s.ActiveMap)
}

// Healthy reports whether sensor idx is flagged healthy.
func (s StatusPayload) Healthy(idx int) bool {
	return idx >= 0 && idx < MaxSensors && s.HealthMap&(1<<uint(idx)) != 0
}

// Layout extracts the context required to decode DATA frames.
func (s StatusPayload) Layout() SampleLayout {
	return SampleLayout{ActiveMap: s.ActiveMap, Bits: s.BitsPerSample}
}

// EncodeStatus serializes s into the fixed 144-byte layout.
func EncodeStatus(s StatusPayload) []byte {
	p := make([]byte, StatusPayloadSize)
	p[statusOffState] = byte(s.State)
	p[statusOffCount] = s.SensorCount
	binary.LittleEndian.PutUint32(p[statusOffActiveMap:], s.ActiveMap)
	binary.LittleEndian.PutUint32(p[statusOffHealthMap:], s.HealthMap)
	for i := 0; i < MaxSensors; i++ {
		binary.LittleEndian.PutUint16(p[statusOffRates+2*i:], s.SampleRates[i])
		p[statusOffBits+i] = s.BitsPerSample[i]
		p[statusOffRoles+i] = byte(s.Roles[i])
	}
	binary.LittleEndian.PutUint16(p[statusOffADCFlags:], s.ADCFlags)
	binary.LittleEndian.PutUint16(p[statusOffReserved:], s.Reserved)
	return p
}

// DecodeStatus parses a STATUS payload. The length must be exactly
// StatusPayloadSize.
func DecodeStatus(p []byte) (StatusPayload, error) {
	var s StatusPayload
	if len(p) != StatusPayloadSize {
		return s, lengthErr(KindStatus, len(p), StatusPayloadSize)
	}
	s.State = DeviceState(p[statusOffState])
	s.SensorCount = p[statusOffCount]
	s.ActiveMap = binary.LittleEndian.Uint32(p[statusOffActiveMap:])
	s.HealthMap = binary.LittleEndian.Uint32(p[statusOffHealthMap:])
	for i := 0; i < MaxSensors; i++ {
		s.SampleRates[i] = binary.LittleEndian.Uint16(p[statusOffRates+2*i:])
		s.BitsPerSample[i] = p[statusOffBits+i]
		s.Roles[i] = SensorRole(p[statusOffRoles+i])
	}
	s.ADCFlags = binary.LittleEndian.Uint16(p[statusOffADCFlags:])
	s.Reserved = binary.LittleEndian.Uint16(p[statusOffReserved:])
	return s, nil
}

func mapIndices(m uint32) []int {
	out := make([]int, 0, bits.OnesCount32(m))
	for i := 0; i < MaxSensors; i++ {
		if m&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}
