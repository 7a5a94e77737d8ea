package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusPayload {
	s := StatusPayload{
		State:       StateMeasuring,
		SensorCount: 2,
		ActiveMap:   0b11,
		HealthMap:   0xFFFFFFFF,
		ADCFlags:    0x8001,
		Reserved:    0x0000,
	}
	s.SampleRates[0] = 1000
	s.SampleRates[1] = 500
	for i := 2; i < MaxSensors; i++ {
		s.SampleRates[i] = 100
	}
	for i := 0; i < MaxSensors; i++ {
		s.BitsPerSample[i] = 12
		s.Roles[i] = RoleFSR
	}
	s.Roles[1] = RoleLoadCell
	return s
}

func TestStatusScenario(t *testing.T) {
	payload := EncodeStatus(sampleStatus())
	require.Len(t, payload, StatusPayloadSize)

	got, err := DecodeStatus(payload)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, got.ActiveSensors())
	assert.Equal(t, []uint16{1000, 500}, got.SampleRates[:2])
	assert.Equal(t, sampleStatus(), got)
}

func TestEncodeStatusOffsets(t *testing.T) {
	s := sampleStatus()
	s.ActiveMap = 0x04030201
	s.HealthMap = 0x08070605
	s.SampleRates[31] = 0xBEEF
	s.BitsPerSample[31] = 24
	s.Roles[31] = RoleIMU
	s.Reserved = 0x1234

	p := EncodeStatus(s)
	tests := []struct {
		name   string
		offset int
		want   []byte
	}{
		{name: "state", offset: 0, want: []byte{byte(StateMeasuring)}},
		{name: "n_sensors", offset: 1, want: []byte{2}},
		{name: "active_map", offset: 2, want: []byte{0x01, 0x02, 0x03, 0x04}},
		{name: "health_map", offset: 6, want: []byte{0x05, 0x06, 0x07, 0x08}},
		{name: "rate[0]", offset: 10, want: []byte{0xE8, 0x03}},
		{name: "rate[31]", offset: 72, want: []byte{0xEF, 0xBE}},
		{name: "bits[0]", offset: 74, want: []byte{12}},
		{name: "bits[31]", offset: 105, want: []byte{24}},
		{name: "role[1]", offset: 107, want: []byte{byte(RoleLoadCell)}},
		{name: "role[31]", offset: 137, want: []byte{byte(RoleIMU)}},
		{name: "adc_flags", offset: 138, want: []byte{0x01, 0x80}},
		{name: "reserved", offset: 140, want: []byte{0x34, 0x12}},
		{name: "padding", offset: 142, want: []byte{0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p[tt.offset:tt.offset+len(tt.want)])
		})
	}
}

func TestDecodeStatusLength(t *testing.T) {
	for _, n := range []int{0, 142, 143, 145} {
		_, err := DecodeStatus(make([]byte, n))
		assert.ErrorIs(t, err, ErrMalformedLength, "length %d", n)
	}
}

func TestStatusHelpers(t *testing.T) {
	s := sampleStatus()
	s.HealthMap = 0b10

	assert.False(t, s.Healthy(0))
	assert.True(t, s.Healthy(1))
	assert.False(t, s.Healthy(32))

	layout := s.Layout()
	assert.Equal(t, s.ActiveMap, layout.ActiveMap)
	assert.Equal(t, s.BitsPerSample, layout.Bits)
	assert.Contains(t, s.String(), "MEASURING")
}
