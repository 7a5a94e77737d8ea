package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layoutOf(bits map[int]uint8) SampleLayout {
	var l SampleLayout
	for idx, b := range bits {
		l.ActiveMap |= 1 << uint(idx)
		l.Bits[idx] = b
	}
	return l
}

func TestEncodeData(t *testing.T) {
	tests := []struct {
		name    string
		layout  SampleLayout
		samples []Sample
		want    []byte
	}{
		{
			name:    "8-bit field",
			layout:  layoutOf(map[int]uint8{0: 8}),
			samples: []Sample{{Index: 0, Value: 0x7F}},
			want:    []byte{0x01, 0x00, 0x00, 0x00, 0x7F},
		},
		{
			name:    "12-bit uses two bytes LE",
			layout:  layoutOf(map[int]uint8{3: 12}),
			samples: []Sample{{Index: 3, Value: 0xABC}},
			want:    []byte{0x01, 0x00, 0x00, 0x00, 0xBC, 0x0A},
		},
		{
			name:    "12-bit overflow truncates",
			layout:  layoutOf(map[int]uint8{0: 12}),
			samples: []Sample{{Index: 0, Value: 0xFABC}},
			want:    []byte{0x01, 0x00, 0x00, 0x00, 0xBC, 0x0A},
		},
		{
			name:    "24-bit uses three bytes",
			layout:  layoutOf(map[int]uint8{1: 24}),
			samples: []Sample{{Index: 1, Value: 0x123456}},
			want:    []byte{0x01, 0x00, 0x00, 0x00, 0x56, 0x34, 0x12},
		},
		{
			name:    "mixed widths in ascending order",
			layout:  layoutOf(map[int]uint8{0: 1, 5: 32, 31: 9}),
			samples: []Sample{{Index: 0, Value: 3}, {Index: 5, Value: 0xDEADBEEF}, {Index: 31, Value: 0x1FF}},
			want:    []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0xEF, 0xBE, 0xAD, 0xDE, 0xFF, 0x01},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeData(1, tt.samples, tt.layout)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDataRejectsMismatchedSamples(t *testing.T) {
	layout := layoutOf(map[int]uint8{0: 12, 1: 12})

	_, err := EncodeData(0, []Sample{{Index: 0, Value: 1}}, layout)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = EncodeData(0, []Sample{{Index: 1, Value: 1}, {Index: 0, Value: 1}}, layout)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	bad := layoutOf(map[int]uint8{0: 0})
	_, err = EncodeData(0, []Sample{{Index: 0, Value: 1}}, bad)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDataRoundTrip(t *testing.T) {
	layout := layoutOf(map[int]uint8{0: 12, 1: 16, 7: 4, 20: 24, 31: 32})
	want := DataPayload{
		Timestamp: 0xCAFEBABE,
		Samples: []Sample{
			{Index: 0, Value: 4095},
			{Index: 1, Value: 65535},
			{Index: 7, Value: 9},
			{Index: 20, Value: 0xABCDEF},
			{Index: 31, Value: 0xFFFFFFFF},
		},
	}

	p, err := EncodeData(want.Timestamp, want.Samples, layout)
	require.NoError(t, err)

	got, err := DecodeData(p, &layout)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	v, ok := got.Value(20)
	assert.True(t, ok)
	assert.Equal(t, uint32(0xABCDEF), v)
	_, ok = got.Value(2)
	assert.False(t, ok)
}

func TestDecodeData(t *testing.T) {
	layout := layoutOf(map[int]uint8{0: 12, 1: 12})

	t.Run("missing context", func(t *testing.T) {
		_, err := DecodeData([]byte{0, 0, 0, 0, 1, 0, 2, 0}, nil)
		assert.ErrorIs(t, err, ErrMissingContext)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := DecodeData([]byte{0, 0, 0, 0, 1, 0}, &layout)
		assert.ErrorIs(t, err, ErrMalformedLength)
	})

	t.Run("masks high bits", func(t *testing.T) {
		d, err := DecodeData([]byte{0, 0, 0, 0, 0xFF, 0xFF, 0x01, 0x00}, &layout)
		require.NoError(t, err)
		assert.Equal(t, []Sample{{Index: 0, Value: 0xFFF}, {Index: 1, Value: 1}}, d.Samples)
	})

	t.Run("no active sensors", func(t *testing.T) {
		var empty SampleLayout
		d, err := DecodeData([]byte{9, 0, 0, 0}, &empty)
		require.NoError(t, err)
		assert.Equal(t, uint32(9), d.Timestamp)
		assert.Empty(t, d.Samples)
	})
}
