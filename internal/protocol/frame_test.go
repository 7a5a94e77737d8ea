package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		payload []byte
		wantErr error
		verify  func(t *testing.T, out []byte)
	}{
		{
			name:    "empty payload",
			kind:    KindCommand,
			payload: nil,
			verify: func(t *testing.T, out []byte) {
				require.Len(t, out, EnvelopeSize)
				assert.Equal(t, []byte{0xA5, 0x5A, 0x01, 0x03, 0x00, 0x00}, out[:6])
				crc := CRC16([]byte{0x01, 0x03, 0x00, 0x00})
				assert.Equal(t, []byte{byte(crc), byte(crc >> 8)}, out[6:])
			},
		},
		{
			name:    "ack payload",
			kind:    KindAck,
			payload: []byte{0x01, 0x07, 0x00},
			verify: func(t *testing.T, out []byte) {
				require.Len(t, out, EnvelopeSize+3)
				assert.Equal(t, byte(KindAck), out[3])
				assert.Equal(t, []byte{0x03, 0x00}, out[4:6], "length is little-endian")
				assert.Equal(t, []byte{0x01, 0x07, 0x00}, out[6:9])
			},
		},
		{
			name:    "payload at max size",
			kind:    KindData,
			payload: make([]byte, MaxPayloadSize),
			verify: func(t *testing.T, out []byte) {
				assert.Equal(t, []byte{0xFF, 0xFF}, out[4:6])
			},
		},
		{
			name:    "payload too large",
			kind:    KindData,
			payload: make([]byte, MaxPayloadSize+1),
			wantErr: ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Encode(tt.kind, tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.verify(t, out)
		})
	}
}

func TestParseFrame(t *testing.T) {
	valid, err := Encode(KindAck, []byte{0x02, 0x09, 0x00})
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		f, err := ParseFrame(valid)
		require.NoError(t, err)
		assert.Equal(t, KindAck, f.Kind)
		assert.Equal(t, byte(ProtocolVersion), f.Version)
		assert.True(t, f.CRCValid)
		assert.Equal(t, []byte{0x02, 0x09, 0x00}, f.Payload)

		again, err := f.Bytes()
		require.NoError(t, err)
		assert.True(t, bytes.Equal(valid, again))
	})

	t.Run("corrupted crc", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		bad[len(bad)-1] ^= 0xFF
		f, err := ParseFrame(bad)
		require.NoError(t, err)
		assert.False(t, f.CRCValid)
	})

	t.Run("bad sof", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		bad[0] = 0x00
		_, err := ParseFrame(bad)
		assert.ErrorIs(t, err, ErrBadSOF)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseFrame(valid[:len(valid)-1])
		assert.ErrorIs(t, err, ErrTruncated)
		_, err = ParseFrame(valid[:3])
		assert.ErrorIs(t, err, ErrTruncated)
	})
}

func TestFormatFrame(t *testing.T) {
	raw, err := BuildCommand(NewSetRate(5, 2, 1234))
	require.NoError(t, err)

	out := FormatFrame(raw)
	assert.Contains(t, out, "SOF     : a5 5a")
	assert.Contains(t, out, "COMMAND")
	assert.Contains(t, out, "Length  : 5")
	assert.True(t, strings.HasSuffix(out, "\n"))

	assert.Contains(t, FormatFrame([]byte{0xA5}), "short frame")
}

func TestDecodeDispatch(t *testing.T) {
	layout := SampleLayout{ActiveMap: 0b101}
	layout.Bits[0] = 12
	layout.Bits[2] = 16

	status := StatusPayload{State: StateIdle, SensorCount: 2, ActiveMap: 0b101}
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "status", msg: status},
		{name: "data", msg: DataPayload{Timestamp: 42, Samples: []Sample{{Index: 0, Value: 0xABC}, {Index: 2, Value: 0xBEEF}}}},
		{name: "command", msg: NewSetBits(9, 3, 10)},
		{name: "ack", msg: AckPayload{CommandID: CmdStartMeasure, Seq: 200, Result: AckBusy}},
		{name: "error", msg: ErrorPayload{Timestamp: 123456, Code: ErrCodeSensorFault, Aux: 0x0102}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeMessage(tt.msg, &layout)
			require.NoError(t, err)

			f, err := ParseFrame(raw)
			require.NoError(t, err)
			require.True(t, f.CRCValid)
			assert.Equal(t, tt.msg.Kind(), f.Kind)

			got, err := Decode(f, &layout)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(&Frame{Kind: Kind(0x42)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, Kind(0x42), de.Kind)
}

func TestEncodeMessageDataNeedsLayout(t *testing.T) {
	_, err := EncodeMessage(DataPayload{}, nil)
	assert.ErrorIs(t, err, ErrMissingContext)
}
