package protocol

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually by tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func mustEncode(t *testing.T, kind Kind, payload []byte) []byte {
	t.Helper()
	raw, err := Encode(kind, payload)
	require.NoError(t, err)
	return raw
}

// testStream is a mix of valid frames, garbage and an invalid-CRC frame.
func testStream(t *testing.T) []byte {
	var s []byte
	s = append(s, 0x00, 0xA5, 0x13, 0xFF)
	s = append(s, mustEncode(t, KindStatus, EncodeStatus(sampleStatus()))...)
	s = append(s, mustEncode(t, KindAck, []byte{0x01, 0x01, 0x00})...)
	bad := mustEncode(t, KindError, EncodeError(ErrorPayload{Code: ErrCodeLowVoltage}))
	bad[len(bad)-2] ^= 0x55
	s = append(s, bad...)
	s = append(s, 0x5A, 0x5A)
	s = append(s, mustEncode(t, KindCommand, nil)...)
	return s
}

func TestReassemblerWholeStream(t *testing.T) {
	r := NewReassembler(WithStallTimeout(0))
	frames := r.Process(testStream(t))

	require.Len(t, frames, 4)
	assert.Equal(t, KindStatus, frames[0].Kind)
	assert.Equal(t, KindAck, frames[1].Kind)
	assert.Equal(t, KindError, frames[2].Kind)
	assert.Equal(t, KindCommand, frames[3].Kind)

	assert.True(t, frames[0].CRCValid)
	assert.True(t, frames[1].CRCValid)
	assert.False(t, frames[2].CRCValid)
	assert.True(t, frames[3].CRCValid)
	assert.Empty(t, frames[3].Payload)

	st := r.Stats()
	assert.Equal(t, uint64(4), st.Frames)
	assert.Equal(t, uint64(1), st.CRCErrors)
	assert.Equal(t, WaitSOF1, r.State())
}

func TestReassemblerFragmentationInvariance(t *testing.T) {
	stream := testStream(t)
	want := NewReassembler(WithStallTimeout(0)).Process(stream)

	t.Run("byte at a time", func(t *testing.T) {
		r := NewReassembler(WithStallTimeout(0))
		var got []Frame
		for i := range stream {
			got = append(got, r.Process(stream[i:i+1])...)
		}
		assert.Equal(t, want, got)
	})

	t.Run("every two-way split", func(t *testing.T) {
		for cut := 0; cut <= len(stream); cut++ {
			r := NewReassembler(WithStallTimeout(0))
			got := append(r.Process(stream[:cut]), r.Process(stream[cut:])...)
			if !assert.Equal(t, want, got, "split at %d", cut) {
				return
			}
		}
	})

	t.Run("random chunking", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for trial := 0; trial < 100; trial++ {
			r := NewReassembler(WithStallTimeout(0))
			var got []Frame
			for off := 0; off < len(stream); {
				n := 1 + rng.Intn(40)
				if off+n > len(stream) {
					n = len(stream) - off
				}
				got = append(got, r.Process(stream[off:off+n])...)
				off += n
			}
			if !assert.Equal(t, want, got, "trial %d", trial) {
				return
			}
		}
	})
}

func TestReassemblerResync(t *testing.T) {
	garbage := []byte{0x13, 0x37, 0xA5, 0x00, 0xA5, 0x01, 0x02, 0xFF}
	frame := mustEncode(t, KindAck, []byte{0x02, 0x07, 0x00})

	r := NewReassembler(WithStallTimeout(0))
	frames := r.Process(append(garbage, frame...))

	require.Len(t, frames, 1)
	require.True(t, frames[0].CRCValid)
	ack, err := DecodeAck(frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, AckPayload{CommandID: CmdStartMeasure, Seq: 7, Result: AckOK}, ack)
	assert.Equal(t, uint64(len(garbage)), r.Stats().DiscardedBytes)
}

func TestReassemblerDropsByteAfterFailedSOF2(t *testing.T) {
	frame := mustEncode(t, KindAck, []byte{0x01, 0x05, 0x00})

	r := NewReassembler(WithStallTimeout(0))
	// The second 0xA5 is consumed as the failed SOF2 candidate and not
	// re-tested, so this frame is lost.
	frames := r.Process(append([]byte{0xA5}, frame...))
	assert.Empty(t, frames)

	// The next clean frame is still recovered.
	frames = r.Process(frame)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].CRCValid)
}

func TestReassemblerCorruptCRC(t *testing.T) {
	frame := mustEncode(t, KindAck, []byte{0x01, 0x05, 0x00})
	frame[len(frame)-1] ^= 0xFF
	frame[len(frame)-2] ^= 0xFF

	frames := NewReassembler().Process(frame)
	if len(frames) == 1 {
		assert.False(t, frames[0].CRCValid)
	} else {
		assert.Empty(t, frames)
	}
}

func TestReassemblerStallTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewReassembler(WithStallTimeout(100*time.Millisecond), WithClock(clock.Now))

	frame := mustEncode(t, KindAck, []byte{0x01, 0x05, 0x00})

	assert.Empty(t, r.Process(frame[:5]))
	assert.Equal(t, ReadHeader, r.State())

	clock.Advance(150 * time.Millisecond)
	frames := r.Process(frame)
	require.Len(t, frames, 1, "stale partial frame must be discarded before the new bytes")
	assert.True(t, frames[0].CRCValid)

	st := r.Stats()
	assert.Equal(t, uint64(1), st.StallResets)
	assert.Equal(t, uint64(5), st.DiscardedBytes)
}

func TestReassemblerNoStallWithinTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewReassembler(WithStallTimeout(100*time.Millisecond), WithClock(clock.Now))
	frame := mustEncode(t, KindAck, []byte{0x01, 0x05, 0x00})

	for i := range frame {
		clock.Advance(50 * time.Millisecond)
		frames := r.Process(frame[i : i+1])
		if i < len(frame)-1 {
			assert.Empty(t, frames)
		} else {
			require.Len(t, frames, 1)
		}
	}
	assert.Zero(t, r.Stats().StallResets)
}

func TestReassemblerLargePayload(t *testing.T) {
	payload := make([]byte, 4000)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := mustEncode(t, KindData, payload)

	r := NewReassembler(WithStallTimeout(0))
	var got []Frame
	for off := 0; off < len(frame); off += 512 {
		end := off + 512
		if end > len(frame) {
			end = len(frame)
		}
		got = append(got, r.Process(frame[off:end])...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0].Payload)
	assert.Len(t, got[0].Payload, cap(got[0].Payload))
}

func TestReassemblerReset(t *testing.T) {
	r := NewReassembler(WithStallTimeout(0))
	r.Process([]byte{0xA5, 0x5A, 0x01})
	require.Equal(t, ReadHeader, r.State())
	r.Reset()
	assert.Equal(t, WaitSOF1, r.State())
	assert.Equal(t, uint64(3), r.Stats().DiscardedBytes)
}
