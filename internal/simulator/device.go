package simulator

import (
	"math/bits"
	"sync"
	"time"

	"github.com/kineintra/kineintra/internal/protocol"
)

// Power-on configuration of the acquisition board.
const (
	DefaultSensorCount = 8
	DefaultActiveMap   = 0xFF
	DefaultHealthMap   = 0xFF
	DefaultRate        = 100
	DefaultBits        = 12
	DefaultRole        = protocol.RoleFSR
)

// Device is the firmware state machine. It performs no I/O; Serve drives it
// and turns its replies into frames. Methods are safe for concurrent use.
type Device struct {
	mu sync.Mutex

	state       protocol.DeviceState
	sensorCount uint8
	activeMap   uint32
	healthMap   uint32
	rates       [protocol.MaxSensors]uint16
	bits        [protocol.MaxSensors]uint8
	roles       [protocol.MaxSensors]protocol.SensorRole
	adcFlags    uint16
	calMode     uint8

	now   func() time.Time
	epoch time.Time

	// changed is signalled on every state or configuration change.
	changed chan struct{}
}

// NewDevice returns a device in its power-on configuration.
func NewDevice() *Device {
	return newDevice(time.Now)
}

func newDevice(now func() time.Time) *Device {
	d := &Device{
		state:       protocol.StateIdle,
		sensorCount: DefaultSensorCount,
		activeMap:   DefaultActiveMap,
		healthMap:   DefaultHealthMap,
		now:         now,
		changed:     make(chan struct{}, 1),
	}
	for i := range d.rates {
		d.rates[i] = DefaultRate
		d.bits[i] = DefaultBits
		d.roles[i] = DefaultRole
	}
	d.epoch = now()
	return d
}

// State returns the current device state.
func (d *Device) State() protocol.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Status snapshots the device as a STATUS payload.
func (d *Device) Status() protocol.StatusPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

func (d *Device) statusLocked() protocol.StatusPayload {
	return protocol.StatusPayload{
		State:         d.state,
		SensorCount:   d.sensorCount,
		ActiveMap:     d.activeMap,
		HealthMap:     d.healthMap,
		SampleRates:   d.rates,
		BitsPerSample: d.bits,
		Roles:         d.roles,
		ADCFlags:      d.adcFlags,
	}
}

// Changed is signalled after any command that altered the device.
func (d *Device) Changed() <-chan struct{} {
	return d.changed
}

func (d *Device) signal() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Timestamp returns microseconds since the last START_MEASURE (or power-on),
// wrapping at 2^32 like the firmware counter.
func (d *Device) Timestamp() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timestampLocked()
}

func (d *Device) timestampLocked() uint32 {
	return uint32(d.now().Sub(d.epoch).Microseconds())
}

// FrameRate is the DATA frame rate while measuring: the fastest active
// sensor sets the pace. Zero means nothing to stream.
func (d *Device) FrameRate() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var fastest uint16
	for _, i := range d.indicesLocked() {
		if d.rates[i] > fastest {
			fastest = d.rates[i]
		}
	}
	return fastest
}

// Layout returns the sample layout DATA frames are encoded with.
func (d *Device) Layout() protocol.SampleLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return protocol.SampleLayout{ActiveMap: d.activeMap, Bits: d.bits}
}

func (d *Device) indicesLocked() []int {
	var out []int
	for i := 0; i < protocol.MaxSensors; i++ {
		if d.activeMap&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

// Reply is what the device sends back for one command: always an Ack, and a
// Status push when the command succeeded.
type Reply struct {
	Ack    protocol.AckPayload
	Status *protocol.StatusPayload
}

// Handle applies one decoded command. argErr is the error DecodeCommand
// returned alongside cmd, if any.
func (d *Device) Handle(cmd protocol.CommandPayload, argErr error) Reply {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := d.applyLocked(cmd, argErr)
	reply := Reply{Ack: protocol.AckPayload{CommandID: cmd.ID, Seq: cmd.Seq, Result: result}}
	if result == protocol.AckOK {
		st := d.statusLocked()
		reply.Status = &st
		d.signal()
	}
	return reply
}

func (d *Device) applyLocked(cmd protocol.CommandPayload, argErr error) protocol.AckResult {
	if _, known := cmd.ID.ArgLen(); !known {
		return protocol.AckInvalidCommand
	}
	if argErr != nil {
		return protocol.AckInvalidArgument
	}
	if r, ok := d.legalLocked(cmd); !ok {
		return r
	}

	switch cmd.ID {
	case protocol.CmdGetStatus:
		// reply carries the status

	case protocol.CmdStartMeasure:
		d.state = protocol.StateMeasuring
		d.epoch = d.now()

	case protocol.CmdStopMeasure:
		d.state = protocol.StateIdle

	case protocol.CmdSetSensorCount:
		n := cmd.SensorCount()
		if n > protocol.MaxSensors {
			return protocol.AckInvalidArgument
		}
		d.sensorCount = n

	case protocol.CmdSetRate:
		idx, hz := cmd.Rate()
		if int(idx) >= protocol.MaxSensors {
			return protocol.AckInvalidArgument
		}
		d.rates[idx] = hz

	case protocol.CmdSetBits:
		idx, b := cmd.Bits()
		if int(idx) >= protocol.MaxSensors || b < 1 || b > 32 {
			return protocol.AckInvalidArgument
		}
		d.bits[idx] = b

	case protocol.CmdSetActiveMap:
		m := cmd.ActiveMap()
		if d.state == protocol.StateCalibrating && bits.OnesCount32(m) > 1 {
			// Calibration runs on exactly one sensor at a time.
			return protocol.AckNotAllowed
		}
		d.activeMap = m
		d.sensorCount = uint8(bits.OnesCount32(m))

	case protocol.CmdCalibrate:
		d.state = protocol.StateCalibrating
		d.calMode = cmd.Mode()

	case protocol.CmdStopCalibrate, protocol.CmdEndCalibrate:
		d.state = protocol.StateIdle
	}
	return protocol.AckOK
}

// legalLocked checks the command against the current state.
func (d *Device) legalLocked(cmd protocol.CommandPayload) (protocol.AckResult, bool) {
	switch cmd.ID {
	case protocol.CmdGetStatus:
		return protocol.AckOK, true

	case protocol.CmdStartMeasure:
		switch d.state {
		case protocol.StateIdle:
			return protocol.AckOK, true
		case protocol.StateMeasuring:
			return protocol.AckBusy, false
		}
		return protocol.AckNotAllowed, false

	case protocol.CmdStopMeasure:
		// STOP also clears a latched fault.
		if d.state == protocol.StateCalibrating {
			return protocol.AckNotAllowed, false
		}
		return protocol.AckOK, true

	case protocol.CmdSetSensorCount, protocol.CmdSetRate, protocol.CmdSetBits, protocol.CmdSetActiveMap:
		switch d.state {
		case protocol.StateMeasuring:
			return protocol.AckBusy, false
		case protocol.StateError:
			return protocol.AckNotAllowed, false
		}
		return protocol.AckOK, true

	case protocol.CmdCalibrate:
		switch d.state {
		case protocol.StateIdle:
			return protocol.AckOK, true
		case protocol.StateMeasuring:
			return protocol.AckBusy, false
		}
		return protocol.AckNotAllowed, false

	case protocol.CmdStopCalibrate, protocol.CmdEndCalibrate:
		if d.state == protocol.StateCalibrating {
			return protocol.AckOK, true
		}
		return protocol.AckNotAllowed, false
	}
	return protocol.AckInvalidCommand, false
}

// InjectFault latches the device into the Error state and returns the
// ERROR payload announcing it. Sensor faults also clear the sensor's health
// bit when aux names a valid index.
func (d *Device) InjectFault(code protocol.ErrorCode, aux uint16) protocol.ErrorPayload {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = protocol.StateError
	if code == protocol.ErrCodeSensorFault && int(aux) < protocol.MaxSensors {
		d.healthMap &^= 1 << aux
	}
	d.signal()
	return protocol.ErrorPayload{Timestamp: d.timestampLocked(), Code: code, Aux: aux}
}

// NextData samples every active sensor. ok is false when the device is not
// measuring or has no active sensors.
func (d *Device) NextData(src Source) (data protocol.DataPayload, layout protocol.SampleLayout, ok bool) {
	d.mu.Lock()
	if d.state != protocol.StateMeasuring || d.activeMap == 0 {
		d.mu.Unlock()
		return data, layout, false
	}
	layout = protocol.SampleLayout{ActiveMap: d.activeMap, Bits: d.bits}
	ts := d.timestampLocked()
	d.mu.Unlock()

	return protocol.DataPayload{Timestamp: ts, Samples: src.Samples(layout)}, layout, true
}
