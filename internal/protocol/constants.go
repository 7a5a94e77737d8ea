package protocol

import "fmt"

// Envelope constants
const (
	SOF1            = 0xA5
	SOF2            = 0x5A
	ProtocolVersion = 0x01

	HeaderSize     = 4 // version + kind + length (LE)
	CRCSize        = 2
	EnvelopeSize   = 2 + HeaderSize + CRCSize
	MaxPayloadSize = 0xFFFF

	MaxSensors = 32
)

// Kind identifies the payload carried by a frame.
type Kind uint8

// Frame kinds
const (
	KindStatus  Kind = 0x01 // Device -> host, configuration snapshot
	KindData    Kind = 0x02 // Device -> host, sample stream
	KindCommand Kind = 0x03 // Host -> device
	KindAck     Kind = 0x04 // Device -> host, command result
	KindError   Kind = 0x05 // Device -> host, asynchronous fault
)

// Valid reports whether k is one of the defined frame kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStatus, KindData, KindCommand, KindAck, KindError:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "STATUS"
	case KindData:
		return "DATA"
	case KindCommand:
		return "COMMAND"
	case KindAck:
		return "ACK"
	case KindError:
		return "ERROR"
	default:
		return fmt.Sprintf("KIND(0x%02x)", uint8(k))
	}
}

// CommandID identifies a host command.
type CommandID uint8

// Command identifiers
const (
	CmdGetStatus      CommandID = 0x01
	CmdStartMeasure   CommandID = 0x02
	CmdStopMeasure    CommandID = 0x03
	CmdSetSensorCount CommandID = 0x04 // u8 n
	CmdSetRate        CommandID = 0x05 // u8 idx, u16 hz
	CmdSetBits        CommandID = 0x06 // u8 idx, u8 bits
	CmdSetActiveMap   CommandID = 0x07 // u32 map
	CmdCalibrate      CommandID = 0x08 // u8 mode
	CmdStopCalibrate  CommandID = 0x09
	CmdEndCalibrate   CommandID = 0x0A
)

// ArgLen returns the fixed argument length for the command and false
// if the identifier is unknown.
func (c CommandID) ArgLen() (int, bool) {
	switch c {
	case CmdGetStatus, CmdStartMeasure, CmdStopMeasure, CmdStopCalibrate, CmdEndCalibrate:
		return 0, true
	case CmdSetSensorCount, CmdCalibrate:
		return 1, true
	case CmdSetBits:
		return 2, true
	case CmdSetRate:
		return 3, true
	case CmdSetActiveMap:
		return 4, true
	}
	return 0, false
}

func (c CommandID) String() string {
	switch c {
	case CmdGetStatus:
		return "GET_STATUS"
	case CmdStartMeasure:
		return "START_MEASURE"
	case CmdStopMeasure:
		return "STOP_MEASURE"
	case CmdSetSensorCount:
		return "SET_NSENSORS"
	case CmdSetRate:
		return "SET_RATE"
	case CmdSetBits:
		return "SET_BITS"
	case CmdSetActiveMap:
		return "SET_ACTIVEMAP"
	case CmdCalibrate:
		return "CALIBRATE"
	case CmdStopCalibrate:
		return "STOP_CALIBRATE"
	case CmdEndCalibrate:
		return "END_CALIBRATE"
	default:
		return fmt.Sprintf("UNKNOWN_%02X", uint8(c))
	}
}

// AckResult is the outcome code carried by an ACK frame.
type AckResult uint8

// Ack results
const (
	AckOK              AckResult = 0x00
	AckInvalidCommand  AckResult = 0x01
	AckInvalidArgument AckResult = 0x02
	AckBusy            AckResult = 0x03
	AckFailed          AckResult = 0x04
	AckNotAllowed      AckResult = 0x05
)

func (r AckResult) String() string {
	switch r {
	case AckOK:
		return "OK"
	case AckInvalidCommand:
		return "INVALID_COMMAND"
	case AckInvalidArgument:
		return "INVALID_ARGUMENT"
	case AckBusy:
		return "BUSY"
	case AckFailed:
		return "FAILED"
	case AckNotAllowed:
		return "NOT_ALLOWED"
	default:
		return fmt.Sprintf("RESULT(0x%02x)", uint8(r))
	}
}

// ErrorCode is the fault reported by an ERROR frame.
type ErrorCode uint8

// Device error codes
const (
	ErrCodeAdcOverrun     ErrorCode = 0x01
	ErrCodeSensorFault    ErrorCode = 0x02
	ErrCodeFifoCritical   ErrorCode = 0x03
	ErrCodeLowVoltage     ErrorCode = 0x04
	ErrCodeI2CError       ErrorCode = 0x05
	ErrCodeVendorSpecific ErrorCode = 0xFE
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeAdcOverrun:
		return "ADC_OVERRUN"
	case ErrCodeSensorFault:
		return "SENSOR_FAULT"
	case ErrCodeFifoCritical:
		return "FIFO_CRITICAL"
	case ErrCodeLowVoltage:
		return "LOW_VOLTAGE"
	case ErrCodeI2CError:
		return "I2C_ERROR"
	case ErrCodeVendorSpecific:
		return "VENDOR_SPECIFIC"
	default:
		return fmt.Sprintf("ERROR(0x%02x)", uint8(c))
	}
}

// DeviceState is the acquisition state reported in STATUS.
type DeviceState uint8

// Device states
const (
	StateIdle        DeviceState = 0x00
	StateMeasuring   DeviceState = 0x01
	StateCalibrating DeviceState = 0x02
	StateError       DeviceState = 0x03
)

func (s DeviceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMeasuring:
		return "MEASURING"
	case StateCalibrating:
		return "CALIBRATING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("STATE(0x%02x)", uint8(s))
	}
}

// SensorRole describes what is wired to a channel.
type SensorRole uint8

// Sensor roles
const (
	RoleNone     SensorRole = 0x00
	RoleFSR      SensorRole = 0x01
	RoleLoadCell SensorRole = 0x02
	RoleIMU      SensorRole = 0x03
)

func (r SensorRole) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleFSR:
		return "FSR"
	case RoleLoadCell:
		return "LOAD_CELL"
	case RoleIMU:
		return "IMU"
	default:
		return fmt.Sprintf("ROLE(0x%02x)", uint8(r))
	}
}
