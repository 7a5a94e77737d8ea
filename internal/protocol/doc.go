// Package protocol implements the KineIntra host/sensor-MCU binary protocol.
//
// This package handles encoding, decoding and stream reassembly of the frames
// exchanged between the host and the sensor acquisition microcontroller. It
// performs no I/O; the transport package owns the channel and feeds bytes in.
//
// # Frame Format
//
// Every message travels in the same envelope:
//   - SOF: 0xA5 0x5A
//   - Version: 0x01
//   - Kind: 1 byte (STATUS, DATA, COMMAND, ACK, ERROR)
//   - Length: 2 bytes (little-endian)
//   - Payload: Length bytes
//   - CRC: 2 bytes (little-endian) CRC-16-CCITT over version|kind|length|payload
//
// # Payloads
//
//   - STATUS: fixed 144 bytes, the full 32-slot device configuration
//   - DATA: u32 timestamp then one packed field per active sensor
//   - COMMAND: cmd_id, seq, fixed-length arguments
//   - ACK: cmd_id, seq, result
//   - ERROR: u32 timestamp, code, u16 aux
//
// DATA samples are not self-describing. Each field occupies ceil(bits/8) bytes
// and decoding needs the active map and bit depths from the last STATUS,
// passed explicitly as a SampleLayout:
//
//	status, _ := protocol.DecodeStatus(statusFrame.Payload)
//	layout := status.Layout()
//	data, err := protocol.DecodeData(dataFrame.Payload, &layout)
//
// # Reassembly
//
// Reassembler is a resynchronizing state machine
// (WaitSOF1 -> WaitSOF2 -> ReadHeader -> ReadPayload -> ReadCRC). It emits
// frames with a CRCValid flag instead of failing, and drops a partial frame
// that stalls longer than its stall timeout.
//
//	r := protocol.NewReassembler()
//	for _, f := range r.Process(chunk) {
//	    if !f.CRCValid {
//	        continue
//	    }
//	    msg, err := protocol.Decode(&f, layout)
//	    ...
//	}
//
// # Thread Safety
//
// Encoding and decoding functions are stateless and safe for concurrent use.
// A Reassembler must be owned by a single goroutine.
package protocol
