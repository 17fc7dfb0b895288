// Package link provides the servo link wire protocol.
//
// The servo link protocol is spoken between a servo/flight controller
// firmware and a host over a peer-to-peer byte stream (serial port, radio
// modem, tunneled TCP). It is a small command/response protocol with an
// unsolicited telemetry stream.
//
// Each frame is
//
//	[opcode:1][length:1][payload:length][crc8:1]
//
// Protocol version 1 uses CRC-8 with polynomial 0x07, zero init, no
// reflection and no final xor, computed over opcode, length and payload.
// Any single or double bit error within a frame is detected, as is any
// burst of up to 8 bits. Random corruption still passes with a chance of
// 1 in 256, so the Reader additionally requires a known opcode and a
// payload length within the opcode's bounds before accepting a frame.
//
// There is no dedicated ACK opcode: a response echoes the opcode of the
// request. A rejected command is answered with a LOG frame carrying the
// NACK marker, the rejected opcode and an error code.
package link
