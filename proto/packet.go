// Package proto implements the TFTP wire format (RFC 1350).
//
// Every packet starts with a big-endian 16-bit opcode. Requests and errors
// carry NUL-terminated strings, DATA carries at most common.BLOCK_SIZE payload
// bytes and a payload shorter than that ends the transfer.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/hetianyi/gotftp/common"
	"strings"
)

type Opcode uint16

// packet opcodes
const (
	OP_RRQ Opcode = iota + 1
	OP_WRQ
	OP_DATA
	OP_ACK
	OP_ERROR
)

// error codes carried by ERROR packets
const (
	ERR_UNDEFINED uint16 = iota
	ERR_FILE_NOT_FOUND
	ERR_ACCESS_VIOLATION
	ERR_DISK_FULL
	ERR_ILLEGAL_OPERATION
	ERR_UNKNOWN_TRANSFER_ID
	ERR_FILE_EXISTS
	ERR_NO_SUCH_USER
)

var (
	MalformedPacketErr = errors.New("malformed packet")
	PayloadTooLargeErr = errors.New("data payload exceeds block size")
	InvalidFieldErr    = errors.New("string field contains NUL byte")
)

var errorCodeNames = map[uint16]string{
	ERR_UNDEFINED:           "undefined",
	ERR_FILE_NOT_FOUND:      "file not found",
	ERR_ACCESS_VIOLATION:    "access violation",
	ERR_DISK_FULL:           "disk full or allocation exceeded",
	ERR_ILLEGAL_OPERATION:   "illegal TFTP operation",
	ERR_UNKNOWN_TRANSFER_ID: "unknown transfer ID",
	ERR_FILE_EXISTS:         "file already exists",
	ERR_NO_SUCH_USER:        "no such user",
}

// Packet is a decoded TFTP message. Which fields are meaningful depends on Opcode:
// Filename and Mode for requests, Block and Payload for DATA, Block for ACK,
// Code and Message for ERROR.
type Packet struct {
	Opcode   Opcode
	Filename string
	Mode     string
	Block    uint16
	Payload  []byte
	Code     uint16
	Message  string
}

func NewReadRequest(filename, mode string) *Packet {
	return &Packet{Opcode: OP_RRQ, Filename: filename, Mode: mode}
}

func NewWriteRequest(filename, mode string) *Packet {
	return &Packet{Opcode: OP_WRQ, Filename: filename, Mode: mode}
}

func NewData(block uint16, payload []byte) *Packet {
	return &Packet{Opcode: OP_DATA, Block: block, Payload: payload}
}

func NewAck(block uint16) *Packet {
	return &Packet{Opcode: OP_ACK, Block: block}
}

// NewError builds an ERROR packet, falling back to the standard
// text of the code when message is empty.
func NewError(code uint16, message string) *Packet {
	if message == "" {
		message = ErrorCodeName(code)
	}
	return &Packet{Opcode: OP_ERROR, Code: code, Message: message}
}

// IsTerminal reports whether p is the last DATA block of a transfer.
func (p *Packet) IsTerminal() bool {
	return p.Opcode == OP_DATA && len(p.Payload) < common.BLOCK_SIZE
}

func (p *Packet) String() string {
	switch p.Opcode {
	case OP_RRQ:
		return fmt.Sprintf("RRQ{%s, %s}", p.Filename, p.Mode)
	case OP_WRQ:
		return fmt.Sprintf("WRQ{%s, %s}", p.Filename, p.Mode)
	case OP_DATA:
		return fmt.Sprintf("DATA{%d, %d bytes}", p.Block, len(p.Payload))
	case OP_ACK:
		return fmt.Sprintf("ACK{%d}", p.Block)
	case OP_ERROR:
		return fmt.Sprintf("ERROR{%d, %s}", p.Code, p.Message)
	}
	return fmt.Sprintf("UNKNOWN{%d}", p.Opcode)
}

func (o Opcode) String() string {
	switch o {
	case OP_RRQ:
		return "RRQ"
	case OP_WRQ:
		return "WRQ"
	case OP_DATA:
		return "DATA"
	case OP_ACK:
		return "ACK"
	case OP_ERROR:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ErrorCodeName returns the RFC 1350 description of an error code.
func ErrorCodeName(code uint16) string {
	if s, ok := errorCodeNames[code]; ok {
		return s
	}
	return errorCodeNames[ERR_UNDEFINED]
}

// Encode serialises p into its exact wire form.
func Encode(p *Packet) ([]byte, error) {
	switch p.Opcode {
	case OP_RRQ, OP_WRQ:
		if strings.IndexByte(p.Filename, 0) >= 0 || strings.IndexByte(p.Mode, 0) >= 0 {
			return nil, InvalidFieldErr
		}
		buf := make([]byte, 0, 2+len(p.Filename)+1+len(p.Mode)+1)
		buf = appendOpcode(buf, p.Opcode)
		buf = append(buf, p.Filename...)
		buf = append(buf, 0)
		buf = append(buf, p.Mode...)
		return append(buf, 0), nil
	case OP_DATA:
		if len(p.Payload) > common.BLOCK_SIZE {
			return nil, PayloadTooLargeErr
		}
		buf := make([]byte, 4+len(p.Payload))
		binary.BigEndian.PutUint16(buf, uint16(OP_DATA))
		binary.BigEndian.PutUint16(buf[2:], p.Block)
		copy(buf[4:], p.Payload)
		return buf, nil
	case OP_ACK:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf, uint16(OP_ACK))
		binary.BigEndian.PutUint16(buf[2:], p.Block)
		return buf, nil
	case OP_ERROR:
		if strings.IndexByte(p.Message, 0) >= 0 {
			return nil, InvalidFieldErr
		}
		buf := make([]byte, 4, 4+len(p.Message)+1)
		binary.BigEndian.PutUint16(buf, uint16(OP_ERROR))
		binary.BigEndian.PutUint16(buf[2:], p.Code)
		buf = append(buf, p.Message...)
		return append(buf, 0), nil
	}
	return nil, fmt.Errorf("encode: unknown opcode %d", p.Opcode)
}

func appendOpcode(buf []byte, op Opcode) []byte {
	return append(buf, byte(op>>8), byte(op))
}

// CodeOf maps a local failure onto the error code reported to the peer.
func CodeOf(err error) uint16 {
	switch {
	case errors.Is(err, common.FileNotFoundErr):
		return ERR_FILE_NOT_FOUND
	case errors.Is(err, common.AccessViolationErr):
		return ERR_ACCESS_VIOLATION
	case errors.Is(err, common.DiskFullErr):
		return ERR_DISK_FULL
	case errors.Is(err, common.UnexpectedMessageErr), errors.Is(err, common.BlockMismatchErr):
		return ERR_ILLEGAL_OPERATION
	}
	return ERR_UNDEFINED
}
