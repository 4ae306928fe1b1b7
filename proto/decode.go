package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"github.com/hetianyi/gotftp/common"
)

// Decode parses a datagram. All failures wrap MalformedPacketErr.
//
// The returned packet never aliases b, so the caller may reuse
// its receive buffer right away.
func Decode(b []byte) (*Packet, error) {
	if len(b) < 2 {
		return nil, malformed("%d byte datagram has no opcode", len(b))
	}
	op := Opcode(binary.BigEndian.Uint16(b))
	switch op {
	case OP_RRQ, OP_WRQ:
		filename, rest, err := readString(b[2:])
		if err != nil {
			return nil, malformed("%s filename: %v", op, err)
		}
		mode, _, err := readString(rest)
		if err != nil {
			return nil, malformed("%s mode: %v", op, err)
		}
		// option extensions after the mode are ignored
		return &Packet{Opcode: op, Filename: filename, Mode: mode}, nil
	case OP_DATA:
		if len(b) < 4 {
			return nil, malformed("DATA header truncated at %d bytes", len(b))
		}
		if len(b)-4 > common.BLOCK_SIZE {
			return nil, malformed("DATA payload of %d bytes", len(b)-4)
		}
		payload := make([]byte, len(b)-4)
		copy(payload, b[4:])
		return &Packet{Opcode: op, Block: binary.BigEndian.Uint16(b[2:]), Payload: payload}, nil
	case OP_ACK:
		if len(b) < 4 {
			return nil, malformed("ACK truncated at %d bytes", len(b))
		}
		return &Packet{Opcode: op, Block: binary.BigEndian.Uint16(b[2:])}, nil
	case OP_ERROR:
		if len(b) < 4 {
			return nil, malformed("ERROR header truncated at %d bytes", len(b))
		}
		message, _, err := readString(b[4:])
		if err != nil {
			return nil, malformed("ERROR message: %v", err)
		}
		return &Packet{Opcode: op, Code: binary.BigEndian.Uint16(b[2:]), Message: message}, nil
	}
	return nil, malformed("unknown opcode %d", op)
}

// readString reads one NUL-terminated field and returns what follows it.
func readString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("missing terminator")
	}
	return string(b[:i]), b[i+1:], nil
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{MalformedPacketErr}, args...)...)
}
