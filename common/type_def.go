package common

import (
	"fmt"
	"github.com/hetianyi/gox/convert"
	"net"
)

type BootMode uint32

type Command uint32

type Direction byte

type SessionState byte

type ServerConfig struct {
	BindAddress           string `json:"bindAddress"`
	Port                  int    `json:"port"`
	RootDir               string `json:"rootDir"`
	DataDir               string `json:"dataDir"`
	ReadOnly              bool   `json:"readOnly"`
	Timeout               int    `json:"timeout"` // retransmission timeout in milliseconds
	Retries               int    `json:"retries"`
	LogLevel              string `json:"logLevel"`
	LogDir                string `json:"logDir"`
	SaveLog2File          bool   `json:"saveLog2File"`
	MaxRollingLogfileSize int    `json:"maxRollingLogfileSize"`
	LogRotationInterval   string `json:"logRotationInterval"`
	EnableHttp            bool   `json:"enableHttp"`
	HttpPort              int    `json:"httpPort"`
	EnableJournal         bool   `json:"enableJournal"`
}

type ClientConfig struct {
	Server       string  `json:"server"`
	Mode         string  `json:"mode"`
	Timeout      int     `json:"timeout"` // milliseconds
	Retries      int     `json:"retries"`
	LogLevel     string  `json:"logLevel"`
	ParsedServer *Server `json:"-"`
}

type Server struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (s *Server) ConnectionString() string {
	return net.JoinHostPort(s.Host, convert.Uint16ToStr(s.Port))
}

// TransferRecord is one finished transfer as kept by the journal.
type TransferRecord struct {
	Id        string `json:"id"`
	Peer      string `json:"peer"`
	Filename  string `json:"filename"`
	Direction string `json:"direction"`
	Result    string `json:"result"`
	Bytes     int64  `json:"bytes"`
	Blocks    uint64 `json:"blocks"`
	StartTime int64  `json:"startTime"` // unix millis
	EndTime   int64  `json:"endTime"`
	Error     string `json:"error,omitempty"`
}

// PeerError is an ERROR packet received from the remote side.
type PeerError struct {
	Code    uint16
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer reported error %d: %s", e.Code, e.Message)
}

func (d Direction) String() string {
	switch d {
	case DOWNLOAD:
		return "download"
	case UPLOAD:
		return "upload"
	case GET:
		return "get"
	case PUT:
		return "put"
	}
	return "unknown"
}

// Sending reports whether the local side is the one emitting DATA packets.
func (d Direction) Sending() bool {
	return d == DOWNLOAD || d == PUT
}

func (s SessionState) String() string {
	switch s {
	case REQUESTING:
		return "requesting"
	case TRANSFERRING:
		return "transferring"
	case COMPLETED:
		return "completed"
	case ABORTED:
		return "aborted"
	}
	return "unknown"
}
