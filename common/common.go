package common

import (
	"errors"
	"time"
)

const (
	VERSION                          = "1.0.0"
	SERVER                  BootMode = 0
	CLIENT                  BootMode = 1
	DEFAULT_SERVER_PORT              = 69
	DEFAULT_HTTP_PORT                = 8069
	DEFAULT_BIND_ADDRESS             = "0.0.0.0"
	DEFAULT_MODE                     = "octet"
	DEFAULT_TIMEOUT                  = time.Second
	DEFAULT_RETRIES                  = 5
	REACTOR_TICK                     = time.Millisecond * 200
	SESSION_REPORT_INTERVAL          = time.Second * 30
	BLOCK_SIZE                       = 512
	MAX_PACKET_SIZE                  = 4 + BLOCK_SIZE
	DEFAULT_JOURNAL_FILE             = "transfers.db"
)

// commands resolved from the command line
const (
	CMD_SHOW_HELP Command = iota
	CMD_BOOT_SERVER
	CMD_GET_FILE
	CMD_PUT_FILE
	CMD_MENU
)

// transfer directions, server side then client side.
const (
	DOWNLOAD Direction = iota // server sends a file to the peer
	UPLOAD                    // server receives a file from the peer
	GET                       // client receives a file from the server
	PUT                       // client sends a file to the server
)

// session states
const (
	REQUESTING SessionState = iota
	TRANSFERRING
	COMPLETED
	ABORTED
)

var (
	FileNotFoundErr      = errors.New("file not found")
	FileIOErr            = errors.New("file i/o error")
	AccessViolationErr   = errors.New("access violation")
	DiskFullErr          = errors.New("disk full")
	UnexpectedMessageErr = errors.New("unexpected message")
	BlockMismatchErr     = errors.New("block number mismatch")
	RetriesExhaustedErr  = errors.New("retries exhausted")
)

var (
	BootAs                         BootMode
	InitializedServerConfiguration *ServerConfig
	InitializedClientConfiguration *ClientConfig
)
