package reg

import (
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/store"
	"github.com/hetianyi/gox/uuid"
	"net"
	"time"
)

// Session is the transfer state of one peer. It is used by both roles,
// Direction tells which end of the transfer this side is.
type Session struct {
	Id                 string
	Peer               net.Addr
	Filename           string
	Mode               string
	Direction          common.Direction
	State              common.SessionState
	Cursor             int64  // bytes moved so far
	LastBlock          uint16 // last block sent (sending) or accepted (receiving)
	Blocks             uint64 // absolute count of blocks moved
	ExpectedFinalBlock uint64
	LastWasTerminal    bool
	RetriesRemaining   int
	Retransmissions    int
	Request            []byte // the datagram that opened the session
	Acknowledged       bool   // whether the peer has acknowledged anything yet
	Pending            []byte // last packet sent and not yet acknowledged
	Deadline           time.Time
	Reader             store.Reader
	Writer             store.Writer
	StartTime          time.Time
	Err                error
}

// SessionInfo is a read-only view of a Session.
type SessionInfo struct {
	Id        string `json:"id"`
	Peer      string `json:"peer"`
	Filename  string `json:"filename"`
	Mode      string `json:"mode"`
	Direction string `json:"direction"`
	State     string `json:"state"`
	Bytes     int64  `json:"bytes"`
	Block     uint16 `json:"block"`
	Retries   int    `json:"retries"`
	StartTime int64  `json:"startTime"`
}

func NewSession(peer net.Addr) *Session {
	return &Session{
		Id:        uuid.UUID(),
		Peer:      peer,
		Mode:      common.DEFAULT_MODE,
		State:     common.REQUESTING,
		StartTime: time.Now(),
	}
}

// Arm records pkt as the pending packet and resets the retry budget.
func (s *Session) Arm(pkt []byte, timeout time.Duration, retries int, now time.Time) {
	s.Pending = pkt
	s.RetriesRemaining = retries
	s.Deadline = now.Add(timeout)
}

// Expired reports whether the pending packet is due for retransmission.
func (s *Session) Expired(now time.Time) bool {
	return s.Pending != nil && !s.Deadline.IsZero() && !now.Before(s.Deadline)
}

// Backoff consumes one retry and pushes the deadline forward.
// It returns false when no retries are left.
func (s *Session) Backoff(timeout time.Duration, now time.Time) bool {
	if s.RetriesRemaining <= 0 {
		return false
	}
	s.RetriesRemaining--
	s.Retransmissions++
	s.Deadline = now.Add(timeout)
	return true
}

// Release closes any store handle the session still holds.
// An unfinished sink is discarded.
func (s *Session) Release() {
	if s.Reader != nil {
		s.Reader.Close()
		s.Reader = nil
	}
	if s.Writer != nil {
		s.Writer.Discard()
		s.Writer = nil
	}
}

func (s *Session) Info() SessionInfo {
	peer := ""
	if s.Peer != nil {
		peer = s.Peer.String()
	}
	return SessionInfo{
		Id:        s.Id,
		Peer:      peer,
		Filename:  s.Filename,
		Mode:      s.Mode,
		Direction: s.Direction.String(),
		State:     s.State.String(),
		Bytes:     s.Cursor,
		Block:     s.LastBlock,
		Retries:   s.RetriesRemaining,
		StartTime: s.StartTime.UnixNano() / int64(time.Millisecond),
	}
}

// Duration returns the time since the session started.
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartTime)
}
