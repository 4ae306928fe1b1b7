package svc

import (
	"bytes"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/proto"
	"github.com/hetianyi/gotftp/reg"
	"github.com/hetianyi/gotftp/store"
	"github.com/hetianyi/gox/logger"
	"net"
	"sync"
	"time"
)

// Replier sends a datagram to a peer. net.PacketConn satisfies it.
type Replier interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Journal receives every finished transfer.
type Journal interface {
	Write(record *common.TransferRecord) error
}

type HandlerConfig struct {
	Registry *reg.Registry
	Store    store.ByteStore
	Out      Replier
	Journal  Journal // optional
	Timeout  time.Duration
	Retries  int // 0 means the default
	ReadOnly bool
}

// Handler is the server side transfer state machine. Each call to Handle
// is one step for one peer and sends at most one datagram back.
type Handler struct {
	lock     *sync.Mutex
	registry *reg.Registry
	store    store.ByteStore
	out      Replier
	journal  Journal
	timeout  time.Duration
	retries  int
	readOnly bool
	now      func() time.Time
}

func NewHandler(c *HandlerConfig) *Handler {
	h := &Handler{
		lock:     new(sync.Mutex),
		registry: c.Registry,
		store:    c.Store,
		out:      c.Out,
		journal:  c.Journal,
		timeout:  c.Timeout,
		retries:  c.Retries,
		readOnly: c.ReadOnly,
		now:      time.Now,
	}
	if h.registry == nil {
		h.registry = reg.NewRegistry()
	}
	if h.timeout <= 0 {
		h.timeout = common.DEFAULT_TIMEOUT
	}
	if h.retries <= 0 {
		h.retries = common.DEFAULT_RETRIES
	}
	return h
}

// Sessions returns a snapshot of the active transfers.
func (h *Handler) Sessions() []reg.SessionInfo {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.registry.Snapshot()
}

// Handle processes one datagram received from addr.
func (h *Handler) Handle(addr net.Addr, datagram []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()

	pkt, err := proto.Decode(datagram)
	if err != nil {
		logger.Warn("drop datagram from ", addr, ": ", err)
		return
	}
	logger.Debug("received ", pkt, " from ", addr)

	s := h.registry.Lookup(addr)
	if s == nil {
		h.handleNew(addr, pkt, datagram)
		return
	}
	if pkt.Opcode == proto.OP_ERROR {
		s.Err = &common.PeerError{Code: pkt.Code, Message: pkt.Message}
		logger.Warn("transfer of ", s.Filename, " with ", addr, " aborted by peer: ", s.Err)
		h.terminate(s, common.ABORTED)
		return
	}
	if pkt.Opcode == proto.OP_RRQ || pkt.Opcode == proto.OP_WRQ {
		// the peer did not see our first reply yet
		if !s.Acknowledged && bytes.Equal(datagram, s.Request) {
			logger.Debug("duplicate request from ", addr, ", resend pending packet")
			h.resend(s)
			return
		}
		h.abort(s, common.UnexpectedMessageErr)
		return
	}
	if s.Direction.Sending() && pkt.Opcode == proto.OP_ACK {
		h.onAck(s, pkt)
		return
	}
	if !s.Direction.Sending() && pkt.Opcode == proto.OP_DATA {
		h.onData(s, pkt)
		return
	}
	h.abort(s, common.UnexpectedMessageErr)
}

// Retransmit re-sends the pending packet of every session whose deadline
// has passed and aborts those out of retries.
func (h *Handler) Retransmit(now time.Time) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, s := range h.registry.Expired(now) {
		if !s.Backoff(h.timeout, now) {
			s.Err = common.RetriesExhaustedErr
			logger.Warn("transfer of ", s.Filename, " with ", s.Peer, " timed out after ", s.Retransmissions, " retransmissions")
			h.terminate(s, common.ABORTED)
			continue
		}
		logger.Debug("retransmit block ", s.LastBlock, " to ", s.Peer, ", ", s.RetriesRemaining, " retries left")
		h.write(s.Pending, s.Peer)
	}
}

func (h *Handler) handleNew(addr net.Addr, pkt *proto.Packet, datagram []byte) {
	switch pkt.Opcode {
	case proto.OP_RRQ:
		h.startDownload(addr, pkt, datagram)
	case proto.OP_WRQ:
		h.startUpload(addr, pkt, datagram)
	case proto.OP_ERROR:
		logger.Debug("ignore error packet from ", addr, " without active transfer: ", pkt.Message)
	default:
		logger.Warn("drop ", pkt.Opcode, " from ", addr, ": no active transfer")
	}
}

func (h *Handler) startDownload(addr net.Addr, pkt *proto.Packet, datagram []byte) {
	r, size, err := h.store.OpenForRead(pkt.Filename)
	if err != nil {
		logger.Info("refuse read request of ", pkt.Filename, " from ", addr, ": ", err)
		h.refuse(addr, pkt, common.DOWNLOAD, err)
		return
	}
	s, _ := h.registry.RegisterIfAbsent(addr)
	h.initSession(s, pkt, datagram, common.DOWNLOAD)
	s.Reader = r
	s.ExpectedFinalBlock = proto.ExpectedFinalBlock(size)
	logger.Info("start sending ", pkt.Filename, " (", size, " bytes, ", s.ExpectedFinalBlock, " blocks) to ", addr)
	h.sendNextBlock(s)
}

func (h *Handler) startUpload(addr net.Addr, pkt *proto.Packet, datagram []byte) {
	if h.readOnly {
		logger.Info("refuse write request of ", pkt.Filename, " from ", addr, ": server is read-only")
		h.refuse(addr, pkt, common.UPLOAD, common.AccessViolationErr)
		return
	}
	w, err := h.store.OpenForWrite(pkt.Filename)
	if err != nil {
		logger.Info("refuse write request of ", pkt.Filename, " from ", addr, ": ", err)
		h.refuse(addr, pkt, common.UPLOAD, err)
		return
	}
	s, _ := h.registry.RegisterIfAbsent(addr)
	h.initSession(s, pkt, datagram, common.UPLOAD)
	s.Writer = w
	logger.Info("start receiving ", pkt.Filename, " from ", addr)
	h.send(s, proto.NewAck(0))
}

func (h *Handler) initSession(s *reg.Session, pkt *proto.Packet, datagram []byte, dir common.Direction) {
	s.Filename = pkt.Filename
	if pkt.Mode != "" {
		s.Mode = pkt.Mode
	}
	s.Direction = dir
	s.State = common.TRANSFERRING
	s.Request = append([]byte(nil), datagram...)
	s.StartTime = h.now()
}

func (h *Handler) onAck(s *reg.Session, pkt *proto.Packet) {
	d := proto.BlockDiff(pkt.Block, s.LastBlock)
	switch {
	case d == 0 && s.LastWasTerminal:
		logger.Info("sent ", s.Filename, " to ", s.Peer, ": ", s.Cursor, " bytes in ", s.Blocks, " blocks")
		h.terminate(s, common.COMPLETED)
	case d == 0:
		s.Acknowledged = true
		h.sendNextBlock(s)
	case d < 0:
		logger.Debug("duplicate ack ", pkt.Block, " from ", s.Peer, ", resend block ", s.LastBlock)
		h.resend(s)
	default:
		h.abort(s, common.BlockMismatchErr)
	}
}

func (h *Handler) onData(s *reg.Session, pkt *proto.Packet) {
	d := proto.BlockDiff(pkt.Block, s.LastBlock)
	switch {
	case d == 1:
		s.Acknowledged = true
		if err := s.Writer.Append(pkt.Payload); err != nil {
			h.abort(s, err)
			return
		}
		s.LastBlock = pkt.Block
		s.Blocks++
		s.Cursor += int64(len(pkt.Payload))
		if !pkt.IsTerminal() {
			h.send(s, proto.NewAck(pkt.Block))
			return
		}
		if err := s.Writer.Commit(); err != nil {
			h.abort(s, err)
			return
		}
		s.Writer = nil
		h.send(s, proto.NewAck(pkt.Block))
		logger.Info("received ", s.Filename, " from ", s.Peer, ": ", s.Cursor, " bytes in ", s.Blocks, " blocks")
		h.terminate(s, common.COMPLETED)
	case d == 0:
		logger.Debug("duplicate data ", pkt.Block, " from ", s.Peer, ", resend ack")
		h.resend(s)
	default:
		h.abort(s, common.BlockMismatchErr)
	}
}

// sendNextBlock reads the next chunk and sends it as the next DATA block.
func (h *Handler) sendNextBlock(s *reg.Session) {
	buf := make([]byte, common.BLOCK_SIZE)
	n, err := s.Reader.ReadNext(buf)
	if err != nil {
		h.abort(s, err)
		return
	}
	s.LastBlock++
	s.Blocks++
	s.Cursor += int64(n)
	s.LastWasTerminal = n < common.BLOCK_SIZE
	h.send(s, proto.NewData(s.LastBlock, buf[:n]))
}

// send encodes pkt, sends it and arms the retransmission deadline.
func (h *Handler) send(s *reg.Session, pkt *proto.Packet) {
	wire, err := proto.Encode(pkt)
	if err != nil {
		h.abort(s, err)
		return
	}
	s.Arm(wire, h.timeout, h.retries, h.now())
	h.write(wire, s.Peer)
}

func (h *Handler) resend(s *reg.Session) {
	if s.Pending != nil {
		h.write(s.Pending, s.Peer)
	}
}

// abort replies with the error code matching err and drops the session.
func (h *Handler) abort(s *reg.Session, err error) {
	s.Err = err
	logger.Warn("abort transfer of ", s.Filename, " with ", s.Peer, ": ", err)
	h.reply(s.Peer, proto.CodeOf(err), err.Error())
	h.terminate(s, common.ABORTED)
}

// refuse answers a request that never became a session.
func (h *Handler) refuse(addr net.Addr, pkt *proto.Packet, dir common.Direction, err error) {
	code := proto.CodeOf(err)
	msg := proto.ErrorCodeName(code)
	if code == proto.ERR_UNDEFINED {
		msg = err.Error()
	}
	h.reply(addr, code, msg)
	now := h.now()
	h.record(&common.TransferRecord{
		Peer:      addr.String(),
		Filename:  pkt.Filename,
		Direction: dir.String(),
		Result:    "refused",
		StartTime: millis(now),
		EndTime:   millis(now),
		Error:     err.Error(),
	})
}

func (h *Handler) terminate(s *reg.Session, state common.SessionState) {
	s.State = state
	s.Pending = nil
	rec := &common.TransferRecord{
		Id:        s.Id,
		Peer:      s.Peer.String(),
		Filename:  s.Filename,
		Direction: s.Direction.String(),
		Result:    state.String(),
		Bytes:     s.Cursor,
		Blocks:    s.Blocks,
		StartTime: millis(s.StartTime),
		EndTime:   millis(h.now()),
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}
	h.registry.Deregister(s.Peer)
	h.record(rec)
}

func (h *Handler) record(rec *common.TransferRecord) {
	if h.journal == nil {
		return
	}
	if err := h.journal.Write(rec); err != nil {
		logger.Error("failed to write transfer journal: ", err)
	}
}

func (h *Handler) reply(addr net.Addr, code uint16, msg string) {
	wire, err := proto.Encode(proto.NewError(code, msg))
	if err != nil {
		logger.Error("cannot encode error reply: ", err)
		return
	}
	h.write(wire, addr)
}

func (h *Handler) write(b []byte, addr net.Addr) {
	if _, err := h.out.WriteTo(b, addr); err != nil {
		logger.Error("send to ", addr, " failed: ", err)
	}
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
