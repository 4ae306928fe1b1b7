package api

import (
	"errors"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/proto"
	"github.com/hetianyi/gotftp/reg"
	"github.com/hetianyi/gotftp/store"
	"github.com/hetianyi/gox/logger"
	"net"
	"time"
)

var (
	NoServerErr = errors.New("no server provided")
)

type Config struct {
	Server  string        // host:port of the tftp server
	Mode    string        // transfer mode sent in requests
	Timeout time.Duration // wait for a reply before retransmitting
	Retries int           // retransmissions before giving up, 0 means the default
	Store   store.ByteStore
}

// TransferResult is the summary of a finished transfer.
type TransferResult struct {
	Id              string        `json:"id"`
	Direction       string        `json:"direction"`
	Remote          string        `json:"remote"`
	Local           string        `json:"local"`
	Bytes           int64         `json:"bytes"`
	Blocks          uint64        `json:"blocks"`
	Retransmissions int           `json:"retransmissions"`
	Duration        time.Duration `json:"duration"`
}

type ClientAPI interface {
	// SetConfig sets the server and transfer settings.
	SetConfig(config *Config)

	// Get downloads remote file from the server and stores it as local.
	Get(remote, local string) (*TransferResult, error)

	// Put uploads local file to the server as remote.
	Put(local, remote string) (*TransferResult, error)
}

type clientAPIImpl struct {
	config *Config
}

func NewClient() ClientAPI {
	c := &clientAPIImpl{}
	c.SetConfig(nil)
	return c
}

func (c *clientAPIImpl) SetConfig(config *Config) {
	if config == nil {
		config = &Config{}
	}
	if config.Mode == "" {
		config.Mode = common.DEFAULT_MODE
	}
	if config.Timeout <= 0 {
		config.Timeout = common.DEFAULT_TIMEOUT
	}
	if config.Retries <= 0 {
		config.Retries = common.DEFAULT_RETRIES
	}
	if config.Store == nil {
		config.Store = store.NewLocalStore()
	}
	c.config = config
}

func (c *clientAPIImpl) Get(remote, local string) (*TransferResult, error) {
	conn, s, err := c.open(remote, common.GET)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer s.Release()

	if err := c.request(conn, s, proto.NewReadRequest(remote, c.config.Mode)); err != nil {
		return nil, err
	}
	buf := make([]byte, common.MAX_PACKET_SIZE+1)
	for {
		pkt, err := c.receive(conn, s, buf)
		if err != nil {
			return nil, err
		}
		switch pkt.Opcode {
		case proto.OP_ERROR:
			return nil, &common.PeerError{Code: pkt.Code, Message: pkt.Message}
		case proto.OP_DATA:
		default:
			return nil, c.fail(conn, s, common.UnexpectedMessageErr)
		}
		d := proto.BlockDiff(pkt.Block, s.LastBlock)
		if d == 0 && s.Writer != nil {
			logger.Debug("duplicate block ", pkt.Block, ", resend ack")
			c.write(conn, s.Pending, s.Peer)
			continue
		}
		if d != 1 {
			return nil, c.fail(conn, s, common.BlockMismatchErr)
		}
		if s.Writer == nil {
			w, err := c.config.Store.OpenForWrite(local)
			if err != nil {
				return nil, c.fail(conn, s, err)
			}
			s.Writer = w
			s.State = common.TRANSFERRING
		}
		if err := s.Writer.Append(pkt.Payload); err != nil {
			return nil, c.fail(conn, s, err)
		}
		s.LastBlock = pkt.Block
		s.Blocks++
		s.Cursor += int64(len(pkt.Payload))
		ack, _ := proto.Encode(proto.NewAck(pkt.Block))
		if !pkt.IsTerminal() {
			s.Arm(ack, c.config.Timeout, c.config.Retries, time.Now())
			c.write(conn, ack, s.Peer)
			continue
		}
		if err := s.Writer.Commit(); err != nil {
			return nil, c.fail(conn, s, err)
		}
		s.Writer = nil
		c.write(conn, ack, s.Peer)
		s.State = common.COMPLETED
		return c.result(s, remote, local), nil
	}
}

func (c *clientAPIImpl) Put(local, remote string) (*TransferResult, error) {
	r, size, err := c.config.Store.OpenForRead(local)
	if err != nil {
		return nil, err
	}
	conn, s, err := c.open(remote, common.PUT)
	if err != nil {
		r.Close()
		return nil, err
	}
	defer conn.Close()
	defer s.Release()
	s.Reader = r
	s.ExpectedFinalBlock = proto.ExpectedFinalBlock(size)

	if err := c.request(conn, s, proto.NewWriteRequest(remote, c.config.Mode)); err != nil {
		return nil, err
	}
	buf := make([]byte, common.MAX_PACKET_SIZE+1)
	chunk := make([]byte, common.BLOCK_SIZE)
	for {
		pkt, err := c.receive(conn, s, buf)
		if err != nil {
			return nil, err
		}
		switch pkt.Opcode {
		case proto.OP_ERROR:
			return nil, &common.PeerError{Code: pkt.Code, Message: pkt.Message}
		case proto.OP_ACK:
		default:
			return nil, c.fail(conn, s, common.UnexpectedMessageErr)
		}
		d := proto.BlockDiff(pkt.Block, s.LastBlock)
		switch {
		case d == 0 && s.LastWasTerminal:
			if s.LastBlock != proto.WireBlock(s.ExpectedFinalBlock) {
				logger.Warn(local, " changed during upload, sent ", s.Blocks, " blocks instead of ", s.ExpectedFinalBlock)
			}
			s.State = common.COMPLETED
			return c.result(s, remote, local), nil
		case d == 0:
			n, err := s.Reader.ReadNext(chunk)
			if err != nil {
				return nil, c.fail(conn, s, err)
			}
			s.State = common.TRANSFERRING
			s.LastBlock++
			s.Blocks++
			s.Cursor += int64(n)
			s.LastWasTerminal = n < common.BLOCK_SIZE
			data, err := proto.Encode(proto.NewData(s.LastBlock, chunk[:n]))
			if err != nil {
				return nil, c.fail(conn, s, err)
			}
			s.Arm(data, c.config.Timeout, c.config.Retries, time.Now())
			c.write(conn, data, s.Peer)
		case d < 0:
			logger.Debug("duplicate ack ", pkt.Block, ", resend block ", s.LastBlock)
			c.write(conn, s.Pending, s.Peer)
		default:
			return nil, c.fail(conn, s, common.BlockMismatchErr)
		}
	}
}

// open binds an ephemeral socket and prepares the session with the server.
func (c *clientAPIImpl) open(remote string, dir common.Direction) (net.PacketConn, *reg.Session, error) {
	if c.config.Server == "" {
		return nil, nil, NoServerErr
	}
	server, err := net.ResolveUDPAddr("udp", c.config.Server)
	if err != nil {
		return nil, nil, err
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, nil, err
	}
	s := reg.NewSession(server)
	s.Filename = remote
	s.Mode = c.config.Mode
	s.Direction = dir
	return conn, s, nil
}

func (c *clientAPIImpl) request(conn net.PacketConn, s *reg.Session, pkt *proto.Packet) error {
	req, err := proto.Encode(pkt)
	if err != nil {
		return err
	}
	logger.Debug("send ", pkt, " to ", s.Peer)
	s.Request = req
	s.Arm(req, c.config.Timeout, c.config.Retries, time.Now())
	c.write(conn, req, s.Peer)
	return nil
}

// receive waits for the next packet from the server, retransmitting the
// pending packet each time the deadline passes.
func (c *clientAPIImpl) receive(conn net.PacketConn, s *reg.Session, buf []byte) (*proto.Packet, error) {
	for {
		conn.SetReadDeadline(s.Deadline)
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				return nil, err
			}
			if !s.Backoff(c.config.Timeout, time.Now()) {
				s.State = common.ABORTED
				return nil, common.RetriesExhaustedErr
			}
			logger.Debug("timeout waiting for ", s.Peer, ", retransmit (", s.RetriesRemaining, " retries left)")
			c.write(conn, s.Pending, s.Peer)
			continue
		}
		if !sameAddr(addr, s.Peer) {
			logger.Warn("ignore datagram from unknown peer ", addr)
			continue
		}
		pkt, err := proto.Decode(buf[:n])
		if err != nil {
			logger.Warn("drop datagram from ", addr, ": ", err)
			continue
		}
		return pkt, nil
	}
}

// fail tells the server why the transfer stops and returns err.
func (c *clientAPIImpl) fail(conn net.PacketConn, s *reg.Session, err error) error {
	s.State = common.ABORTED
	s.Err = err
	code := proto.CodeOf(err)
	if b, e := proto.Encode(proto.NewError(code, proto.ErrorCodeName(code))); e == nil {
		c.write(conn, b, s.Peer)
	}
	return err
}

func (c *clientAPIImpl) write(conn net.PacketConn, b []byte, addr net.Addr) {
	if _, err := conn.WriteTo(b, addr); err != nil {
		logger.Error("send to ", addr, " failed: ", err)
	}
}

func (c *clientAPIImpl) result(s *reg.Session, remote, local string) *TransferResult {
	return &TransferResult{
		Id:              s.Id,
		Direction:       s.Direction.String(),
		Remote:          remote,
		Local:           local,
		Bytes:           s.Cursor,
		Blocks:          s.Blocks,
		Retransmissions: s.Retransmissions,
		Duration:        s.Duration(),
	}
}

func sameAddr(a, b net.Addr) bool {
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if ok1 && ok2 {
		return ua.IP.Equal(ub.IP) && ua.Port == ub.Port
	}
	return a.String() == b.String()
}
