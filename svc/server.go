package svc

import (
	"context"
	"errors"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gox"
	"github.com/hetianyi/gox/logger"
	"github.com/logrusorgru/aurora"
	"net"
	"time"
)

// Server is the reactor: one goroutine owning the socket and the handler.
type Server struct {
	conn    net.PacketConn
	handler *Handler
	tick    time.Duration
}

func NewServer(conn net.PacketConn, handler *Handler) *Server {
	return &Server{
		conn:    conn,
		handler: handler,
		tick:    common.REACTOR_TICK,
	}
}

// Serve reads datagrams until ctx is done. Every wake-up, whether a
// datagram arrived or the read deadline fired, drives retransmission.
func (s *Server) Serve(ctx context.Context) error {
	logger.Info("  udp server listening on ", s.conn.LocalAddr())
	logger.Info(aurora.BrightGreen(":::server started:::"))
	buf := make([]byte, common.MAX_PACKET_SIZE+1)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(s.tick))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.retransmit()
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		datagram := buf[:n]
		gox.Try(func() {
			s.handler.Handle(addr, datagram)
		}, func(e interface{}) {
			logger.Error("error handling datagram from ", addr, ": ", e)
		})
		s.retransmit()
	}
}

func (s *Server) retransmit() {
	gox.Try(func() {
		s.handler.Retransmit(time.Now())
	}, func(e interface{}) {
		logger.Error("retransmit err: ", e)
	})
}

// Addr returns the bound address of the socket.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Server) Close() error {
	return s.conn.Close()
}
