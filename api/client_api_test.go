package api_test

import (
	"bytes"
	"context"
	"errors"
	"github.com/hetianyi/gotftp/api"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/proto"
	"github.com/hetianyi/gotftp/reg"
	"github.com/hetianyi/gotftp/store"
	"github.com/hetianyi/gotftp/svc"
	"github.com/hetianyi/gox/logger"
	"net"
	"testing"
	"time"
)

func init() {
	logger.Init(&logger.Config{
		Level: logger.InfoLevel,
	})
}

// startServer runs a server on loopback serving remote.
func startServer(t *testing.T, remote *store.MemoryStore, readOnly bool) (string, func()) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	h := svc.NewHandler(&svc.HandlerConfig{
		Registry: reg.NewRegistry(),
		Store:    remote,
		Out:      conn,
		Timeout:  time.Millisecond * 300,
		Retries:  3,
		ReadOnly: readOnly,
	})
	srv := svc.NewServer(conn, h)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	return srv.Addr().String(), func() {
		cancel()
		<-done
		srv.Close()
	}
}

func newClient(server string, local store.ByteStore) api.ClientAPI {
	c := api.NewClient()
	c.SetConfig(&api.Config{
		Server:  server,
		Timeout: time.Millisecond * 300,
		Retries: 3,
		Store:   local,
	})
	return c
}

func TestGetAndPut(t *testing.T) {
	tests := []struct {
		name   string
		length int
		blocks uint64
	}{
		{"empty", 0, 1},
		{"1000", 1000, 2},
		{"1024", 1024, 3},
		{"1124", 1124, 3},
		{"large", 100*512 + 7, 101},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			remote := store.NewMemoryStore()
			local := store.NewMemoryStore()
			addr, stop := startServer(t, remote, false)
			defer stop()
			client := newClient(addr, local)

			content := make([]byte, tc.length)
			for i := range content {
				content[i] = byte(i % 251)
			}
			local.Put("src.bin", content)

			ret, err := client.Put("src.bin", "uploaded.bin")
			if err != nil {
				t.Fatal(err)
			}
			if ret.Bytes != int64(tc.length) || ret.Blocks != tc.blocks || ret.Direction != "put" {
				t.Fatalf("unexpected put result %+v", ret)
			}
			stored, ok := remote.Get("uploaded.bin")
			if !ok || !bytes.Equal(stored, content) {
				t.Fatal("uploaded content differs")
			}

			ret, err = client.Get("uploaded.bin", "copy.bin")
			if err != nil {
				t.Fatal(err)
			}
			if ret.Bytes != int64(tc.length) || ret.Blocks != tc.blocks || ret.Direction != "get" {
				t.Fatalf("unexpected get result %+v", ret)
			}
			copied, ok := local.Get("copy.bin")
			if !ok || !bytes.Equal(copied, content) {
				t.Fatal("downloaded content differs")
			}
		})
	}
}

func TestGetUnknownFile(t *testing.T) {
	addr, stop := startServer(t, store.NewMemoryStore(), false)
	defer stop()
	local := store.NewMemoryStore()
	_, err := newClient(addr, local).Get("missing", "missing")
	var pe *common.PeerError
	if !errors.As(err, &pe) || pe.Code != proto.ERR_FILE_NOT_FOUND {
		t.Fatalf("expected peer error 1, got %v", err)
	}
	if _, ok := local.Get("missing"); ok {
		t.Fatal("no local file must be created")
	}
}

func TestPutReadOnly(t *testing.T) {
	addr, stop := startServer(t, store.NewMemoryStore(), true)
	defer stop()
	local := store.NewMemoryStore()
	local.Put("a", []byte("abc"))
	_, err := newClient(addr, local).Put("a", "a")
	var pe *common.PeerError
	if !errors.As(err, &pe) || pe.Code != proto.ERR_ACCESS_VIOLATION {
		t.Fatalf("expected peer error 2, got %v", err)
	}
}

func TestPutMissingLocalFile(t *testing.T) {
	_, err := newClient("127.0.0.1:1", store.NewMemoryStore()).Put("nothing", "x")
	if err != common.FileNotFoundErr {
		t.Fatalf("expected FileNotFoundErr, got %v", err)
	}
}

func TestNoServer(t *testing.T) {
	c := api.NewClient()
	if _, err := c.Get("a", "b"); err != api.NoServerErr {
		t.Fatalf("expected NoServerErr, got %v", err)
	}
}

// silentPeer reads requests and never answers.
func silentPeer(t *testing.T) (net.PacketConn, chan int) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	count := make(chan int, 1)
	go func() {
		buf := make([]byte, 1024)
		n := 0
		for {
			conn.SetReadDeadline(time.Now().Add(time.Second))
			if _, _, err := conn.ReadFrom(buf); err != nil {
				count <- n
				return
			}
			n++
		}
	}()
	return conn, count
}

func TestRetriesExhausted(t *testing.T) {
	peer, count := silentPeer(t)
	defer peer.Close()
	c := api.NewClient()
	c.SetConfig(&api.Config{
		Server:  peer.LocalAddr().String(),
		Timeout: time.Millisecond * 100,
		Retries: 2,
		Store:   store.NewMemoryStore(),
	})
	start := time.Now()
	_, err := c.Get("a", "b")
	if err != common.RetriesExhaustedErr {
		t.Fatalf("expected RetriesExhaustedErr, got %v", err)
	}
	if time.Since(start) < time.Millisecond*300 {
		t.Fatal("client gave up before three timeouts")
	}
	if n := <-count; n != 3 {
		t.Fatalf("expected request plus 2 retransmissions, got %d datagrams", n)
	}
}

func TestDefaultRetries(t *testing.T) {
	peer, count := silentPeer(t)
	defer peer.Close()
	local := store.NewMemoryStore()
	local.Put("f", []byte("content"))
	c := api.NewClient()
	c.SetConfig(&api.Config{
		Server:  peer.LocalAddr().String(),
		Timeout: time.Millisecond * 50,
		Store:   local,
	})
	if _, err := c.Put("f", "f"); err != common.RetriesExhaustedErr {
		t.Fatalf("expected RetriesExhaustedErr, got %v", err)
	}
	if n := <-count; n != 1+common.DEFAULT_RETRIES {
		t.Fatalf("expected request plus %d retransmissions, got %d datagrams", common.DEFAULT_RETRIES, n)
	}
}

func TestIgnoresForeignPeer(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	intruder, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer intruder.Close()

	go func() {
		buf := make([]byte, 1024)
		server.SetReadDeadline(time.Now().Add(time.Second * 3))
		_, client, err := server.ReadFrom(buf)
		if err != nil {
			return
		}
		bogus, _ := proto.Encode(proto.NewData(1, []byte("bogus")))
		intruder.WriteTo(bogus, client)
		time.Sleep(time.Millisecond * 20)
		genuine, _ := proto.Encode(proto.NewData(1, []byte("real")))
		server.WriteTo(genuine, client)
	}()

	local := store.NewMemoryStore()
	c := newClient(server.LocalAddr().String(), local)
	ret, err := c.Get("f", "f")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := local.Get("f")
	if string(got) != "real" || ret.Bytes != 4 {
		t.Fatalf("expected content from the server only, got %q", got)
	}
}

func TestGetBlockMismatch(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	reply := make(chan *proto.Packet, 1)
	go func() {
		buf := make([]byte, 1024)
		server.SetReadDeadline(time.Now().Add(time.Second * 3))
		_, client, err := server.ReadFrom(buf)
		if err != nil {
			return
		}
		ahead, _ := proto.Encode(proto.NewData(3, []byte("x")))
		server.WriteTo(ahead, client)
		n, _, err := server.ReadFrom(buf)
		if err != nil {
			return
		}
		p, _ := proto.Decode(buf[:n])
		reply <- p
	}()
	_, err = newClient(server.LocalAddr().String(), store.NewMemoryStore()).Get("f", "f")
	if err != common.BlockMismatchErr {
		t.Fatalf("expected BlockMismatchErr, got %v", err)
	}
	select {
	case p := <-reply:
		if p.Opcode != proto.OP_ERROR || p.Code != proto.ERR_ILLEGAL_OPERATION {
			t.Fatalf("expected illegal operation error, got %s", p)
		}
	case <-time.After(time.Second * 3):
		t.Fatal("server got no error packet")
	}
}
