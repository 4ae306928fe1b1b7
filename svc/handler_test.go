package svc_test

import (
	"bytes"
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

// recorder captures what the handler sends.
type recorder struct {
	out []*proto.Packet
	to  []net.Addr
}

func (r *recorder) WriteTo(b []byte, addr net.Addr) (int, error) {
	p, err := proto.Decode(b)
	if err != nil {
		panic(err)
	}
	r.out = append(r.out, p)
	r.to = append(r.to, addr)
	return len(b), nil
}

// take returns the captured packets and forgets them.
func (r *recorder) take() []*proto.Packet {
	ret := r.out
	r.out = nil
	r.to = nil
	return ret
}

type memJournal struct {
	records []*common.TransferRecord
}

func (j *memJournal) Write(record *common.TransferRecord) error {
	j.records = append(j.records, record)
	return nil
}

type fixture struct {
	handler  *svc.Handler
	registry *reg.Registry
	store    *store.MemoryStore
	out      *recorder
	journal  *memJournal
}

func newFixture(readOnly bool) *fixture {
	f := &fixture{
		registry: reg.NewRegistry(),
		store:    store.NewMemoryStore(),
		out:      &recorder{},
		journal:  &memJournal{},
	}
	f.handler = svc.NewHandler(&svc.HandlerConfig{
		Registry: f.registry,
		Store:    f.store,
		Out:      f.out,
		Journal:  f.journal,
		Timeout:  time.Second,
		Retries:  2,
		ReadOnly: readOnly,
	})
	return f
}

var peerA = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 40000}
var peerB = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40000}

func wire(p *proto.Packet) []byte {
	b, err := proto.Encode(p)
	if err != nil {
		panic(err)
	}
	return b
}

// step feeds p from addr and returns the replies.
func (f *fixture) step(addr net.Addr, p *proto.Packet) []*proto.Packet {
	f.handler.Handle(addr, wire(p))
	return f.out.take()
}

func expectOne(t *testing.T, got []*proto.Packet, op proto.Opcode) *proto.Packet {
	t.Helper()
	if len(got) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(got))
	}
	if got[0].Opcode != op {
		t.Fatalf("expected %s, got %s", op, got[0])
	}
	return got[0]
}

func expectData(t *testing.T, got []*proto.Packet, block uint16, size int) {
	t.Helper()
	p := expectOne(t, got, proto.OP_DATA)
	if p.Block != block || len(p.Payload) != size {
		t.Fatalf("expected DATA %d with %d bytes, got %s", block, size, p)
	}
}

func expectAck(t *testing.T, got []*proto.Packet, block uint16) {
	t.Helper()
	if p := expectOne(t, got, proto.OP_ACK); p.Block != block {
		t.Fatalf("expected ACK %d, got %s", block, p)
	}
}

func expectError(t *testing.T, got []*proto.Packet, code uint16) {
	t.Helper()
	if p := expectOne(t, got, proto.OP_ERROR); p.Code != code {
		t.Fatalf("expected ERROR %d, got %s", code, p)
	}
}

func TestReadUnknownFile(t *testing.T) {
	f := newFixture(false)
	expectError(t, f.step(peerA, proto.NewReadRequest("missing.bin", "octet")), proto.ERR_FILE_NOT_FOUND)
	if f.registry.Len() != 0 {
		t.Fatal("no session must be created for an unknown file")
	}
	if len(f.journal.records) != 1 || f.journal.records[0].Result != "refused" {
		t.Fatal("refused request must be journaled")
	}
}

func TestReadStoreFailure(t *testing.T) {
	f := newFixture(false)
	f.store.Fail("broken.bin", common.FileIOErr)
	expectError(t, f.step(peerA, proto.NewReadRequest("broken.bin", "octet")), proto.ERR_UNDEFINED)
	f.store.Fail("secret", common.AccessViolationErr)
	expectError(t, f.step(peerA, proto.NewReadRequest("secret", "octet")), proto.ERR_ACCESS_VIOLATION)
	if f.registry.Len() != 0 {
		t.Fatal("no session must be created")
	}
}

func TestDownloadBlockCounts(t *testing.T) {
	tests := []struct {
		name   string
		length int
		blocks []int
	}{
		{"empty", 0, []int{0}},
		{"short", 100, []int{100}},
		{"1000", 1000, []int{512, 488}},
		{"1024", 1024, []int{512, 512, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(false)
			content := bytes.Repeat([]byte{7}, tc.length)
			f.store.Put("file", content)

			got := f.step(peerA, proto.NewReadRequest("file", "octet"))
			var received []byte
			for i, size := range tc.blocks {
				block := uint16(i + 1)
				expectData(t, got, block, size)
				received = append(received, got[0].Payload...)
				got = f.step(peerA, proto.NewAck(block))
			}
			if len(got) != 0 {
				t.Fatalf("final ack must not be answered, got %d packets", len(got))
			}
			if !bytes.Equal(received, content) {
				t.Fatal("received content differs")
			}
			if f.registry.Len() != 0 {
				t.Fatal("session must be deregistered after the final ack")
			}
			rec := f.journal.records[0]
			if rec.Result != "completed" || rec.Bytes != int64(tc.length) || rec.Blocks != uint64(len(tc.blocks)) {
				t.Fatalf("unexpected journal record %+v", rec)
			}
		})
	}
}

func TestDuplicateAckRetransmits(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 1500))
	expectData(t, f.step(peerA, proto.NewReadRequest("file", "octet")), 1, 512)
	expectData(t, f.step(peerA, proto.NewAck(1)), 2, 512)
	expectData(t, f.step(peerA, proto.NewAck(1)), 2, 512)
	expectData(t, f.step(peerA, proto.NewAck(2)), 3, 476)
	if f.registry.Len() != 1 {
		t.Fatal("session must still be active")
	}
}

func TestAckAheadAborts(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 1500))
	f.step(peerA, proto.NewReadRequest("file", "octet"))
	expectError(t, f.step(peerA, proto.NewAck(5)), proto.ERR_ILLEGAL_OPERATION)
	if f.registry.Len() != 0 {
		t.Fatal("session must be aborted")
	}
	if f.journal.records[0].Result != "aborted" {
		t.Fatal("abort must be journaled")
	}
}

func TestUpload(t *testing.T) {
	f := newFixture(false)
	expectAck(t, f.step(peerA, proto.NewWriteRequest("up.bin", "octet")), 0)
	expectAck(t, f.step(peerA, proto.NewData(1, bytes.Repeat([]byte{1}, 512))), 1)
	expectAck(t, f.step(peerA, proto.NewData(2, bytes.Repeat([]byte{2}, 512))), 2)
	if _, ok := f.store.Get("up.bin"); ok {
		t.Fatal("file must not be visible before the terminal block")
	}
	if f.registry.Len() != 1 {
		t.Fatal("session must be active before the terminal block")
	}
	expectAck(t, f.step(peerA, proto.NewData(3, bytes.Repeat([]byte{3}, 100))), 3)
	if f.registry.Len() != 0 {
		t.Fatal("session must be deregistered after the third ack")
	}
	content, ok := f.store.Get("up.bin")
	if !ok || len(content) != 1124 {
		t.Fatalf("expected 1124 bytes stored, got %d", len(content))
	}
	if content[0] != 1 || content[512] != 2 || content[1123] != 3 {
		t.Fatal("blocks stored out of order")
	}
}

func TestUploadDuplicateData(t *testing.T) {
	f := newFixture(false)
	f.step(peerA, proto.NewWriteRequest("dup.bin", "octet"))
	expectAck(t, f.step(peerA, proto.NewData(1, make([]byte, 512))), 1)
	expectAck(t, f.step(peerA, proto.NewData(1, make([]byte, 512))), 1)
	expectAck(t, f.step(peerA, proto.NewData(2, []byte("end"))), 2)
	content, _ := f.store.Get("dup.bin")
	if len(content) != 515 {
		t.Fatalf("duplicate block must not be appended, got %d bytes", len(content))
	}
}

func TestUploadBlockMismatch(t *testing.T) {
	f := newFixture(false)
	f.step(peerA, proto.NewWriteRequest("gap.bin", "octet"))
	expectError(t, f.step(peerA, proto.NewData(2, []byte("x"))), proto.ERR_ILLEGAL_OPERATION)
	if _, ok := f.store.Get("gap.bin"); ok {
		t.Fatal("aborted upload must not be committed")
	}
	if f.registry.Len() != 0 {
		t.Fatal("session must be aborted")
	}
}

func TestReadOnlyRefusesWrite(t *testing.T) {
	f := newFixture(true)
	expectError(t, f.step(peerA, proto.NewWriteRequest("up.bin", "octet")), proto.ERR_ACCESS_VIOLATION)
	if f.registry.Len() != 0 {
		t.Fatal("no session must be created")
	}
}

func TestPeerErrorAborts(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 2000))
	f.step(peerA, proto.NewReadRequest("file", "octet"))
	if got := f.step(peerA, proto.NewError(proto.ERR_DISK_FULL, "")); len(got) != 0 {
		t.Fatal("peer error must not be answered")
	}
	if f.registry.Len() != 0 {
		t.Fatal("session must be aborted")
	}
	rec := f.journal.records[0]
	if rec.Result != "aborted" || rec.Error == "" {
		t.Fatalf("unexpected journal record %+v", rec)
	}
}

func TestPeerErrorDiscardsUpload(t *testing.T) {
	f := newFixture(false)
	f.step(peerA, proto.NewWriteRequest("part.bin", "octet"))
	f.step(peerA, proto.NewData(1, make([]byte, 512)))
	f.step(peerA, proto.NewError(0, "cancelled"))
	if _, ok := f.store.Get("part.bin"); ok {
		t.Fatal("partial upload must be discarded")
	}
}

func TestUnexpectedMessage(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 2000))
	f.step(peerA, proto.NewReadRequest("file", "octet"))
	expectError(t, f.step(peerA, proto.NewData(1, []byte("x"))), proto.ERR_ILLEGAL_OPERATION)
	if f.registry.Len() != 0 {
		t.Fatal("session must be aborted")
	}

	f.step(peerA, proto.NewWriteRequest("up", "octet"))
	expectError(t, f.step(peerA, proto.NewAck(0)), proto.ERR_ILLEGAL_OPERATION)

	f.step(peerA, proto.NewReadRequest("file", "octet"))
	f.step(peerA, proto.NewAck(1))
	expectError(t, f.step(peerA, proto.NewReadRequest("file", "octet")), proto.ERR_ILLEGAL_OPERATION)
}

func TestDuplicateRequestResends(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 700))
	expectData(t, f.step(peerA, proto.NewReadRequest("file", "octet")), 1, 512)
	expectData(t, f.step(peerA, proto.NewReadRequest("file", "octet")), 1, 512)
	if f.registry.Len() != 1 {
		t.Fatal("duplicate request must keep the session")
	}
	expectAck(t, f.step(peerB, proto.NewWriteRequest("w", "octet")), 0)
	expectAck(t, f.step(peerB, proto.NewWriteRequest("w", "octet")), 0)
}

func TestUnknownPeerDropped(t *testing.T) {
	f := newFixture(false)
	if len(f.step(peerA, proto.NewAck(3))) != 0 || len(f.step(peerA, proto.NewData(1, nil))) != 0 {
		t.Fatal("packets without a session must be dropped")
	}
	f.handler.Handle(peerA, []byte{0})
	f.handler.Handle(peerA, []byte{0, 9, 1, 1})
	if len(f.out.take()) != 0 || f.registry.Len() != 0 {
		t.Fatal("malformed datagrams must be dropped")
	}
}

func TestPeersAreIndependent(t *testing.T) {
	f := newFixture(false)
	f.store.Put("a", bytes.Repeat([]byte{'a'}, 600))
	f.store.Put("b", bytes.Repeat([]byte{'b'}, 100))
	expectData(t, f.step(peerA, proto.NewReadRequest("a", "octet")), 1, 512)
	expectData(t, f.step(peerB, proto.NewReadRequest("b", "octet")), 1, 100)
	if f.registry.Len() != 2 {
		t.Fatal("expected two sessions")
	}
	f.step(peerB, proto.NewAck(1))
	expectData(t, f.step(peerA, proto.NewAck(1)), 2, 88)
	if f.registry.Lookup(peerA) == nil || f.registry.Lookup(peerB) != nil {
		t.Fatal("only the finished peer must be deregistered")
	}
}

func TestRetransmitAndExhaust(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 2000))
	base := time.Now()
	expectData(t, f.step(peerA, proto.NewReadRequest("file", "octet")), 1, 512)

	f.handler.Retransmit(base.Add(time.Millisecond * 500))
	if len(f.out.take()) != 0 {
		t.Fatal("nothing is due before the timeout")
	}
	f.handler.Retransmit(base.Add(time.Millisecond * 1500))
	expectData(t, f.out.take(), 1, 512)
	f.handler.Retransmit(base.Add(time.Millisecond * 3000))
	expectData(t, f.out.take(), 1, 512)
	f.handler.Retransmit(base.Add(time.Millisecond * 4500))
	if len(f.out.take()) != 0 {
		t.Fatal("exhausted session must not send")
	}
	if f.registry.Len() != 0 {
		t.Fatal("session must be aborted after the retries are exhausted")
	}
	if f.journal.records[0].Error != common.RetriesExhaustedErr.Error() {
		t.Fatalf("unexpected journal record %+v", f.journal.records[0])
	}
}

func TestDefaultRetries(t *testing.T) {
	out := &recorder{}
	remote := store.NewMemoryStore()
	remote.Put("file", make([]byte, 2000))
	h := svc.NewHandler(&svc.HandlerConfig{
		Store: remote,
		Out:   out,
	})
	base := time.Now()
	h.Handle(peerA, wire(proto.NewReadRequest("file", "octet")))
	expectData(t, out.take(), 1, 512)

	step := time.Millisecond * 1500
	for i := 1; i <= common.DEFAULT_RETRIES; i++ {
		h.Retransmit(base.Add(step * time.Duration(i)))
		expectData(t, out.take(), 1, 512)
	}
	h.Retransmit(base.Add(step * time.Duration(common.DEFAULT_RETRIES+1)))
	if len(out.take()) != 0 || len(h.Sessions()) != 0 {
		t.Fatal("session must be aborted after the default retries")
	}
}

func TestAckResetsRetries(t *testing.T) {
	f := newFixture(false)
	f.store.Put("file", make([]byte, 2000))
	f.step(peerA, proto.NewReadRequest("file", "octet"))
	f.handler.Retransmit(time.Now().Add(time.Millisecond * 1500))
	f.handler.Retransmit(time.Now().Add(time.Millisecond * 3000))
	f.out.take()
	f.step(peerA, proto.NewAck(1))
	if s := f.registry.Lookup(peerA); s == nil || s.RetriesRemaining != 2 {
		t.Fatal("progress must restore the retry budget")
	}
}

func TestUploadBlockWraparound(t *testing.T) {
	f := newFixture(false)
	f.step(peerA, proto.NewWriteRequest("huge.bin", "octet"))
	full := make([]byte, 512)
	var block uint16
	for i := 1; i <= 65536; i++ {
		block = uint16(i)
		f.handler.Handle(peerA, wire(proto.NewData(block, full)))
		got := f.out.take()
		if len(got) != 1 || got[0].Opcode != proto.OP_ACK || got[0].Block != block {
			t.Fatalf("block %d: unexpected reply", i)
		}
	}
	if block != 0 {
		t.Fatalf("block number must have wrapped to 0, got %d", block)
	}
	expectAck(t, f.step(peerA, proto.NewData(1, []byte("tail"))), 1)
	content, ok := f.store.Get("huge.bin")
	if !ok || len(content) != 65536*512+4 {
		t.Fatalf("unexpected stored length %d", len(content))
	}
	if f.journal.records[0].Blocks != 65537 {
		t.Fatalf("expected 65537 blocks, got %d", f.journal.records[0].Blocks)
	}
}

func TestDownloadBlockWraparound(t *testing.T) {
	f := newFixture(false)
	f.store.Put("huge.bin", make([]byte, 65536*512+10))
	got := f.step(peerA, proto.NewReadRequest("huge.bin", "octet"))
	for i := 1; i <= 65536; i++ {
		expectData(t, got, uint16(i), 512)
		got = f.step(peerA, proto.NewAck(uint16(i)))
	}
	expectData(t, got, 1, 10)
	// a stale ack from before the wrap is behind and only retransmits
	expectData(t, f.step(peerA, proto.NewAck(0)), 1, 10)
	if len(f.step(peerA, proto.NewAck(1))) != 0 || f.registry.Len() != 0 {
		t.Fatal("transfer must complete after the wrapped final block")
	}
}
