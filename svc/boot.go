package svc

import (
	"context"
	"fmt"
	"github.com/hetianyi/gotftp/binlog"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/reg"
	"github.com/hetianyi/gotftp/store"
	"github.com/hetianyi/gotftp/util"
	"github.com/hetianyi/gox"
	"github.com/hetianyi/gox/convert"
	"github.com/hetianyi/gox/logger"
	json "github.com/json-iterator/go"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

// gotftp server --log-level=debug --root-dir=/srv/tftp --port=6969 --enable-http --http-port=8069 --disable-logfile
func BootTftpServer() {
	c := common.InitializedServerConfiguration
	if err := util.ValidateServerConfig(c); err != nil {
		fmt.Println("Err:", err)
		os.Exit(1)
	}
	util.PrintLogo()
	cbs, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println("boot tftp server success!")
	fmt.Println(string(cbs))

	var journal *binlog.Journal
	if c.EnableJournal {
		j, err := binlog.Open(filepath.Join(c.DataDir, common.DEFAULT_JOURNAL_FILE))
		if err != nil {
			logger.Fatal("cannot open transfer journal: ", err)
		}
		journal = j
		defer journal.Close()
	}

	conn, err := net.ListenPacket("udp", c.BindAddress+":"+convert.IntToStr(c.Port))
	if err != nil {
		logger.Fatal(err)
	}
	registry := reg.NewRegistry()
	registry.StartReporter(common.SESSION_REPORT_INTERVAL)
	hc := &HandlerConfig{
		Registry: registry,
		Store:    store.NewFileStore(c.RootDir),
		Out:      conn,
		Timeout:  time.Duration(c.Timeout) * time.Millisecond,
		Retries:  c.Retries,
		ReadOnly: c.ReadOnly,
	}
	// a nil *Journal must not end up inside the interfaces
	var history History
	if journal != nil {
		hc.Journal = journal
		history = journal
	}
	handler := NewHandler(hc)
	logger.Info("  serving ", c.RootDir, gox.TValue(c.ReadOnly, " (read-only)", ""))
	if c.EnableHttp {
		StartStatusHttpServer(c, handler, history)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		logger.Info("received ", s, ", shutting down")
		cancel()
	}()

	srv := NewServer(conn, handler)
	if err := srv.Serve(ctx); err != nil {
		logger.Error("server stopped: ", err)
	}
	srv.Close()
}
