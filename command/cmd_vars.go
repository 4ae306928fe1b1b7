package command

import (
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/util"
	"github.com/hetianyi/gox"
	"github.com/hetianyi/gox/logger"
)

// var sets
var (
	showVersion         bool   // show app version
	configFile          string // specified config file to be use
	logLevel            string // log level(trace, debug, info, warn, error, fatal)
	bindAddress         string
	port                int
	rootDir             string
	dataDir             string
	readOnly            bool
	timeout             int // retransmission timeout in milliseconds
	retries             int
	enableHttp          bool
	httpPort            int
	disableJournal      bool
	logDir              string
	maxLogfileSize      int
	logRotationInterval string
	disableSaveLogfile  bool
	server              string // server used by client mode
	mode                string // transfer mode used by client mode
	customFileName      string // local name for get, remote name for put
	transferFile        string // file argument of get and put
	finalCommand        common.Command
)

// ConfigAssembly builds the configuration of the boot mode from the
// config file, if any, and the command line flags. Flags win.
func ConfigAssembly(bm common.BootMode) interface{} {
	if bm == common.SERVER {
		c := &common.ServerConfig{
			Port:          common.DEFAULT_SERVER_PORT,
			HttpPort:      common.DEFAULT_HTTP_PORT,
			Retries:       common.DEFAULT_RETRIES,
			EnableJournal: true,
			SaveLog2File:  true,
		}
		if configFile != "" {
			if err := util.LoadConfig(configFile, c); err != nil {
				logger.Fatal("cannot load config file ", configFile, ": ", err)
			}
		}
		c.Port = gox.TValue(port <= 0, c.Port, port).(int)
		c.HttpPort = gox.TValue(httpPort <= 0, c.HttpPort, httpPort).(int)
		c.Timeout = gox.TValue(timeout <= 0, c.Timeout, timeout).(int)
		c.Retries = gox.TValue(retries < 0, c.Retries, retries).(int)
		c.BindAddress = gox.TValue(bindAddress == "", c.BindAddress, bindAddress).(string)
		c.RootDir = gox.TValue(rootDir == "", c.RootDir, rootDir).(string)
		c.DataDir = gox.TValue(dataDir == "", c.DataDir, dataDir).(string)
		c.LogDir = gox.TValue(logDir == "", c.LogDir, logDir).(string)
		c.LogLevel = gox.TValue(logLevel == "", c.LogLevel, logLevel).(string)
		c.LogRotationInterval = gox.TValue(logRotationInterval == "", c.LogRotationInterval, logRotationInterval).(string)
		c.MaxRollingLogfileSize = gox.TValue(maxLogfileSize <= 0, c.MaxRollingLogfileSize, maxLogfileSize).(int)
		c.ReadOnly = c.ReadOnly || readOnly
		c.EnableHttp = c.EnableHttp || enableHttp
		c.EnableJournal = c.EnableJournal && !disableJournal
		c.SaveLog2File = c.SaveLog2File && !disableSaveLogfile
		common.InitializedServerConfiguration = c
		return c
	} else if bm == common.CLIENT {
		c := &common.ClientConfig{
			Retries: common.DEFAULT_RETRIES,
		}
		if configFile != "" {
			if err := util.LoadConfig(configFile, c); err != nil {
				logger.Fatal("cannot load config file ", configFile, ": ", err)
			}
		}
		c.Server = gox.TValue(server == "", c.Server, server).(string)
		c.Mode = gox.TValue(mode == "", c.Mode, mode).(string)
		c.Timeout = gox.TValue(timeout <= 0, c.Timeout, timeout).(int)
		c.Retries = gox.TValue(retries < 0, c.Retries, retries).(int)
		c.LogLevel = gox.TValue(logLevel == "", c.LogLevel, logLevel).(string)
		common.InitializedClientConfiguration = c
		return c
	}
	return nil
}
