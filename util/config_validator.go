package util

import (
	"errors"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gox/convert"
	"github.com/hetianyi/gox/file"
	"github.com/hetianyi/gox/logger"
	"net"
	"os"
	"strings"
)

// ValidateServerConfig validates server config, fills defaults
// and initializes the logger.
func ValidateServerConfig(c *common.ServerConfig) error {
	if c == nil {
		return errors.New("no config provided")
	}
	ExchangeEnvValue(ENV_ROOT_DIR, func(v string) { c.RootDir = v })
	ExchangeEnvValue(ENV_DATA_DIR, func(v string) { c.DataDir = v })
	ExchangeEnvValue(ENV_LOG_LEVEL, func(v string) { c.LogLevel = v })
	exchangeEnvInt(ENV_PORT, func(v int) { c.Port = v })
	exchangeEnvBool(ENV_READ_ONLY, func(v bool) { c.ReadOnly = v })

	// check port range
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("invalid port number " +
			convert.IntToStr(c.Port) + ", port number must in the range of 0 to 65535")
	}
	// check http port range
	if c.HttpPort < 0 || c.HttpPort > 65535 {
		return errors.New("invalid http port number " +
			convert.IntToStr(c.HttpPort) + ", port number must in the range of 0 to 65535")
	}
	if c.EnableHttp && c.HttpPort == c.Port {
		return errors.New("http port must differ from the tftp port")
	}
	if c.BindAddress == "" {
		c.BindAddress = common.DEFAULT_BIND_ADDRESS
	}
	if c.Timeout <= 0 {
		c.Timeout = int(common.DEFAULT_TIMEOUT.Milliseconds())
	}
	if c.Retries <= 0 {
		c.Retries = common.DEFAULT_RETRIES
	}
	c.LogLevel = normalizeLogLevel(c.LogLevel)
	// check log rotation interval
	c.LogRotationInterval = strings.ToLower(c.LogRotationInterval)
	if c.LogRotationInterval != "h" && c.LogRotationInterval != "d" &&
		c.LogRotationInterval != "m" && c.LogRotationInterval != "y" {
		c.LogRotationInterval = "d"
	}
	// check rolling log file size
	if c.MaxRollingLogfileSize != 64 && c.MaxRollingLogfileSize != 128 &&
		c.MaxRollingLogfileSize != 256 && c.MaxRollingLogfileSize != 512 &&
		c.MaxRollingLogfileSize != 1024 {
		c.MaxRollingLogfileSize = 64
	}

	var err error
	if c.RootDir == "" {
		c.RootDir = DefaultRootDir()
	}
	if c.RootDir, err = ExpandDir(c.RootDir); err != nil {
		return err
	}
	if info, err := os.Stat(c.RootDir); err != nil || !info.IsDir() {
		return errors.New("root directory \"" + c.RootDir + "\" does not exist or is not a directory")
	}
	if c.EnableJournal {
		if c.DataDir == "" {
			c.DataDir = DefaultDataDir()
		}
		if c.DataDir, err = ExpandDir(c.DataDir); err != nil {
			return err
		}
		if !file.Exists(c.DataDir) {
			if err := file.CreateDirs(c.DataDir); err != nil {
				return err
			}
		}
	}
	// prepare log directory
	if c.SaveLog2File {
		if c.LogDir == "" {
			c.LogDir = DefaultLogDir()
		}
		if c.LogDir, err = ExpandDir(c.LogDir); err != nil {
			return err
		}
		if !file.Exists(c.LogDir) {
			if err := file.CreateDirs(c.LogDir); err != nil {
				return err
			}
		}
	}

	// initialize logger
	logConfig := &logger.Config{
		Level:              ConvertLogLevel(c.LogLevel),
		RollingPolicy:      []int{ConvertRollInterval(c.LogRotationInterval), ConvertLogFileSize(c.MaxRollingLogfileSize)},
		Write2File:         c.SaveLog2File,
		AlwaysWriteConsole: true,
		RollingFileDir:     c.LogDir,
		RollingFileName:    "gotftp-server",
	}
	logger.Init(logConfig)
	return nil
}

// ValidateClientConfig validates client config and initializes the logger.
func ValidateClientConfig(c *common.ClientConfig) error {
	if c == nil {
		return errors.New("no config provided")
	}
	ExchangeEnvValue(ENV_SERVER, func(v string) { c.Server = v })
	ExchangeEnvValue(ENV_LOG_LEVEL, func(v string) { c.LogLevel = v })

	c.LogLevel = normalizeLogLevel(c.LogLevel)
	if c.Mode == "" {
		c.Mode = common.DEFAULT_MODE
	}
	c.Mode = strings.ToLower(c.Mode)
	if c.Timeout <= 0 {
		c.Timeout = int(common.DEFAULT_TIMEOUT.Milliseconds())
	}
	if c.Retries <= 0 {
		c.Retries = common.DEFAULT_RETRIES
	}
	// initialize logger
	logConfig := &logger.Config{
		Level:              ConvertLogLevel(c.LogLevel),
		Write2File:         false,
		AlwaysWriteConsole: true,
		Formatter:          &logger.NoneTextFormatter{},
	}
	logger.Init(logConfig)

	server, err := ParseServer(c.Server)
	if err != nil {
		return err
	}
	c.ParsedServer = server
	return nil
}

// ParseServer parses a host[:port] server string, the port defaults to 69.
// IPv6 hosts are written in brackets when a port is given.
func ParseServer(s string) (*common.Server, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("no server provided")
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		// no port
		host = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		if strings.Contains(host, ":") && net.ParseIP(host) == nil {
			return nil, errors.New("invalid server \"" + s + "\", server must be host[:port]")
		}
		port = convert.IntToStr(common.DEFAULT_SERVER_PORT)
	}
	if host == "" {
		return nil, errors.New("invalid server \"" + s + "\", no host")
	}
	p, err := convert.StrToInt(port)
	if err != nil || p <= 0 || p > 65535 {
		return nil, errors.New("invalid port in server \"" + s + "\"")
	}
	return &common.Server{
		Host: host,
		Port: uint16(p),
	}, nil
}

func normalizeLogLevel(level string) string {
	level = strings.ToLower(level)
	if level != "trace" && level != "debug" && level != "info" &&
		level != "warn" && level != "error" && level != "fatal" {
		return "info"
	}
	return level
}

func ConvertLogLevel(levelString string) logger.Level {
	levelString = strings.ToLower(levelString)
	switch levelString {
	case "trace":
		return logger.TraceLevel
	case "debug":
		return logger.DebugLevel
	case "info":
		return logger.InfoLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	case "fatal":
		return logger.FatalLevel
	default:
		return logger.InfoLevel
	}
}

func ConvertRollInterval(rollString string) int {
	rollString = strings.ToLower(rollString)
	switch rollString {
	case "h":
		return logger.HOUR
	case "d":
		return logger.DAY
	case "m":
		return logger.MONTH
	case "y":
		return logger.YEAR
	default:
		return logger.YEAR
	}
}

func ConvertLogFileSize(s int) int {
	switch s {
	case 64:
		return logger.MB64
	case 128:
		return logger.MB128
	case 256:
		return logger.MB256
	case 512:
		return logger.MB512
	case 1024:
		return logger.MB1024
	default:
		return logger.SIZE_NO_LIMIT
	}
}
