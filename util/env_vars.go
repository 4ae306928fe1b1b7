package util

import (
	"github.com/hetianyi/gox/convert"
	"github.com/hetianyi/gox/logger"
	"os"
	"strings"
)

// environment variables overriding flags and config file values
const (
	ENV_ROOT_DIR  = "GOTFTP_ROOT_DIR"
	ENV_DATA_DIR  = "GOTFTP_DATA_DIR"
	ENV_PORT      = "GOTFTP_PORT"
	ENV_READ_ONLY = "GOTFTP_READ_ONLY"
	ENV_SERVER    = "GOTFTP_SERVER"
	ENV_LOG_LEVEL = "GOTFTP_LOG_LEVEL"
)

func GetEnv(key string) string {
	return os.Getenv(key)
}

// ExchangeEnvValue calls then with the value of key if it is set.
func ExchangeEnvValue(key string, then func(envValue string)) {
	envVal := strings.TrimSpace(GetEnv(key))
	if envVal != "" {
		logger.Warn("config property \"", key, "\" load from environment")
		then(envVal)
	}
}

// exchangeEnvInt is ExchangeEnvValue for numbers, invalid values are ignored.
func exchangeEnvInt(key string, then func(v int)) {
	ExchangeEnvValue(key, func(envValue string) {
		v, err := convert.StrToInt(envValue)
		if err != nil {
			logger.Warn("ignore invalid value of ", key, ": ", envValue)
			return
		}
		then(v)
	})
}

func exchangeEnvBool(key string, then func(v bool)) {
	ExchangeEnvValue(key, func(envValue string) {
		then(envValue == "1" || strings.EqualFold(envValue, "true"))
	})
}
