package authcore

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NewLogger builds a logrus logger from cfg. Unknown levels fall back to
// info. A nil out writes to stderr.
func NewLogger(cfg LoggingConfig, out io.Writer) *log.Logger {
	logger := log.New()
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.JSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}
