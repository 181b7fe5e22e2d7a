package app

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureLogging sets the logrus level and output. File output rotates
// through lumberjack and is mirrored to stdout.
func ConfigureLogging(cfg config.LoggingConfig) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		log.SetLevel(log.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}
	if !cfg.LoggingToFile {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	logFile := strings.TrimSpace(cfg.LogFile)
	if logFile == "" {
		logFile = config.DefaultServiceConfig().Logging.LogFile
	}
	if errMkdir := os.MkdirAll(filepath.Dir(logFile), 0o755); errMkdir != nil {
		return nil, errMkdir
	}
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
