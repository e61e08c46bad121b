package logging

import (
	"io"
	"os"
	"strings"

	"github.com/intellirate/gateway/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the process logger from the logging configuration.
func Setup(cfg config.LoggingConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(buildOutput(cfg))
}

// buildOutput returns stdout, optionally teed into a rotated log file.
func buildOutput(cfg config.LoggingConfig) io.Writer {
	file := strings.TrimSpace(cfg.File)
	if file == "" {
		return os.Stdout
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated)
}
