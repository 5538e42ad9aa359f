// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logger configures zimi's process-wide zerolog.Logger: console
// output in development, JSON when writing to a file, with optional
// rotation via lumberjack. Every package logs through the zerolog global
// (github.com/rs/zerolog/log), never fmt.Println.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the global logger's level, destination, and rotation,
// mirroring zimi's config.toml logLevel/logPath/logMaxSize/logMaxBackups
// settings.
type Config struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Configure installs the process-wide zerolog logger per cfg and returns it.
// With no Path set, it writes a human-readable console stream to stdout;
// with a Path, it writes rotated JSON lines via lumberjack.
func Configure(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer io.Writer
	if cfg.Path != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	} else {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
