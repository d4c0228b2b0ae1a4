// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"

	"github.com/SladkyCitron/slogcolor"

	"github.com/credprov/cpdeploy/deploy"
	"github.com/credprov/cpdeploy/model"
)

func newLogger() model.Logger {
	var level slog.Level

	switch {
	case debug:
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}

	return deploy.NewSlogLogger(slog.New(slogcolor.NewHandler(os.Stdout, &slogcolor.Options{Level: level})))
}
