// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/choria-io/fisk"
)

var (
	ctx     context.Context
	debug   bool
	Version = "development"
)

func main() {
	app := fisk.New("cpdeploy", "Credential Provider Bundle deployment")
	app.Version(Version)

	app.Flag("debug", "Enable debug logging").UnNegatableBoolVar(&debug)

	registerDeployCommand(app)

	ctx, _ = signal.NotifyContext(context.Background(), os.Interrupt)

	app.MustParseWithUsage(os.Args[1:])
}
