// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Binary boring_sys_build builds BoringSSL for the boring-sys crate.
//
// It runs from the crate's Cargo build script: inputs come from the build
// script environment, directives for Cargo go to stdout and logs to stderr.
package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging/gologger"
)

func main() {
	application := &cli.Application{
		Name:  "boring_sys_build",
		Title: "BoringSSL build orchestrator for boring-sys",
		Context: func(ctx context.Context) context.Context {
			// Stdout belongs to Cargo.
			goLoggerCfg := gologger.LoggerConfig{Out: os.Stderr}
			goLoggerCfg.Format = "[%{level:.1s} %{time:2006-01-02 15:04:05}] %{message}"
			return goLoggerCfg.Use(ctx)
		},
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,
			cmdBuild,
			cmdShowConfig,
		},
	}
	os.Exit(subcommands.Run(application, nil))
}
