// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/logging"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/pipeline"
)

var cmdBuild = &subcommands.Command{
	UsageLine: "build [-feature <name>]...",
	ShortDesc: "builds BoringSSL and generates its bindings",
	LongDesc: `Builds BoringSSL and generates its bindings.

Must run from the Cargo build script of boring-sys. BoringSSL is taken from
BORING_BSSL_PATH if set, otherwise it is built from the vendored sources (or
BORING_BSSL_SOURCE_PATH), patched according to the enabled features.
bindings.rs is written to OUT_DIR and the linker directives to stdout.
`,

	CommandRun: func() subcommands.CommandRun {
		c := &cmdBuildRun{}
		c.init()
		return c
	},
}

type cmdBuildRun struct {
	commandBase
}

func (c *cmdBuildRun) init() {
	c.commandBase.init(c.exec)
}

func (c *cmdBuildRun) exec(ctx context.Context, cfg *config.Config) error {
	logging.Infof(ctx, "Building BoringSSL for %s (features: %q)", cfg.Target, cfg.Features.Names())
	res, err := pipeline.Run(ctx, cfg, cargo.NewEmitter(os.Stdout))
	if err != nil {
		return err
	}
	logging.Infof(ctx, "Bindings: %s", res.Bindings)
	return nil
}
