// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/errors"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
)

var cmdShowConfig = &subcommands.Command{
	UsageLine: "show-config [-feature <name>]...",
	ShortDesc: "prints the resolved build configuration",
	LongDesc: `Prints the resolved build configuration as JSON.

Resolves the environment exactly as "build" does, without running anything.
Useful to debug which overrides are picked up for a target.
`,

	CommandRun: func() subcommands.CommandRun {
		c := &cmdShowConfigRun{out: os.Stdout}
		c.init()
		return c
	},
}

type cmdShowConfigRun struct {
	commandBase

	out io.Writer
}

func (c *cmdShowConfigRun) init() {
	c.commandBase.init(c.exec)
}

func (c *cmdShowConfigRun) exec(ctx context.Context, cfg *config.Config) error {
	blob, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Annotate(err, "failed to serialize the config").Err()
	}
	_, err = c.out.Write(append(blob, '\n'))
	return err
}
