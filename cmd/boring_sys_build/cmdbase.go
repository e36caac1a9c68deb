// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/stringlistflag"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/environ"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
)

// execCb a signature of a function that executes a subcommand.
type execCb func(ctx context.Context, cfg *config.Config) error

// commandBase defines flags common to all subcommands.
type commandBase struct {
	subcommands.CommandRunBase

	exec execCb // called to actually execute the command

	logConfig logging.Config      // -log-* flags
	features  stringlistflag.Flag // -feature flags
}

// init register base flags. Must be called.
func (c *commandBase) init(exec execCb) {
	c.exec = exec

	c.logConfig.Level = logging.Info // default logging level
	c.logConfig.AddFlags(&c.Flags)

	c.Flags.Var(&c.features, "feature",
		"Enable a crate feature, in addition to the CARGO_FEATURE_* ones. Can be repeated. "+
			"One of: "+knownFeatures()+".")
}

// ModifyContext implements cli.ContextModificator.
//
// Used by cli.Application.
func (c *commandBase) ModifyContext(ctx context.Context) context.Context {
	return c.logConfig.Set(ctx)
}

// Run implements the subcommands.CommandRun interface.
func (c *commandBase) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if len(args) != 0 {
		return handleErr(ctx, errBadInvocation("unexpected positional arguments %q", args))
	}
	cfg, err := c.resolve(ctx, environ.System())
	if err != nil {
		return handleErr(ctx, err)
	}
	return handleErr(ctx, c.exec(ctx, cfg))
}

// resolve builds the configuration from the build script environment and
// the -feature flags.
func (c *commandBase) resolve(ctx context.Context, env environ.Env) (*config.Config, error) {
	flagged, err := config.NewFeatures(c.features...)
	if err != nil {
		return nil, errBadFeature(err)
	}
	return config.Resolve(ctx, env, config.FeaturesFromEnv(env).Union(flagged))
}

// isCLIError is tagged into errors caused by bad CLI flags.
var isCLIError = errors.BoolTag{Key: errors.NewTagKey("bad CLI invocation")}

// errBadInvocation is an error about how the tool was called, as opposed to
// how the build is configured.
func errBadInvocation(format string, args ...interface{}) error {
	return errors.Reason(format, args...).Tag(isCLIError).Err()
}

// errBadFeature wraps a rejected -feature value.
//
// Only the flag is checked: Cargo sets CARGO_FEATURE_* for every crate
// feature, so unknown ones there are not errors.
func errBadFeature(err error) error {
	return errors.Annotate(err, "bad \"-feature\" (known: %s)", knownFeatures()).Tag(isCLIError).Err()
}

func knownFeatures() string {
	names := make([]string, len(config.AllFeatures))
	for i, f := range config.AllFeatures {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// handleErr prints the error and returns the process exit code.
//
// Misconfigurations are printed as one line: the operator needs to fix the
// environment, a stack of annotations wouldn't help.
func handleErr(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case isCLIError.In(err):
		fmt.Fprintf(os.Stderr, "%s: %s\n", progName(), err)
		return 2
	case config.IsMisconfiguration.In(err):
		logging.Errorf(ctx, "Misconfigured build: %s", err)
		return 1
	default:
		errors.Log(ctx, err)
		return 1
	}
}

func progName() string {
	executable, err := os.Executable()
	if err != nil {
		return "<unknown executable>"
	}
	return filepath.Base(executable)
}
