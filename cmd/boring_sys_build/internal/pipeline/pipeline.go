// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pipeline runs the build of boring-sys end to end: acquire the
// libraries, generate the bindings and tell the build runner how to link.
package pipeline

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/bindgen"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cmake"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/fipslink"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/patches"
)

// Result describes what a successful Run produced.
type Result struct {
	// BoringSSLDir holds build/ with the archives.
	BoringSSLDir string
	// Subdir is the per-profile archive directory, if the generator uses one.
	Subdir string
	// Bindings is the path of bindings.rs.
	Bindings string
}

// Run acquires BoringSSL as cfg describes, generates bindings and emits the
// linker directives to e.
//
// Steps run strictly in order and the first error stops the pipeline.
func Run(ctx context.Context, cfg *config.Config, e *cargo.Emitter) (*Result, error) {
	ctx = cargo.UseEmitter(ctx, e)
	for _, w := range cfg.Warnings {
		cargo.Warningf(ctx, "%s", w)
	}

	// Resolved before any external work so a bad DEBUG/OPT_LEVEL fails fast.
	subdir, err := cmake.PlatformOutputSubdir(cfg.IsMSVC(), cfg.Env.Debug, cfg.Env.OptLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Acquisition.Mode != config.Precompiled {
		if _, err := cmake.BuildProfile(cfg.Env.Debug, cfg.Env.OptLevel); err != nil {
			return nil, err
		}
	}
	res := &Result{Subdir: subdir}

	logging.Infof(ctx, "Acquiring BoringSSL: %s", cfg.Acquisition.Mode)
	switch cfg.Acquisition.Mode {
	case config.Precompiled:
		res.BoringSSLDir = cfg.Acquisition.PrecompiledPath
	case config.BuildFromSources, config.BuildFromSourcesWithFIPSSplice:
		if res.BoringSSLDir, err = buildFromSources(ctx, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Reason("unknown acquisition mode %d", cfg.Acquisition.Mode).Err()
	}

	if cfg.Acquisition.Mode == config.BuildFromSourcesWithFIPSSplice {
		if err := fipslink.Splice(ctx, res.BoringSSLDir, cfg.Acquisition.PrecompiledBCM); err != nil {
			return nil, err
		}
	}

	if res.Bindings, err = bindgen.Generate(ctx, cfg); err != nil {
		return nil, err
	}

	if err := cargo.EmitLinkage(e, cfg, res.BoringSSLDir, res.Subdir); err != nil {
		return nil, errors.Annotate(err, "failed to emit linker directives").Err()
	}
	return res, nil
}

func buildFromSources(ctx context.Context, cfg *config.Config) (string, error) {
	if err := cmake.FetchSources(ctx, cfg); err != nil {
		return "", err
	}
	if err := patches.Apply(ctx, cfg); err != nil {
		return "", err
	}
	c, err := cmake.NewConfig(ctx, cfg)
	if err != nil {
		return "", err
	}
	return c.Build(ctx, cmake.Targets...)
}
