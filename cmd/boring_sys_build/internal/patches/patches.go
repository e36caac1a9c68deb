// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package patches brings a BoringSSL source tree to the state implied by the
// enabled features.
//
// Several builds may share one vendored tree, so the whole
// reset-clean-apply sequence runs under an exclusive file lock inside the
// tree.
package patches

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil"
)

// LockFileName is the lock file created in the source tree.
const LockFileName = ".patch_lock"

// lockPollInterval is how long to wait between attempts to take a held lock.
const lockPollInterval = 100 * time.Millisecond

// patch describes how one feature modifies the sources.
type patch struct {
	// script, relative to the manifest dir, runs inside the source tree.
	script string
	// diff, relative to the manifest dir, is applied with "git apply".
	diff string
}

var featurePatches = map[config.Feature]patch{
	config.PQExperimental:      {script: "scripts/apply_pq_patch.sh"},
	config.RPK:                 {script: "scripts/apply_rpk_patch.sh"},
	config.UnderscoreWildcards: {diff: "patches/underscore-wildcards.patch"},
}

// Apply resets the source tree of cfg and applies the patches of its
// features.
//
// It does nothing if the operator asserted the tree is already patched.
// Applying twice with the same features yields the same tree.
func Apply(ctx context.Context, cfg *config.Config) error {
	if cfg.Env.AssumePatched {
		logging.Infof(ctx, "BORING_BSSL_ASSUME_PATCHED is set, not touching the sources")
		return nil
	}
	src := cfg.SourcePath()
	lock := fslock.L{
		Path:    filepath.Join(src, LockFileName),
		Content: []byte(fmt.Sprintf("%d\n", os.Getpid())),
		Block: func() error {
			logging.Debugf(ctx, "Waiting for another build to release %s", LockFileName)
			if tr := clock.Sleep(ctx, lockPollInterval); tr.Incomplete() {
				return tr.Err
			}
			return nil
		},
	}
	err := lock.With(func() error {
		return applyLocked(ctx, cfg, src)
	})
	return errors.Annotate(err, "failed to patch %s", src).Err()
}

func applyLocked(ctx context.Context, cfg *config.Config, src string) error {
	git := func(args ...string) error {
		return osutil.Run(ctx, osutil.Invocation{Executable: "git", Args: args, Dir: src})
	}
	if err := git("reset", "--hard"); err != nil {
		return err
	}
	// The lock file itself is untracked and must survive the clean.
	if err := git("clean", "-fdx", "-e", LockFileName); err != nil {
		return err
	}

	for _, f := range cfg.PatchedFeatures() {
		p := featurePatches[f]
		switch {
		case p.script != "":
			cargo.Warningf(ctx, "applying %s patch to boringssl", f)
			script, err := filepath.Abs(filepath.Join(cfg.ManifestDir, p.script))
			if err != nil {
				return errors.Annotate(err, "bad patch script path").Err()
			}
			if err := osutil.Run(ctx, osutil.Invocation{Executable: script, Dir: src}); err != nil {
				return errors.Annotate(err, "%s patch", f).Err()
			}
		case p.diff != "":
			logging.Infof(ctx, "Applying %s patch to boringssl", f)
			diff := filepath.Join(cfg.ManifestDir, p.diff)
			if err := git("apply", "-v", "--whitespace=fix", diff); err != nil {
				return errors.Annotate(err, "%s patch", f).Err()
			}
		}
	}
	return nil
}
