// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmake

import (
	"context"
	"os"
	"path/filepath"

	"go.chromium.org/luci/common/errors"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil"
)

// FetchSources makes sure the source tree has a CMakeLists.txt, fetching the
// vendored git submodule once if it does not.
func FetchSources(ctx context.Context, cfg *config.Config) error {
	src := cfg.SourcePath()
	switch _, err := os.Stat(filepath.Join(src, "CMakeLists.txt")); {
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return errors.Annotate(err, "failed to check the sources in %s", src).Err()
	}

	cargo.Warningf(ctx, "fetching boringssl git submodule")
	err := osutil.Run(ctx, osutil.Invocation{
		Executable: "git",
		Args:       []string{"submodule", "update", "--init", "--recursive", src},
		Dir:        cfg.ManifestDir,
	})
	if err != nil {
		return errors.Annotate(err, "failed to fetch submodule - consider running "+
			"`git submodule update --init --recursive %s` yourself", src).Err()
	}
	return nil
}
