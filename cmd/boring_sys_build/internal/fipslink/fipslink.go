// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fipslink splices a precompiled, FIPS validated bcm.o into a freshly
// built libcrypto.a.
package fipslink

import (
	"context"
	"path/filepath"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/filesystem"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil"
)

const (
	// ModuleMember is the name of the FIPS module inside libcrypto.a.
	ModuleMember = "bcm.o"
	// SplicedName is the name of the precompiled module copy in the build
	// tree.
	SplicedName = "bcm-fips.o"
)

// CryptoArchive is the path of libcrypto.a in a FIPS build tree.
func CryptoArchive(bsslDir string) string {
	return filepath.Join(bsslDir, "build", "crypto", "libcrypto.a")
}

// Splice inserts the object at bcmPath into the libcrypto.a under bsslDir,
// right before its own bcm.o member.
//
// Linkers take the first definition of a symbol found in an archive, so the
// precompiled module shadows the one built from sources.
func Splice(ctx context.Context, bsslDir, bcmPath string) error {
	cargo.Warningf(ctx, "linking in precompiled `%s` module", ModuleMember)

	archive, err := filepath.EvalSymlinks(CryptoArchive(bsslDir))
	if err != nil {
		return errors.Annotate(err, "no libcrypto.a to splice into").Err()
	}
	if err := filesystem.AbsPath(&archive); err != nil {
		return errors.Annotate(err, "bad archive path").Err()
	}

	// Copy refuses to overwrite; a previous build may have left one behind.
	dst := filepath.Join(bsslDir, "build", SplicedName)
	if err := filesystem.RemoveAll(dst); err != nil {
		return errors.Annotate(err, "failed to remove stale %s", dst).Err()
	}
	if err := filesystem.Copy(dst, bcmPath, 0644); err != nil {
		return errors.Annotate(err, "failed to copy %s", bcmPath).Err()
	}

	out, err := osutil.Output(ctx, osutil.Invocation{Executable: "ar", Args: []string{"t", archive, ModuleMember}})
	if err != nil {
		return errors.Annotate(err, "failed to verify FIPS module name").Err()
	}
	if member := strings.TrimSpace(out); member != ModuleMember {
		return errors.Reason("failed to verify FIPS module name: %s lists %q, want %q", archive, member, ModuleMember).Err()
	}

	logging.Infof(ctx, "Splicing %s before %s in %s", dst, ModuleMember, archive)
	err = osutil.Run(ctx, osutil.Invocation{Executable: "ar", Args: []string{"rb", ModuleMember, archive, dst}})
	return errors.Annotate(err, "failed to splice %s", dst).Err()
}
