// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmake

import (
	"context"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil"
)

// IsToolchainPolicy is tagged into errors raised when no available compiler
// satisfies the FIPS security policy.
var IsToolchainPolicy = errors.BoolTag{Key: errors.NewTagKey("FIPS toolchain policy")}

// RequiredFIPSClangVersion is the compiler version documented by the
// BoringCrypto security policy (NIST certificate 3678, section 12.1).
const RequiredFIPSClangVersion = "12.0.0"

// Compilers is a matching pair of C and C++ compilers.
type Compilers struct {
	CC  string
	CXX string
}

// fipsCandidates are probed in order. "cc" must stay last: reaching it with
// a wrong version is fatal.
var fipsCandidates = []Compilers{
	{"clang-12", "clang++-12"},
	{"clang", "clang++"},
	{"cc", "c++"},
}

// compilerVersion returns the first line of "tool --version", or "" if the
// tool is missing or fails.
func compilerVersion(ctx context.Context, tool string) string {
	out, err := osutil.Output(ctx, osutil.Invocation{Executable: tool, Args: []string{"--version"}})
	if err != nil {
		if osutil.IsNotFound(err) {
			logging.Warningf(ctx, "missing %s, trying other compilers: %s", tool, err)
		} else {
			logging.Debugf(ctx, "%s --version failed: %s", tool, err)
		}
		return ""
	}
	return strings.SplitN(out, "\n", 2)[0]
}

// PickFIPSCompilers finds compilers of the version the FIPS policy requires.
func PickFIPSCompilers(ctx context.Context) (Compilers, error) {
	for _, c := range fipsCandidates {
		ccVersion := compilerVersion(ctx, c.CC)
		switch {
		case strings.Contains(ccVersion, RequiredFIPSClangVersion):
			if cxxVersion := compilerVersion(ctx, c.CXX); !strings.Contains(cxxVersion, RequiredFIPSClangVersion) {
				return Compilers{}, errors.Reason("mismatched versions of %s (%q) and %s (%q)", c.CC, ccVersion, c.CXX, cxxVersion).
					Tag(IsToolchainPolicy).Err()
			}
			logging.Infof(ctx, "Using %s and %s for the FIPS build", c.CC, c.CXX)
			return c, nil
		case c.CC == "cc":
			return Compilers{}, errors.Reason("unsupported clang version %q: FIPS requires clang %s", ccVersion, RequiredFIPSClangVersion).
				Tag(IsToolchainPolicy).Err()
		case ccVersion != "":
			cargo.Warningf(ctx, "FIPS requires clang version %s, skipping incompatible version %q", RequiredFIPSClangVersion, ccVersion)
		}
	}
	panic("unreachable")
}
