// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmake

import (
	"go.chromium.org/luci/common/errors"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
)

// BuildProfile maps Cargo's DEBUG and OPT_LEVEL onto a CMake build type.
//
// An unset OPT_LEVEL builds Release.
func BuildProfile(debug, optLevel string) (string, error) {
	var debugInfo bool
	switch debug {
	case "", "false":
	case "true":
		debugInfo = true
	default:
		return "", errors.Reason("unknown DEBUG=%s env var", debug).Tag(config.IsMisconfiguration).Err()
	}

	switch optLevel {
	case "0":
		return "Debug", nil
	case "", "1", "2", "3":
		if debugInfo {
			return "RelWithDebInfo", nil
		}
		return "Release", nil
	case "s", "z":
		return "MinSizeRel", nil
	}
	return "", errors.Reason("unknown OPT_LEVEL=%s env var", optLevel).Tag(config.IsMisconfiguration).Err()
}

// PlatformOutputSubdir is the directory, relative to a library's build
// directory, where the generator places the archive.
//
// Only the MSVC generator uses one; it is named after the build profile.
func PlatformOutputSubdir(isMSVC bool, debug, optLevel string) (string, error) {
	if !isMSVC {
		return "", nil
	}
	if debug == "" {
		return "", errors.Reason("DEBUG variable not defined in env").Tag(config.IsMisconfiguration).Err()
	}
	if optLevel == "" {
		return "", errors.Reason("OPT_LEVEL variable not defined in env").Tag(config.IsMisconfiguration).Err()
	}
	return BuildProfile(debug, optLevel)
}
