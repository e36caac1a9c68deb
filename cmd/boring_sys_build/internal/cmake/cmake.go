// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cmake configures and drives the CMake build of BoringSSL.
package cmake

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/platform"
)

// Targets are the CMake targets producing libssl.a and libcrypto.a, in build
// order.
var Targets = []string{"ssl", "crypto"}

// Config is a CMake invocation.
type Config struct {
	// SourceDir has the top level CMakeLists.txt.
	SourceDir string
	// OutDir is the install prefix; the build tree is OutDir/build.
	OutDir string
	// Profile is the CMake build type.
	Profile string

	CFlags   []string
	CXXFlags []string
	ASMFlags []string

	defines []platform.Param
}

// Define sets a -D cache entry, replacing an earlier value of name.
func (c *Config) Define(name, value string) {
	for i := range c.defines {
		if c.defines[i].Name == name {
			c.defines[i].Value = value
			return
		}
	}
	c.defines = append(c.defines, platform.Param{Name: name, Value: value})
}

// Defined returns the value of a -D cache entry.
func (c *Config) Defined(name string) (string, bool) {
	for _, d := range c.defines {
		if d.Name == name {
			return d.Value, true
		}
	}
	return "", false
}

// BuildDir is where CMake runs and archives land.
func (c *Config) BuildDir() string {
	return filepath.Join(c.OutDir, "build")
}

// ConfigureArgs are the arguments of the configure step.
func (c *Config) ConfigureArgs() []string {
	args := []string{
		c.SourceDir,
		"-DCMAKE_INSTALL_PREFIX=" + c.OutDir,
		"-DCMAKE_BUILD_TYPE=" + c.Profile,
	}
	for _, d := range c.defines {
		args = append(args, "-D"+d.Name+"="+d.Value)
	}
	for _, f := range []struct {
		name  string
		flags []string
	}{
		{"CMAKE_C_FLAGS", c.CFlags},
		{"CMAKE_CXX_FLAGS", c.CXXFlags},
		{"CMAKE_ASM_FLAGS", c.ASMFlags},
	} {
		if len(f.flags) != 0 {
			args = append(args, "-D"+f.name+"="+strings.Join(f.flags, " "))
		}
	}
	return args
}

// BuildArgs are the arguments building a single target.
func (c *Config) BuildArgs(target string) []string {
	return []string{"--build", ".", "--target", target, "--config", c.Profile}
}

// Build configures the tree and builds targets one by one.
//
// It returns OutDir, which holds the build tree.
func (c *Config) Build(ctx context.Context, targets ...string) (string, error) {
	if err := os.MkdirAll(c.BuildDir(), 0755); err != nil {
		return "", errors.Annotate(err, "failed to create %s", c.BuildDir()).Err()
	}
	logging.Infof(ctx, "Configuring %s (%s)", c.SourceDir, c.Profile)
	err := osutil.Run(ctx, osutil.Invocation{Executable: "cmake", Args: c.ConfigureArgs(), Dir: c.BuildDir()})
	if err != nil {
		return "", errors.Annotate(err, "cmake configure failed").Err()
	}
	for _, t := range targets {
		logging.Infof(ctx, "Building target %s", t)
		err := osutil.Run(ctx, osutil.Invocation{Executable: "cmake", Args: c.BuildArgs(t), Dir: c.BuildDir()})
		if err != nil {
			return "", errors.Annotate(err, "cmake build of %s failed", t).Err()
		}
	}
	return c.OutDir, nil
}

// NewConfig returns the CMake invocation building the sources of cfg for its
// target.
//
// Under the FIPS policy, this probes the installed compilers.
func NewConfig(ctx context.Context, cfg *config.Config) (*Config, error) {
	profile, err := BuildProfile(cfg.Env.Debug, cfg.Env.OptLevel)
	if err != nil {
		return nil, err
	}
	c := &Config{
		SourceDir: cfg.SourcePath(),
		OutDir:    cfg.OutDir,
		Profile:   profile,
	}
	if !cfg.IsMSVC() {
		c.Define("CMAKE_POSITION_INDEPENDENT_CODE", "ON")
	}

	if cfg.IsCross() {
		if err := c.addCrossParams(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Env.CMakeToolchainFile != "" {
		c.Define("CMAKE_TOOLCHAIN_FILE", cfg.Env.CMakeToolchainFile)
	}
	if cfg.Env.Sysroot != "" {
		c.Define("CMAKE_SYSROOT", cfg.Env.Sysroot)
	}
	if tc := cfg.Env.CompilerExternalToolchain; tc != "" {
		c.Define("CMAKE_C_COMPILER_EXTERNAL_TOOLCHAIN", tc)
		c.Define("CMAKE_CXX_COMPILER_EXTERNAL_TOOLCHAIN", tc)
	}

	if cfg.Features.Has(config.Fuzzing) {
		c.CXXFlags = append(c.CXXFlags,
			"-DBORINGSSL_UNSAFE_DETERMINISTIC_MODE",
			"-DBORINGSSL_UNSAFE_FUZZER_MODE")
	}

	switch {
	case cfg.BuildsFIPSFromSources():
		cc, err := PickFIPSCompilers(ctx)
		if err != nil {
			return nil, err
		}
		c.Define("CMAKE_C_COMPILER", cc.CC)
		c.Define("CMAKE_CXX_COMPILER", cc.CXX)
		c.Define("CMAKE_ASM_COMPILER", cc.CC)
		c.Define("FIPS", "1")
	case cfg.Features.Has(config.FIPSLinkPrecompiled):
		c.Define("FIPS", "1")
	}
	return c, nil
}

func (c *Config) addCrossParams(ctx context.Context, cfg *config.Config) error {
	switch cfg.TargetOS {
	case "android":
		ndk := cfg.Env.AndroidNDKHome
		if ndk == "" {
			return errors.Reason("please set ANDROID_NDK_HOME for Android build").Tag(config.IsMisconfiguration).Err()
		}
		for _, p := range platform.AndroidParams(cfg.TargetArch, cfg.Features.Has(config.NDKOldGCC)) {
			logging.Debugf(ctx, "android arch=%s add %s=%s", cfg.TargetArch, p.Name, p.Value)
			c.Define(p.Name, p.Value)
		}
		toolchain := filepath.Join(ndk, "build", "cmake", "android.toolchain.cmake")
		logging.Debugf(ctx, "android toolchain=%s", toolchain)
		c.Define("CMAKE_TOOLCHAIN_FILE", toolchain)
		// 21 is the minimum level tested.
		c.Define("ANDROID_NATIVE_API_LEVEL", "21")
		c.Define("ANDROID_STL", "c++_shared")

	case "ios":
		for _, p := range platform.IOSParams(cfg.Target) {
			logging.Debugf(ctx, "ios arch=%s add %s=%s", cfg.TargetArch, p.Name, p.Value)
			c.Define(p.Name, p.Value)
		}
		flags := []string{"-fembed-bitcode"}
		if cfg.TargetArch == "x86_64" {
			flags = append(flags, "-target", "x86_64-apple-ios-simulator")
		}
		c.CFlags = append(c.CFlags, flags...)
		c.CXXFlags = append(c.CXXFlags, flags...)
		c.ASMFlags = append(c.ASMFlags, flags...)

	case "windows":
		// BoringSSL's CMakeLists.txt can't cross-compile with the Visual Studio
		// generator; without assembly it at least builds.
		if strings.Contains(cfg.Host, "windows") {
			c.Define("OPENSSL_NO_ASM", "YES")
		}

	case "linux":
		switch cfg.TargetArch {
		case "x86":
			c.Define("CMAKE_TOOLCHAIN_FILE", filepath.Join(c.SourceDir, "src", "util", "32-bit-toolchain.cmake"))
		case "aarch64":
			c.Define("CMAKE_TOOLCHAIN_FILE", filepath.Join(cfg.ManifestDir, "cmake", "aarch64-linux.cmake"))
		default:
			cargo.Warningf(ctx, "no toolchain file configured by boring_sys_build for %s", cfg.Target)
		}
	}
	return nil
}
