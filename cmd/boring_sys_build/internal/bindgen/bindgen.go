// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package bindgen generates the Rust FFI declarations of the BoringSSL
// headers by running the bindgen CLI.
package bindgen

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
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

const (
	// OutputName is the file the wrapper crate includes.
	OutputName = "bindings.rs"
	// WrapperName is the generated header including every header of Headers.
	WrapperName = "boring_sys_wrapper.h"
)

// Headers are the headers under openssl/ to generate declarations for.
var Headers = []string{
	"aes.h",
	"asn1_mac.h",
	"asn1t.h",
	"blake2.h",
	"blowfish.h",
	"cast.h",
	"chacha.h",
	"cmac.h",
	"cpu.h",
	"curve25519.h",
	"des.h",
	"dtls1.h",
	"hkdf.h",
	"hrss.h",
	"md4.h",
	"md5.h",
	"obj_mac.h",
	"objects.h",
	"opensslv.h",
	"ossl_typ.h",
	"pkcs12.h",
	"poly1305.h",
	"rand.h",
	"rc4.h",
	"ripemd.h",
	"siphash.h",
	"srtp.h",
	"trust_token.h",
	"x509v3.h",
}

// knownNDKHosts are the prebuilt NDK toolchains documented at
// https://developer.android.com/ndk/guides/other_build_systems, by preference.
var knownNDKHosts = []string{"linux-x86_64", "darwin-x86_64", "windows-x86_64"}

// noLayoutTests are targets where layout tests trip over explicitly unaligned
// SDK types (https://github.com/rust-lang/rust-bindgen/issues/1651).
var noLayoutTests = map[string]bool{
	"aarch64-apple-ios":     true,
	"aarch64-apple-ios-sim": true,
}

// IncludePath is the root of the openssl/ headers.
func IncludePath(cfg *config.Config) string {
	switch {
	case cfg.Env.IncludePath != "":
		return cfg.Env.IncludePath
	case cfg.Features.Has(config.FIPS):
		return filepath.Join(cfg.SourcePath(), "include")
	default:
		return filepath.Join(cfg.SourcePath(), "src", "include")
	}
}

// PickNDKToolchain returns the name of the prebuilt toolchain to use from an
// NDK's toolchains/llvm/prebuilt directory.
func PickNDKToolchain(dir string) (string, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, known := range knownNDKHosts {
		for _, e := range entries {
			if e.Name() == known {
				return known, nil
			}
		}
	}
	// A host added after the list was written.
	for _, e := range entries {
		if e.IsDir() {
			return e.Name(), nil
		}
	}
	return "", errors.Reason("no subdirectories in %s", dir).Err()
}

// ClangArgs returns the clang arguments for the target of cfg.
//
// Problems locating a sysroot are reported as warnings; clang then fails on
// its own if the headers really can't be found.
func ClangArgs(ctx context.Context, cfg *config.Config) ([]string, error) {
	var args []string
	switch cfg.TargetOS {
	case "ios":
		// Use the iOS SDK, not the host macOS headers.
		sdk, _ := platform.IOSSDKName(cfg.Target)
		out, err := osutil.Output(ctx, osutil.Invocation{
			Executable: "xcrun",
			Args:       []string{"--show-sdk-path", "--sdk", sdk},
		})
		if err != nil {
			cargo.Warningf(ctx, "xcrun failed, bindgen may pick up host headers: %s", err)
			break
		}
		args = append(args, "-isysroot", strings.TrimRight(out, " \t\r\n"))

	case "android":
		ndk := cfg.Env.AndroidNDKHome
		if ndk == "" {
			return nil, errors.Reason("please set ANDROID_NDK_HOME for Android build").Tag(config.IsMisconfiguration).Err()
		}
		prebuilt := filepath.Join(ndk, "toolchains", "llvm", "prebuilt")
		tc, err := PickNDKToolchain(prebuilt)
		if err != nil {
			cargo.Warningf(ctx, "failed to find prebuilt Android NDK toolchain for bindgen: %s", err)
			break
		}
		args = append(args, "--sysroot", filepath.Join(prebuilt, tc, "sysroot"))
	}

	if cfg.Env.Sysroot != "" {
		args = append(args, "--sysroot="+cfg.Env.Sysroot)
	}
	if cfg.Env.CompilerExternalToolchain != "" {
		args = append(args, "--gcc-toolchain="+cfg.Env.CompilerExternalToolchain)
	}
	return append(args, "-I", IncludePath(cfg)), nil
}

// Wrapper renders a header including every header of Headers under include.
func Wrapper(include string) []byte {
	buf := &bytes.Buffer{}
	for _, h := range Headers {
		fmt.Fprintf(buf, "#include \"%s\"\n", filepath.ToSlash(filepath.Join(include, "openssl", h)))
	}
	return buf.Bytes()
}

// Args are the bindgen arguments for wrapper, writing to output.
func Args(target, wrapper, output string, clangArgs []string) []string {
	args := []string{
		wrapper,
		"-o", output,
		"--with-derive-default",
		"--with-derive-partialeq",
		"--with-derive-eq",
		"--default-enum-style", "newtype",
		"--default-macro-constant-type", "signed",
	}
	if noLayoutTests[target] {
		args = append(args, "--no-layout-tests")
	}
	args = append(args, "--")
	return append(args, clangArgs...)
}

// Generate writes bindings.rs into the output directory of cfg and returns
// its path.
func Generate(ctx context.Context, cfg *config.Config) (string, error) {
	clangArgs, err := ClangArgs(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return "", errors.Annotate(err, "failed to create %s", cfg.OutDir).Err()
	}
	wrapper := filepath.Join(cfg.OutDir, WrapperName)
	if err := ioutil.WriteFile(wrapper, Wrapper(IncludePath(cfg)), 0644); err != nil {
		return "", errors.Annotate(err, "failed to write %s", wrapper).Err()
	}

	output := filepath.Join(cfg.OutDir, OutputName)
	logging.Infof(ctx, "Generating %s", output)
	err = osutil.Run(ctx, osutil.Invocation{
		Executable: "bindgen",
		Args:       Args(cfg.Target, wrapper, output, clangArgs),
	})
	if err != nil {
		return "", errors.Annotate(err, "unable to generate bindings").Err()
	}
	return output, nil
}
