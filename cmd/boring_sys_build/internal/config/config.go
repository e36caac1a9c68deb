// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config resolves the build runner environment into a single
// immutable Config.
//
// Nothing outside of this package reads the process environment: every
// consulted variable is captured here and recorded for rerun directives.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/environ"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/envvars"
)

// IsMisconfiguration is tagged into errors caused by invalid inputs.
//
// Such errors are detected before any external work is done.
var IsMisconfiguration = errors.BoolTag{Key: errors.NewTagKey("misconfiguration")}

const (
	// PrecompiledBCMVar names the precompiled FIPS module object.
	PrecompiledBCMVar = "BORING_SSL_PRECOMPILED_BCM_O"

	vendoredSources     = "deps/boringssl"
	vendoredFIPSSources = "deps/boringssl-fips"
)

// Mode is the way the native archives arrive on disk.
type Mode int

// Acquisition modes.
const (
	// Precompiled uses an operator supplied build tree as is.
	Precompiled Mode = iota
	// BuildFromSources builds the (possibly vendored) sources.
	BuildFromSources
	// BuildFromSourcesWithFIPSSplice builds the sources and splices a
	// precompiled FIPS module into libcrypto.a.
	BuildFromSourcesWithFIPSSplice
)

func (m Mode) String() string {
	switch m {
	case Precompiled:
		return "Precompiled"
	case BuildFromSources:
		return "BuildFromSources"
	case BuildFromSourcesWithFIPSSplice:
		return "BuildFromSourcesWithFipsSplice"
	}
	return "Unknown"
}

// MarshalJSON implements json.Marshaler.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Acquisition is the selected acquisition mode with its inputs.
type Acquisition struct {
	Mode Mode
	// PrecompiledPath is set for Precompiled.
	PrecompiledPath string `json:",omitempty"`
	// Sources is set for both source build modes.
	Sources string `json:",omitempty"`
	// PrecompiledBCM is set for BuildFromSourcesWithFIPSSplice.
	PrecompiledBCM string `json:",omitempty"`
}

// Overrides are the optional operator overrides, each resolved with target
// precedence (see envvars).
type Overrides struct {
	Path                      string `json:",omitempty"`
	IncludePath               string `json:",omitempty"`
	SourcePath                string `json:",omitempty"`
	AssumePatched             bool
	Sysroot                   string `json:",omitempty"`
	CompilerExternalToolchain string `json:",omitempty"`
	Debug                     string `json:",omitempty"`
	OptLevel                  string `json:",omitempty"`
	AndroidNDKHome            string `json:",omitempty"`
	CMakeToolchainFile        string `json:",omitempty"`
	CPPRuntimeLib             string `json:",omitempty"`
	PrecompiledBCM            string `json:",omitempty"`
}

// Config is the resolved build configuration.
//
// It must not be modified after Resolve returns.
type Config struct {
	ManifestDir string
	OutDir      string
	Host        string
	Target      string
	TargetArch  string
	TargetOS    string

	Features    Features
	Env         Overrides
	Acquisition Acquisition

	// Consulted lists every variable read while resolving, present or not.
	Consulted []string
	// Warnings are soft problems found while resolving, to be shown to the
	// operator once the build runner can see them.
	Warnings []string `json:",omitempty"`
}

// Resolve builds a Config from env and the enabled features.
//
// All returned errors are tagged with IsMisconfiguration.
func Resolve(ctx context.Context, env environ.Env, features Features) (*Config, error) {
	// Required variables are not target specific, read them directly.
	boot := envvars.New(env, "", "")
	required := func(name string) (string, error) {
		v, ok := boot.Var(name)
		if !ok || v == "" {
			return "", errors.Reason("%s is not set; boring_sys_build must run under a Cargo build script", name).
				Tag(IsMisconfiguration).Err()
		}
		return v, nil
	}

	cfg := &Config{Features: features}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"CARGO_MANIFEST_DIR", &cfg.ManifestDir},
		{"OUT_DIR", &cfg.OutDir},
		{"HOST", &cfg.Host},
		{"TARGET", &cfg.Target},
		{"CARGO_CFG_TARGET_ARCH", &cfg.TargetArch},
		{"CARGO_CFG_TARGET_OS", &cfg.TargetOS},
	} {
		v, err := required(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	for _, p := range []*string{&cfg.ManifestDir, &cfg.OutDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, errors.Annotate(err, "bad path %q", *p).Tag(IsMisconfiguration).Err()
		}
		*p = abs
	}

	r := envvars.New(env, cfg.Host, cfg.Target)
	for _, name := range boot.Consulted() {
		r.Var(name)
	}
	cfg.Env = readOverrides(r)
	cfg.Consulted = r.Consulted()

	if err := cfg.checkFeatureCompatibility(ctx); err != nil {
		return nil, err
	}
	if err := cfg.selectAcquisition(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readOverrides(r *envvars.Resolver) Overrides {
	get := func(name string) string {
		v, _ := r.Lookup(name)
		return v
	}
	return Overrides{
		Path:                      get("BORING_BSSL_PATH"),
		IncludePath:               get("BORING_BSSL_INCLUDE_PATH"),
		SourcePath:                get("BORING_BSSL_SOURCE_PATH"),
		AssumePatched:             get("BORING_BSSL_ASSUME_PATCHED") != "",
		Sysroot:                   get("BORING_BSSL_SYSROOT"),
		CompilerExternalToolchain: get("BORING_BSSL_COMPILER_EXTERNAL_TOOLCHAIN"),
		Debug:                     get("DEBUG"),
		OptLevel:                  get("OPT_LEVEL"),
		AndroidNDKHome:            get("ANDROID_NDK_HOME"),
		CMakeToolchainFile:        get("CMAKE_TOOLCHAIN_FILE"),
		CPPRuntimeLib:             get("BORING_BSSL_RUST_CPPLIB"),
		PrecompiledBCM:            get(PrecompiledBCMVar),
	}
}

func (c *Config) checkFeatureCompatibility(ctx context.Context) error {
	precompiled := c.Env.Path != ""

	switch {
	case c.Features.Has(FIPS) && c.Features.Has(RPK):
		return errors.Reason("`fips` and `rpk` features are mutually exclusive").Tag(IsMisconfiguration).Err()
	case precompiled && c.Features.Any(RPK, PQExperimental):
		return errors.Reason("precompiled BoringSSL was provided, optional patches can't be applied to it").
			Tag(IsMisconfiguration).Err()
	case precompiled && c.Features.Has(FIPS):
		return errors.Reason("precompiled BoringSSL was provided, so FIPS configuration can't be applied").
			Tag(IsMisconfiguration).Err()
	case c.Env.AssumePatched && !precompiled && c.Env.SourcePath == "":
		return errors.Reason("BORING_BSSL_ASSUME_PATCHED is supposed to be used with " +
			"BORING_BSSL_PATH or BORING_BSSL_SOURCE_PATH").Tag(IsMisconfiguration).Err()
	}

	// Both cmake and bindgen need the NDK.
	if c.TargetOS == "android" && c.Env.AndroidNDKHome == "" {
		return errors.Reason("please set ANDROID_NDK_HOME for Android build").Tag(IsMisconfiguration).Err()
	}

	if precompiled && c.PatchesRequired() {
		c.warnf(ctx, "precompiled BoringSSL was provided, so patches will be ignored")
	}
	return nil
}

func (c *Config) warnf(ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.Debugf(ctx, "deferred warning: %s", msg)
	c.Warnings = append(c.Warnings, msg)
}

func (c *Config) selectAcquisition() error {
	switch {
	case c.Env.Path != "":
		c.Acquisition = Acquisition{Mode: Precompiled, PrecompiledPath: c.Env.Path}
	case c.Features.Has(FIPSLinkPrecompiled):
		if c.Env.PrecompiledBCM == "" {
			return errors.Reason("`fips-link-precompiled` requires %s to be specified", PrecompiledBCMVar).
				Tag(IsMisconfiguration).Err()
		}
		c.Acquisition = Acquisition{
			Mode:           BuildFromSourcesWithFIPSSplice,
			Sources:        c.SourcePath(),
			PrecompiledBCM: c.Env.PrecompiledBCM,
		}
	default:
		c.Acquisition = Acquisition{Mode: BuildFromSources, Sources: c.SourcePath()}
	}
	return nil
}

// SourcePath is the BoringSSL source tree: the override, or the vendored
// copy inside the manifest directory.
func (c *Config) SourcePath() string {
	if c.Env.SourcePath != "" {
		return c.Env.SourcePath
	}
	if c.BuildsFIPSFromSources() {
		return filepath.Join(c.ManifestDir, vendoredFIPSSources)
	}
	return filepath.Join(c.ManifestDir, vendoredSources)
}

// BuildsFIPSFromSources is true when the FIPS module itself is compiled
// locally, which subjects the build to the FIPS toolchain policy.
func (c *Config) BuildsFIPSFromSources() bool {
	return c.Features.Has(FIPS) && !c.Features.Has(FIPSLinkPrecompiled)
}

// PatchedFeatures are the enabled features that patch the sources, in the
// order their patches apply.
func (c *Config) PatchedFeatures() []Feature {
	var out []Feature
	for _, f := range []Feature{PQExperimental, RPK, UnderscoreWildcards} {
		if c.Features.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// PatchesRequired is true if patches must be applied to the sources.
func (c *Config) PatchesRequired() bool {
	return len(c.PatchedFeatures()) != 0 && !c.Env.AssumePatched
}

// IsCross is true when host and target differ.
func (c *Config) IsCross() bool {
	return c.Host != c.Target
}

// IsMSVC is true for MSVC targets, whose generator places archives in a
// per-profile sub-directory.
func (c *Config) IsMSVC() bool {
	return strings.HasSuffix(c.Target, "-msvc")
}

// MarshalJSON implements json.Marshaler.
func (fs Features) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Names())
}
