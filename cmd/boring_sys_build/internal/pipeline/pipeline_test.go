// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pipeline

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.chromium.org/luci/common/system/environ"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/cargo"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil/osutiltest"
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/patches"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

const linuxHost = "x86_64-unknown-linux-gnu"

// workspace is a crate checkout with vendored sources and an OUT_DIR.
type workspace struct {
	manifest string
	out      string
}

func newWorkspace(t *testing.T) *workspace {
	root, err := filepath.EvalSymlinks(t.TempDir())
	So(err, ShouldBeNil)
	w := &workspace{
		manifest: filepath.Join(root, "boring-sys"),
		out:      filepath.Join(root, "out"),
	}
	for _, src := range []string{"boringssl", "boringssl-fips"} {
		dir := filepath.Join(w.manifest, "deps", src)
		So(os.MkdirAll(dir, 0755), ShouldBeNil)
		So(ioutil.WriteFile(filepath.Join(dir, "CMakeLists.txt"), nil, 0644), ShouldBeNil)
	}
	So(os.MkdirAll(w.out, 0755), ShouldBeNil)
	return w
}

func (w *workspace) env(target, arch, goos string, extra ...string) environ.Env {
	return environ.New(append([]string{
		"CARGO_MANIFEST_DIR=" + w.manifest,
		"OUT_DIR=" + w.out,
		"HOST=" + linuxHost,
		"TARGET=" + target,
		"CARGO_CFG_TARGET_ARCH=" + arch,
		"CARGO_CFG_TARGET_OS=" + goos,
	}, extra...))
}

// fakeTools pretends to be cmake, ar, xcrun and bindgen, producing the files
// the real tools would.
func fakeTools(fipsLayout bool) func(c *osutiltest.Call) (string, error) {
	return func(c *osutiltest.Call) (string, error) {
		switch c.Executable {
		case "cmake":
			if len(c.Args) > 3 && c.Args[0] == "--build" {
				target := c.Args[3]
				dir := c.Dir
				if fipsLayout {
					dir = filepath.Join(dir, target)
				}
				if err := os.MkdirAll(dir, 0755); err != nil {
					return "", err
				}
				return "", ioutil.WriteFile(filepath.Join(dir, "lib"+target+".a"), []byte("!<arch>\n"), 0644)
			}
		case "bindgen":
			return "", ioutil.WriteFile(c.Args[2], []byte("// bindings\n"), 0644)
		case "ar":
			if c.Args[0] == "t" {
				return "bcm.o\n", nil
			}
		case "xcrun":
			return "/Applications/Xcode.app/SDKs/iPhoneSimulator.sdk\n", nil
		}
		return "", nil
	}
}

// directives returns the emitted lines starting with prefix.
func directives(out *bytes.Buffer, prefix string) []string {
	var res []string
	for _, l := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(l, prefix) {
			res = append(res, l)
		}
	}
	return res
}

func callsOf(s *osutiltest.Session, exe string) []*osutiltest.Call {
	var res []*osutiltest.Call
	for _, c := range s.Calls() {
		if c.Executable == exe {
			res = append(res, c)
		}
	}
	return res
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRun(t *testing.T) {
	t.Parallel()

	Convey("Run", t, func() {
		w := newWorkspace(t)
		s := &osutiltest.Session{Handler: fakeTools(false)}
		ctx := s.Use(context.Background())
		stdout := &bytes.Buffer{}
		e := cargo.NewEmitter(stdout)

		resolve := func(env environ.Env, features ...string) *config.Config {
			fs, err := config.NewFeatures(features...)
			So(err, ShouldBeNil)
			cfg, err := config.Resolve(ctx, env, fs)
			So(err, ShouldBeNil)
			return cfg
		}

		Convey("native host build without features", func() {
			cfg := resolve(w.env(linuxHost, "x86_64", "linux"))
			res, err := Run(ctx, cfg, e)
			So(err, ShouldBeNil)

			So(exists(filepath.Join(w.out, "build", "libcrypto.a")), ShouldBeTrue)
			So(exists(filepath.Join(w.out, "build", "libssl.a")), ShouldBeTrue)
			So(res.Bindings, ShouldEqual, filepath.Join(w.out, "bindings.rs"))
			So(exists(res.Bindings), ShouldBeTrue)

			So(directives(stdout, "cargo:rustc-link-search="), ShouldResemble, []string{
				"cargo:rustc-link-search=native=" + w.out + "/build/",
			})
			So(directives(stdout, "cargo:rustc-link-lib="), ShouldResemble, []string{
				"cargo:rustc-link-lib=static=crypto",
				"cargo:rustc-link-lib=static=ssl",
			})

			Convey("declaring every consulted variable", func() {
				reruns := directives(stdout, "cargo:rerun-if-env-changed=")
				So(reruns, ShouldContain, "cargo:rerun-if-env-changed=BORING_BSSL_PATH")
				So(reruns, ShouldContain, "cargo:rerun-if-env-changed=BORING_BSSL_PATH_"+linuxHost)
				So(reruns, ShouldContain, "cargo:rerun-if-env-changed=HOST_BORING_BSSL_PATH")
				So(reruns, ShouldContain, "cargo:rerun-if-env-changed=OUT_DIR")
			})

			Convey("after resetting the sources", func() {
				git := callsOf(s, "git")
				So(git, ShouldHaveLength, 2)
				So(git[0].String(), ShouldEqual, "git reset --hard")
				So(git[1].String(), ShouldEqual, "git clean -fdx -e .patch_lock")
			})
		})

		Convey("android aarch64 cross build", func() {
			ndk := filepath.Join(w.manifest, "ndk")
			So(os.MkdirAll(filepath.Join(ndk, "toolchains", "llvm", "prebuilt", "linux-x86_64"), 0755), ShouldBeNil)
			cfg := resolve(w.env("aarch64-linux-android", "aarch64", "android", "ANDROID_NDK_HOME="+ndk))
			_, err := Run(ctx, cfg, e)
			So(err, ShouldBeNil)

			configure := callsOf(s, "cmake")[0]
			So(configure.Args, ShouldContain, "-DANDROID_ABI=arm64-v8a")
			So(configure.Args, ShouldContain, "-DCMAKE_TOOLCHAIN_FILE="+filepath.Join(ndk, "build", "cmake", "android.toolchain.cmake"))

			bg := callsOf(s, "bindgen")
			So(bg, ShouldHaveLength, 1)
			So(bg[0].String(), ShouldContainSubstring,
				"--sysroot "+filepath.Join(ndk, "toolchains", "llvm", "prebuilt", "linux-x86_64", "sysroot"))
		})

		Convey("ios simulator x86_64", func() {
			cfg := resolve(w.env("x86_64-apple-ios", "x86_64", "ios"))
			_, err := Run(ctx, cfg, e)
			So(err, ShouldBeNil)

			configure := callsOf(s, "cmake")[0]
			for _, flags := range []string{"CMAKE_C_FLAGS", "CMAKE_CXX_FLAGS", "CMAKE_ASM_FLAGS"} {
				So(configure.Args, ShouldContain, "-D"+flags+"=-fembed-bitcode -target x86_64-apple-ios-simulator")
			}

			xcrun := callsOf(s, "xcrun")
			So(xcrun, ShouldHaveLength, 1)
			So(xcrun[0].String(), ShouldEqual, "xcrun --show-sdk-path --sdk iphonesimulator")

			bg := callsOf(s, "bindgen")[0]
			So(bg.String(), ShouldContainSubstring, "-isysroot /Applications/Xcode.app/SDKs/iPhoneSimulator.sdk")
			So(bg.Args, ShouldNotContain, "--no-layout-tests")
		})

		Convey("precompiled library", func() {
			cfg := resolve(w.env(linuxHost, "x86_64", "linux", "BORING_BSSL_PATH=/opt/boring"))
			res, err := Run(ctx, cfg, e)
			So(err, ShouldBeNil)
			So(res.BoringSSLDir, ShouldEqual, "/opt/boring")

			So(callsOf(s, "cmake"), ShouldBeEmpty)
			So(callsOf(s, "git"), ShouldBeEmpty)
			So(s.CommandLines(), ShouldHaveLength, 1)
			So(exists(filepath.Join(w.manifest, "deps", "boringssl", patches.LockFileName)), ShouldBeFalse)

			So(directives(stdout, "cargo:rustc-link-search="), ShouldResemble, []string{
				"cargo:rustc-link-search=native=/opt/boring/build/",
			})
			So(directives(stdout, "cargo:rustc-link-lib="), ShouldResemble, []string{
				"cargo:rustc-link-lib=static=crypto",
				"cargo:rustc-link-lib=static=ssl",
			})
		})

		Convey("fips link-precompiled splice", func() {
			s.Handler = fakeTools(true)
			bcm := filepath.Join(w.manifest, "bcm.o")
			So(ioutil.WriteFile(bcm, []byte("validated"), 0644), ShouldBeNil)
			cfg := resolve(w.env(linuxHost, "x86_64", "linux", "BORING_SSL_PRECOMPILED_BCM_O="+bcm), "fips-link-precompiled")

			_, err := Run(ctx, cfg, e)
			So(err, ShouldBeNil)

			archive := filepath.Join(w.out, "build", "crypto", "libcrypto.a")
			spliced := filepath.Join(w.out, "build", "bcm-fips.o")
			ar := callsOf(s, "ar")
			So(ar, ShouldHaveLength, 2)
			So(ar[0].String(), ShouldEqual, "ar t "+archive+" bcm.o")
			So(ar[1].String(), ShouldEqual, "ar rb bcm.o "+archive+" "+spliced)
			So(exists(spliced), ShouldBeTrue)

			So(directives(stdout, "cargo:rustc-link-search="), ShouldResemble, []string{
				"cargo:rustc-link-search=native=" + w.out + "/build/crypto/",
				"cargo:rustc-link-search=native=" + w.out + "/build/ssl/",
			})
			So(directives(stdout, "cargo:warning="), ShouldContain, "cargo:warning=linking in precompiled `bcm.o` module")
		})

		Convey("mutually exclusive features fail before any effect", func() {
			fs, err := config.NewFeatures("fips", "rpk")
			So(err, ShouldBeNil)
			_, err = config.Resolve(ctx, w.env(linuxHost, "x86_64", "linux"), fs)
			So(err, ShouldErrLike, "mutually exclusive")
			So(s.Calls(), ShouldBeEmpty)
			So(exists(filepath.Join(w.manifest, "deps", "boringssl-fips", patches.LockFileName)), ShouldBeFalse)
			So(exists(filepath.Join(w.manifest, "deps", "boringssl", patches.LockFileName)), ShouldBeFalse)
		})

		Convey("msvc requires DEBUG before building", func() {
			cfg := resolve(w.env("x86_64-pc-windows-msvc", "x86_64", "windows", "OPT_LEVEL=2"))
			_, err := Run(ctx, cfg, e)
			So(err, ShouldErrLike, "DEBUG variable not defined")
			So(s.Calls(), ShouldBeEmpty)
		})

		Convey("precompiled library with patch features warns the build runner", func() {
			cfg := resolve(w.env(linuxHost, "x86_64", "linux", "BORING_BSSL_PATH=/opt/boring"), "underscore-wildcards")
			_, err := Run(ctx, cfg, e)
			So(err, ShouldBeNil)
			So(directives(stdout, "cargo:warning="), ShouldContain,
				"cargo:warning=precompiled BoringSSL was provided, so patches will be ignored")
			So(exists(filepath.Join(w.manifest, "deps", "boringssl", patches.LockFileName)), ShouldBeFalse)
		})

		Convey("android without ANDROID_NDK_HOME fails before touching the sources", func() {
			_, err := config.Resolve(ctx, w.env("aarch64-linux-android", "aarch64", "android"), config.Features{})
			So(err, ShouldErrLike, "please set ANDROID_NDK_HOME")
			So(config.IsMisconfiguration.In(err), ShouldBeTrue)
			So(s.Calls(), ShouldBeEmpty)
			So(exists(filepath.Join(w.manifest, "deps", "boringssl", patches.LockFileName)), ShouldBeFalse)
		})

		Convey("bad OPT_LEVEL fails before touching the sources", func() {
			cfg := resolve(w.env(linuxHost, "x86_64", "linux", "OPT_LEVEL=7"))
			_, err := Run(ctx, cfg, e)
			So(err, ShouldErrLike, "unknown OPT_LEVEL=7 env var")
			So(s.Calls(), ShouldBeEmpty)
			So(exists(filepath.Join(w.manifest, "deps", "boringssl", patches.LockFileName)), ShouldBeFalse)
			So(directives(stdout, "cargo:rustc-link-lib="), ShouldBeEmpty)
		})

		Convey("stops at the first failing step", func() {
			s.Handler = nil
			s.ReturnError = []error{nil, nil, os.ErrPermission}
			cfg := resolve(w.env(linuxHost, "x86_64", "linux"))
			_, err := Run(ctx, cfg, e)
			So(err, ShouldErrLike, "cmake configure failed")
			So(callsOf(s, "bindgen"), ShouldBeEmpty)
			So(directives(stdout, "cargo:rustc-link-lib="), ShouldBeEmpty)
		})
	})
}
