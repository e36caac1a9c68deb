// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package platform holds the per-target parameters of cross builds.
package platform

// Param is a single CMake definition.
type Param struct {
	Name  string
	Value string
}

// Android NDK >= 19.
var androidNDK = map[string][]Param{
	"aarch64": {{"ANDROID_ABI", "arm64-v8a"}},
	"arm":     {{"ANDROID_ABI", "armeabi-v7a"}},
	"x86":     {{"ANDROID_ABI", "x86"}},
	"x86_64":  {{"ANDROID_ABI", "x86_64"}},
}

// Android NDK < 18 with GCC.
var androidNDKOldGCC = map[string][]Param{
	"aarch64": {{"ANDROID_TOOLCHAIN_NAME", "aarch64-linux-android-4.9"}},
	"arm":     {{"ANDROID_TOOLCHAIN_NAME", "arm-linux-androideabi-4.9"}},
	"x86":     {{"ANDROID_TOOLCHAIN_NAME", "x86-linux-android-4.9"}},
	"x86_64":  {{"ANDROID_TOOLCHAIN_NAME", "x86_64-linux-android-4.9"}},
}

var ios = map[string][]Param{
	"aarch64-apple-ios": {
		{"CMAKE_OSX_ARCHITECTURES", "arm64"},
		{"CMAKE_OSX_SYSROOT", "iphoneos"},
	},
	"aarch64-apple-ios-sim": {
		{"CMAKE_OSX_ARCHITECTURES", "arm64"},
		{"CMAKE_OSX_SYSROOT", "iphonesimulator"},
	},
	"x86_64-apple-ios": {
		{"CMAKE_OSX_ARCHITECTURES", "x86_64"},
		{"CMAKE_OSX_SYSROOT", "iphonesimulator"},
	},
}

// AndroidParams returns the NDK parameters for arch, or nil for unknown
// architectures.
func AndroidParams(arch string, oldGCC bool) []Param {
	if oldGCC {
		return androidNDKOldGCC[arch]
	}
	return androidNDK[arch]
}

// IOSParams returns the parameters for an iOS target triple, or nil.
func IOSParams(target string) []Param {
	return ios[target]
}

// IOSSDKName returns the SDK name (as understood by xcrun) of an iOS target
// triple.
func IOSSDKName(target string) (string, bool) {
	for _, p := range ios[target] {
		if p.Name == "CMAKE_OSX_SYSROOT" {
			return p.Value, true
		}
	}
	return "", false
}
