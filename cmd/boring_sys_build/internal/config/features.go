// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"strings"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/system/environ"
)

// Feature is a build feature selected by the wrapper crate.
type Feature string

// Known features.
const (
	FIPS                Feature = "fips"
	FIPSLinkPrecompiled Feature = "fips-link-precompiled"
	PQExperimental      Feature = "pq-experimental"
	RPK                 Feature = "rpk"
	Fuzzing             Feature = "fuzzing"
	NDKOldGCC           Feature = "ndk-old-gcc"
	UnderscoreWildcards Feature = "underscore-wildcards"
)

// AllFeatures lists the feature vocabulary.
var AllFeatures = []Feature{
	FIPS,
	FIPSLinkPrecompiled,
	PQExperimental,
	RPK,
	Fuzzing,
	NDKOldGCC,
	UnderscoreWildcards,
}

// EnvName is the variable Cargo sets when f is enabled.
func (f Feature) EnvName() string {
	return "CARGO_FEATURE_" + strings.ToUpper(strings.Replace(string(f), "-", "_", -1))
}

// Features is an immutable set of features.
type Features struct {
	set stringset.Set
}

// NewFeatures validates names and returns the feature set they describe.
//
// fips-link-precompiled implies fips.
func NewFeatures(names ...string) (Features, error) {
	known := stringset.New(len(AllFeatures))
	for _, f := range AllFeatures {
		known.Add(string(f))
	}
	set := stringset.New(len(names))
	for _, n := range names {
		if !known.Has(n) {
			return Features{}, errors.Reason("unknown feature %q", n).Tag(IsMisconfiguration).Err()
		}
		set.Add(n)
	}
	if set.Has(string(FIPSLinkPrecompiled)) {
		set.Add(string(FIPS))
	}
	return Features{set: set}, nil
}

// FeaturesFromEnv collects the features enabled via CARGO_FEATURE_* variables.
func FeaturesFromEnv(env environ.Env) Features {
	var names []string
	for _, f := range AllFeatures {
		if _, ok := env.Lookup(f.EnvName()); ok {
			names = append(names, string(f))
		}
	}
	fs, _ := NewFeatures(names...) // all names are known
	return fs
}

// Union returns a set with the features of both fs and other.
func (fs Features) Union(other Features) Features {
	return Features{set: fs.list().Union(other.list())}
}

// Has is true if f is enabled.
func (fs Features) Has(f Feature) bool {
	return fs.set != nil && fs.set.Has(string(f))
}

// Any is true if at least one of fs is enabled.
func (fs Features) Any(f ...Feature) bool {
	for _, x := range f {
		if fs.Has(x) {
			return true
		}
	}
	return false
}

// Names returns enabled feature names, sorted.
func (fs Features) Names() []string {
	return fs.list().ToSortedSlice()
}

func (fs Features) list() stringset.Set {
	if fs.set == nil {
		return stringset.New(0)
	}
	return fs.set
}
