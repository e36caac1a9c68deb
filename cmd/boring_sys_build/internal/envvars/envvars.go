// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package envvars implements the target-aware environment variable lookup
// used by cross-compilation helpers.
//
// A variable NAME is looked up, in order of precedence, as:
//
//	NAME_<target>
//	NAME_<target with '-' replaced by '_'>
//	HOST_NAME or TARGET_NAME (HOST iff host == target)
//	NAME
//
// Every name consulted is remembered, so that the caller can tell the build
// runner to rerun when any of them changes.
package envvars

import (
	"strings"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/system/environ"
)

// Resolver looks up variables in a fixed environment snapshot.
//
// Resolver is not safe for concurrent use.
type Resolver struct {
	env    environ.Env
	host   string
	target string

	consulted []string
	seen      stringset.Set
}

// New returns a Resolver reading from env.
func New(env environ.Env, host, target string) *Resolver {
	return &Resolver{
		env:    env,
		host:   host,
		target: target,
		seen:   stringset.New(0),
	}
}

// Candidates returns the names Lookup consults for name, highest precedence
// first.
func (r *Resolver) Candidates(name string) []string {
	kind := "TARGET"
	if r.host == r.target {
		kind = "HOST"
	}
	return []string{
		name + "_" + r.target,
		name + "_" + strings.Replace(r.target, "-", "_", -1),
		kind + "_" + name,
		name,
	}
}

// Lookup returns the highest precedence value of name.
//
// Names are consulted until the first hit; all of them are recorded.
func (r *Resolver) Lookup(name string) (string, bool) {
	for _, c := range r.Candidates(name) {
		if v, ok := r.Var(c); ok {
			return v, true
		}
	}
	return "", false
}

// Var reads exactly one variable, recording it.
//
// A variable set to the empty string is present.
func (r *Resolver) Var(name string) (string, bool) {
	if r.seen.Add(name) {
		r.consulted = append(r.consulted, name)
	}
	return r.env.Lookup(name)
}

// Consulted returns every name read so far, in first-read order.
func (r *Resolver) Consulted() []string {
	return append([]string(nil), r.consulted...)
}
