// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cargo emits directives understood by the Cargo build script
// protocol, one per line.
package cargo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.chromium.org/luci/common/logging"
)

// Emitter writes directives to the build runner.
//
// Safe for concurrent use. Write errors are sticky and returned by Err.
type Emitter struct {
	m   sync.Mutex
	w   io.Writer
	err error
}

// NewEmitter returns an Emitter writing to w (usually stdout).
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

func (e *Emitter) emit(key, value string) {
	e.m.Lock()
	defer e.m.Unlock()
	if e.err == nil {
		_, e.err = fmt.Fprintf(e.w, "cargo:%s=%s\n", key, value)
	}
}

// Err returns the first write error, if any.
func (e *Emitter) Err() error {
	e.m.Lock()
	defer e.m.Unlock()
	return e.err
}

// LinkSearchNative adds a native library search path.
func (e *Emitter) LinkSearchNative(path string) {
	e.emit("rustc-link-search", "native="+path)
}

// LinkLibStatic links a static library.
func (e *Emitter) LinkLibStatic(name string) {
	e.emit("rustc-link-lib", "static="+name)
}

// LinkLib links a library of the default kind.
func (e *Emitter) LinkLib(name string) {
	e.emit("rustc-link-lib", name)
}

// RerunIfEnvChanged declares a dependency on an environment variable.
func (e *Emitter) RerunIfEnvChanged(name string) {
	e.emit("rerun-if-env-changed", name)
}

// Warning shows msg to the operator. Multi-line messages are split, since
// directives are line based.
func (e *Emitter) Warning(msg string) {
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		e.emit("warning", line)
	}
}

type emitterKeyType string

const emitterKey emitterKeyType = "cargo.Emitter"

// UseEmitter returns a context that sends warnings to e.
func UseEmitter(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, emitterKey, e)
}

// Warningf logs a warning and, if the context has an Emitter, also shows it
// to the operator through the build runner.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.Warningf(ctx, "%s", msg)
	if e, ok := ctx.Value(emitterKey).(*Emitter); ok {
		e.Warning(msg)
	}
}
