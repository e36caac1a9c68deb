// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package osutil runs the external tools the build depends on.
//
// Commands are created through a Session carried by the context, so tests can
// substitute a fake one (see osutiltest).
package osutil

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/exitcode"
)

// IsExternalToolFailure is tagged into errors of commands that could not
// start or exited with a non-zero status.
var IsExternalToolFailure = errors.BoolTag{Key: errors.NewTagKey("external tool failure")}

// Cmd abstracts exec.Cmd into a mockable interface for testing.
type Cmd interface {
	Output() ([]byte, error)
	Run() error
	SetDir(string)
	SetStdout(io.Writer)
	SetStderr(io.Writer)
}

// Session abstracts exec.CommandContext into a mockable interface for testing.
type Session interface {
	CommandContext(ctx context.Context, executable string, args ...string) Cmd
}

// RealCmd wraps exec.Cmd to implement Cmd.
type RealCmd struct {
	*exec.Cmd
}

var _ Cmd = RealCmd{}

// SetDir implements Cmd.
func (c RealCmd) SetDir(dir string) {
	c.Dir = dir
}

// SetStdout implements Cmd.
func (c RealCmd) SetStdout(w io.Writer) {
	c.Stdout = w
}

// SetStderr implements Cmd.
func (c RealCmd) SetStderr(w io.Writer) {
	c.Stderr = w
}

// RealSession wraps exec.CommandContext to implement Session.
type RealSession struct{}

var _ Session = RealSession{}

// CommandContext implements Session.
func (RealSession) CommandContext(ctx context.Context, executable string, args ...string) Cmd {
	return RealCmd{exec.CommandContext(ctx, executable, args...)}
}

type sessionKeyType string

const sessionKey sessionKeyType = "osutil.Session"

// UseSession returns a context that creates commands through s.
func UseSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// CommandContext pulls a mockable version of exec.CommandContext from ctx.
func CommandContext(ctx context.Context, executable string, args ...string) Cmd {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok {
		s = RealSession{}
	}
	return s.CommandContext(ctx, executable, args...)
}

// Invocation describes a command to run.
type Invocation struct {
	Executable string
	Args       []string
	Dir        string
}

// String renders the command line, for logs and errors.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Executable}, inv.Args...), " ")
}

func (inv Invocation) cmd(ctx context.Context) Cmd {
	logging.Debugf(ctx, "Running %q in %q", inv.String(), inv.Dir)
	cmd := CommandContext(ctx, inv.Executable, inv.Args...)
	if inv.Dir != "" {
		cmd.SetDir(inv.Dir)
	}
	return cmd
}

// Run runs the command, passing its stdout and stderr through to our stderr.
//
// Stdout of this process is reserved for build runner directives.
func Run(ctx context.Context, inv Invocation) error {
	cmd := inv.cmd(ctx)
	cmd.SetStdout(os.Stderr)
	cmd.SetStderr(os.Stderr)
	return annotate(inv, cmd.Run())
}

// Output runs the command and returns its stdout.
//
// Stderr is passed through.
func Output(ctx context.Context, inv Invocation) (string, error) {
	cmd := inv.cmd(ctx)
	cmd.SetStderr(os.Stderr)
	out, err := cmd.Output()
	return string(out), annotate(inv, err)
}

// IsNotFound is true if err was caused by a missing executable.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

func annotate(inv Invocation, err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && !ee.Exited() {
		return errors.Annotate(err, "%q was terminated by signal", inv.String()).
			Tag(IsExternalToolFailure).Err()
	}
	if rc, ok := exitcode.Get(err); ok {
		return errors.Annotate(err, "%q exited with status: %d", inv.String(), rc).
			Tag(IsExternalToolFailure).Err()
	}
	return errors.Annotate(err, "failed to run %q", inv.String()).Tag(IsExternalToolFailure).Err()
}
