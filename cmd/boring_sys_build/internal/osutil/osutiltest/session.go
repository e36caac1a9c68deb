// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package osutiltest provides a fake osutil.Session recording all commands.
package osutiltest

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/osutil"
)

// Call is a recorded command.
type Call struct {
	Executable string
	Args       []string
	Dir        string
}

// String renders the command line.
func (c *Call) String() string {
	return strings.Join(append([]string{c.Executable}, c.Args...), " ")
}

// Session is a fake osutil.Session.
//
// A command's result comes from Handler if set, otherwise from ReturnOutput and
// ReturnError at the index of the call (missing entries mean success with no
// output). Safe for concurrent use.
type Session struct {
	Handler      func(c *Call) (stdout string, err error)
	ReturnOutput []string
	ReturnError  []error

	m     sync.Mutex
	calls []*Call
}

var _ osutil.Session = (*Session)(nil)

// Use returns a context whose commands go to s.
func (s *Session) Use(ctx context.Context) context.Context {
	return osutil.UseSession(ctx, s)
}

// Calls returns all commands run so far.
func (s *Session) Calls() []*Call {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]*Call(nil), s.calls...)
}

// CommandLines returns all commands run so far, rendered.
func (s *Session) CommandLines() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.String())
	}
	return out
}

// CommandContext implements osutil.Session.
func (s *Session) CommandContext(ctx context.Context, executable string, args ...string) osutil.Cmd {
	return &cmd{s: s, call: &Call{Executable: executable, Args: args}}
}

func (s *Session) run(c *Call) (string, error) {
	s.m.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, c)
	handler := s.Handler
	var out string
	var err error
	if idx < len(s.ReturnOutput) {
		out = s.ReturnOutput[idx]
	}
	if idx < len(s.ReturnError) {
		err = s.ReturnError[idx]
	}
	s.m.Unlock()

	if handler != nil {
		return handler(c)
	}
	return out, err
}

// NotFound returns the error exec reports for a missing executable.
func NotFound(name string) error {
	return &exec.Error{Name: name, Err: exec.ErrNotFound}
}

type cmd struct {
	s      *Session
	call   *Call
	stdout io.Writer
}

func (c *cmd) Output() ([]byte, error) {
	out, err := c.s.run(c.call)
	return []byte(out), err
}

func (c *cmd) Run() error {
	out, err := c.s.run(c.call)
	if c.stdout != nil && out != "" {
		io.WriteString(c.stdout, out)
	}
	return err
}

func (c *cmd) SetDir(dir string)     { c.call.Dir = dir }
func (c *cmd) SetStdout(w io.Writer) { c.stdout = w }
func (c *cmd) SetStderr(io.Writer)   {}
