// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package envvars

import (
	"testing"

	"go.chromium.org/luci/common/system/environ"

	. "github.com/smartystreets/goconvey/convey"
)

const (
	linuxHost    = "x86_64-unknown-linux-gnu"
	androidCross = "aarch64-linux-android"
)

func TestResolver(t *testing.T) {
	t.Parallel()

	Convey("Cross build", t, func() {
		cross := func(vars ...string) *Resolver {
			return New(environ.New(vars), linuxHost, androidCross)
		}

		Convey("candidates are ordered by precedence", func() {
			So(cross().Candidates("SYNTH"), ShouldResemble, []string{
				"SYNTH_aarch64-linux-android",
				"SYNTH_aarch64_linux_android",
				"TARGET_SYNTH",
				"SYNTH",
			})
		})

		Convey("highest tier wins when all are set", func() {
			r := cross(
				"SYNTH_aarch64-linux-android=1",
				"SYNTH_aarch64_linux_android=2",
				"TARGET_SYNTH=3",
				"SYNTH=4",
			)
			v, ok := r.Lookup("SYNTH")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "1")
			So(r.Consulted(), ShouldResemble, []string{"SYNTH_aarch64-linux-android"})
		})

		Convey("lower tiers lose to higher ones", func() {
			r := cross("TARGET_SYNTH=3", "SYNTH=4")
			v, _ := r.Lookup("SYNTH")
			So(v, ShouldEqual, "3")
		})

		Convey("each tier alone is found", func() {
			for i, name := range cross().Candidates("SYNTH") {
				r := cross(name + "=" + name)
				v, ok := r.Lookup("SYNTH")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, name)
				So(r.Consulted(), ShouldHaveLength, i+1)
			}
		})

		Convey("unset is reported and still recorded", func() {
			r := cross()
			_, ok := r.Lookup("SYNTH")
			So(ok, ShouldBeFalse)
			So(r.Consulted(), ShouldResemble, r.Candidates("SYNTH"))
		})

		Convey("empty value is present", func() {
			v, ok := cross("SYNTH=").Lookup("SYNTH")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "")
		})

		Convey("names are recorded once", func() {
			r := cross()
			r.Lookup("SYNTH")
			r.Lookup("SYNTH")
			r.Var("OTHER")
			So(r.Consulted(), ShouldHaveLength, 5)
			So(r.Consulted()[4], ShouldEqual, "OTHER")
		})
	})

	Convey("Native build uses the HOST prefix", t, func() {
		r := New(environ.New([]string{"HOST_SYNTH=host"}), linuxHost, linuxHost)

		v, ok := r.Lookup("SYNTH")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "host")
		So(r.Candidates("SYNTH")[2], ShouldEqual, "HOST_SYNTH")
	})
}
