// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cargo

import (
	"github.com/plabayo/rama-boring/cmd/boring_sys_build/internal/config"
)

// SearchPaths returns the native search paths for the archives under
// bsslDir.
//
// FIPS builds keep libcrypto.a and libssl.a in per-library directories. subdir
// is the generator specific profile directory, usually empty.
func SearchPaths(cfg *config.Config, bsslDir, subdir string) []string {
	if cfg.Features.Has(config.FIPS) {
		return []string{
			bsslDir + "/build/crypto/" + subdir,
			bsslDir + "/build/ssl/" + subdir,
		}
	}
	return []string{bsslDir + "/build/" + subdir}
}

// EmitLinkage emits everything the wrapper crate needs to link: search
// paths, the two static archives, the optional C++ runtime and a rerun
// trigger for every variable consulted while resolving cfg.
func EmitLinkage(e *Emitter, cfg *config.Config, bsslDir, subdir string) error {
	for _, p := range SearchPaths(cfg, bsslDir, subdir) {
		e.LinkSearchNative(p)
	}
	e.LinkLibStatic("crypto")
	e.LinkLibStatic("ssl")
	if cfg.Env.CPPRuntimeLib != "" {
		e.LinkLib(cfg.Env.CPPRuntimeLib)
	}
	for _, name := range cfg.Consulted {
		e.RerunIfEnvChanged(name)
	}
	return e.Err()
}
