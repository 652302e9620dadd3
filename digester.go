// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package remit

import (
	"crypto"
	_ "crypto/sha256"

	"github.com/grailbio/base/digest"
)

// Digester is the digester used throughout remit. Task keys are
// digested with it for liveness testing during collection, and fresh
// keys are minted from it when a call is submitted without one.
var Digester = digest.Digester(crypto.SHA256)
