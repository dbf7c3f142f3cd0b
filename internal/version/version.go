// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package version holds the build version stamped via -ldflags at release time.
package version

// Version is the version of the push gateway, set at build time.
var Version = "dev"
