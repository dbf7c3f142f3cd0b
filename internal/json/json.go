// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package json

import (
	"testing"

	sonicjson "github.com/bytedance/sonic" // nolint: depguard
)

var (
	Unmarshal  = sonicjson.ConfigDefault.Unmarshal
	Marshal    = sonicjson.ConfigDefault.Marshal
	NewEncoder = sonicjson.ConfigDefault.NewEncoder
)

func init() {
	if testing.Testing() {
		config := sonicjson.ConfigStd
		Unmarshal = config.Unmarshal
		Marshal = config.Marshal
		NewEncoder = config.NewEncoder
	}
}
