// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package accumulation

import (
	"errors"
	"fmt"
)

// ErrInterruptedDispatch is returned when a broadcast is aborted while blocked
// on a full mailbox, typically because the accumulator was closed. A partially
// delivered payload would silently break the aggregation invariant, so the
// whole fan-out fails instead.
var ErrInterruptedDispatch = errors.New("dispatch interrupted while blocked on full mailbox")

// ErrMalformedPayload is returned by decode when a payload does not match the
// sparse wire format, or references an index outside the destination buffer.
var ErrMalformedPayload = errors.New("malformed compressed payload")

// ErrArenaReuse is returned when a drained payload's arena chunk was
// overwritten before it could be decoded. Under the slot guard discipline this
// cannot happen; seeing it means the locking contract was violated.
var ErrArenaReuse = errors.New("arena chunk reused before decode")

// ConfigurationError reports an invalid accumulator configuration or misuse
// that can only be fixed by reconfiguring the caller. It is fatal at
// construction or at a worker's first use.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid accumulator configuration: " + e.Reason
}

// CapacityError reports a payload whose duplicated size exceeds a slot's fair
// share of the arena (ArenaBytes / QueueCapacity). This is not transient: the
// instance needs a larger arena or a smaller queue capacity.
type CapacityError struct {
	RequiredBytes  int
	AvailableBytes int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough arena memory to handle update: %d bytes required, %d bytes available per queue slot; increase ArenaBytes or decrease QueueCapacity",
		e.RequiredBytes, e.AvailableBytes)
}
