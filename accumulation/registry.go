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

// This file implements the worker registry: an explicit per-worker context
// keyed by goroutine identity, assigned lazily and at most once per worker
// goroutine by Touch.
package accumulation

import "runtime"

// workerContext holds the state that would otherwise live in implicit
// thread-local storage.
//
// buffer lives outside any slot arena so cyclic reuse can never touch it. Its
// shape is fixed by the first delta seen and stays fixed until the next reset.
// epoch snapshots the accumulator's reset epoch at allocation time; a stale
// epoch makes StoreUpdate reallocate lazily, which is how Reset drops every
// worker's buffer without synchronizing with the owning goroutines.
//
// Only the owning goroutine reads or writes buffer and epoch.
type workerContext struct {
	index  int
	buffer []float32
	epoch  uint64
}

// goroutineID extracts the current goroutine's id from the stack header
// ("goroutine N [running]:"). Keyed registries are the testable replacement
// for thread-local storage; the header format has been stable across Go
// releases.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Skip "goroutine " and read digits until the following space.
	var id uint64
	for _, c := range buf[10:n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
