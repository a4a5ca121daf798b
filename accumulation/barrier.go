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
	"sync"
	"time"
)

// softBarrier is a cyclic barrier with a bounded, non-fatal wait. It releases
// a generation when the configured number of arrivals is waiting at once; a
// waiter that times out withdraws its arrival, so a worker broadcasting alone
// times out on every cycle instead of completing a generation by itself.
type softBarrier struct {
	mu      sync.Mutex
	parties int
	count   int
	release chan struct{}
}

func newSoftBarrier(parties int) *softBarrier {
	return &softBarrier{
		parties: parties,
		release: make(chan struct{}),
	}
}

// Await registers an arrival and waits up to timeout for the current
// generation to complete. It returns true when the barrier released and false
// on timeout. Timing out is a benign outcome: not every broadcast cycle
// requires every worker to have arrived.
func (b *softBarrier) Await(timeout time.Duration) bool {
	b.mu.Lock()
	b.count++
	ch := b.release
	if b.count == b.parties {
		// Last arrival: release this generation and start the next one.
		b.count = 0
		b.release = make(chan struct{})
		close(ch)
		b.mu.Unlock()
		return true
	}
	b.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-ch:
		// Released between the timer firing and reacquiring the lock.
		return true
	default:
	}
	// Withdraw this arrival so the still-open generation only completes with
	// the full complement of live waiters.
	b.count--
	return false
}
