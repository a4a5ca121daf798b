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
	"testing"
	"time"
)

// TestSoftBarrier_ReleasesOnFullGeneration verifies that the barrier releases
// every waiter once the configured number of arrivals is reached, and that
// the next generation starts clean.
func TestSoftBarrier_ReleasesOnFullGeneration(t *testing.T) {
	b := newSoftBarrier(3)

	for gen := 0; gen < 2; gen++ {
		var wg sync.WaitGroup
		results := make([]bool, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = b.Await(5 * time.Second)
			}(i)
		}
		wg.Wait()
		for i, released := range results {
			if !released {
				t.Fatalf("generation %d waiter %d timed out, want release", gen, i)
			}
		}
	}
}

// TestSoftBarrier_TimeoutIsBenign verifies that an incomplete generation
// times out with released=false instead of blocking or failing.
func TestSoftBarrier_TimeoutIsBenign(t *testing.T) {
	b := newSoftBarrier(2)
	start := time.Now()
	if b.Await(20 * time.Millisecond) {
		t.Fatal("lone waiter reported release, want timeout")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Await returned after %s, before the bounded wait elapsed", elapsed)
	}
}

// TestSoftBarrier_TimedOutArrivalIsWithdrawn verifies that a timed-out waiter
// takes its arrival back with it: a later lone arrival finds an empty
// generation and times out too, instead of being released by the ghost of the
// first.
func TestSoftBarrier_TimedOutArrivalIsWithdrawn(t *testing.T) {
	b := newSoftBarrier(2)
	if b.Await(time.Millisecond) {
		t.Fatal("first arrival released alone")
	}
	if b.Await(20 * time.Millisecond) {
		t.Fatal("second lone arrival released, want timeout")
	}

	// Two live waiters still complete a generation.
	done := make(chan bool, 1)
	go func() { done <- b.Await(5 * time.Second) }()
	if !b.Await(5 * time.Second) {
		t.Fatal("full generation did not release this waiter")
	}
	if !<-done {
		t.Fatal("full generation did not release the peer")
	}
}

// TestBarrierTimeoutsAreCountedNotRaised verifies that StoreUpdate swallows
// barrier timeouts but records them as an inspectable outcome.
func TestBarrierTimeoutsAreCountedNotRaised(t *testing.T) {
	a, err := NewWithOptions(Options{Parties: 2, BarrierTimeout: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	asWorker(t, a, func(t *testing.T) {
		// The second party never arrives, so every broadcast times out.
		for i := 0; i < 3; i++ {
			if err := a.StoreUpdate(ones(4)); err != nil {
				t.Fatalf("StoreUpdate with absent peers failed: %v", err)
			}
		}
	})
	if got := a.BarrierTimeouts(); got != 3 {
		t.Errorf("BarrierTimeouts() = %d, want 3", got)
	}
}
