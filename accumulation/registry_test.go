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
)

// TestGoroutineID_StablePerGoroutine verifies that the identity key is stable
// within a goroutine and distinct across goroutines.
func TestGoroutineID_StablePerGoroutine(t *testing.T) {
	if a, b := goroutineID(), goroutineID(); a != b {
		t.Fatalf("goroutineID unstable within one goroutine: %d then %d", a, b)
	}

	self := goroutineID()
	ids := make(map[uint64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := goroutineID()
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != 8 {
		t.Errorf("expected 8 distinct goroutine ids, got %d", len(ids))
	}
	if ids[self] {
		t.Error("a spawned goroutine shares the test goroutine's id")
	}
}

// TestRegistry_DistinctWorkersGetDistinctIndices verifies sequential index
// assignment across worker goroutines on the counter path.
func TestRegistry_DistinctWorkersGetDistinctIndices(t *testing.T) {
	a, err := NewWithOptions(testOptions(4))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	indices := make(chan int, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Touch(); err != nil {
				t.Errorf("Touch failed: %v", err)
				return
			}
			idx, ok := a.WorkerIndex()
			if !ok {
				t.Error("WorkerIndex not found after Touch")
				return
			}
			indices <- idx
		}()
	}
	wg.Wait()
	close(indices)

	seen := make(map[int]bool)
	for idx := range indices {
		if idx < 0 || idx >= 4 {
			t.Errorf("index %d outside [0, 4)", idx)
		}
		if seen[idx] {
			t.Errorf("index %d assigned twice", idx)
		}
		seen[idx] = true
	}
	if len(seen) != 4 {
		t.Errorf("got %d distinct indices, want 4", len(seen))
	}
}

// TestRegistry_ExcessWorkersRejected verifies the loud failure when more
// goroutines register than the accumulator has parties.
func TestRegistry_ExcessWorkersRejected(t *testing.T) {
	a, err := NewWithOptions(testOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.Touch()
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, errCount int
	for err := range errs {
		if err == nil {
			okCount++
		} else {
			errCount++
		}
	}
	if okCount != 1 || errCount != 1 {
		t.Errorf("got %d registrations and %d rejections for 1 party, want 1 and 1", okCount, errCount)
	}
}
