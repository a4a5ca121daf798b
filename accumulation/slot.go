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

// This file implements a single worker's mailbox: a bounded FIFO of compressed
// payloads backed by a cyclically reused slab arena. One guard (mutex + cond)
// covers the arena copy and the enqueue as a single atomic unit, and the drain
// side decodes under the same guard, so a chunk can never be overwritten while
// a consumer still reads it.
package accumulation

import (
	"sync"
	"sync/atomic"
)

// payloadRef points at an arena chunk holding one enqueued payload. gen is the
// chunk's generation at enqueue time; a mismatch at drain time means the chunk
// was reclaimed early.
type payloadRef struct {
	chunk int
	size  int
	gen   uint64
}

// slot is one worker's mailbox. Producers are any broadcasting workers; the
// consumer is the single worker that owns the slot index.
//
// The arena is a slab split into exactly queue-capacity chunks. An enqueue
// always writes the chunk at cursor and advances it, and an enqueue only
// proceeds while count < capacity, so the chunk at cursor is never referenced
// by a queued payload.
type slot struct {
	mu      sync.Mutex
	notFull sync.Cond

	queue []payloadRef // ring, len == queue capacity
	head  int
	count int

	arena  []byte // chunkSize * capacity bytes
	gens   []uint64
	cursor int

	chunkSize int
}

func newSlot(capacity, chunkSize int) *slot {
	s := &slot{
		queue:     make([]payloadRef, capacity),
		arena:     make([]byte, capacity*chunkSize),
		gens:      make([]uint64, capacity),
		chunkSize: chunkSize,
	}
	s.notFull.L = &s.mu
	return s
}

func (s *slot) chunk(i int) []byte {
	return s.arena[i*s.chunkSize : (i+1)*s.chunkSize]
}

// put copies payload into arena memory and enqueues it. It blocks while the
// queue is full (deliberate backpressure; dropping is disallowed because every
// slot must see every payload). closed aborts the wait: an interrupted enqueue
// is fatal for the whole broadcast.
func (s *slot) put(payload []byte, closed *atomic.Bool) error {
	if len(payload) > s.chunkSize {
		return &CapacityError{RequiredBytes: len(payload), AvailableBytes: s.chunkSize}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.count == len(s.queue) {
		if closed.Load() {
			return ErrInterruptedDispatch
		}
		s.notFull.Wait()
	}
	if closed.Load() {
		return ErrInterruptedDispatch
	}

	c := s.cursor
	copy(s.chunk(c), payload)
	s.gens[c]++
	s.cursor = (c + 1) % len(s.queue)

	tail := (s.head + s.count) % len(s.queue)
	s.queue[tail] = payloadRef{chunk: c, size: len(payload), gen: s.gens[c]}
	s.count++
	return nil
}

// drainInto pops every pending payload and decodes it into dst via decode,
// returning the number of payloads drained. Decoding happens under the guard:
// releasing it between pop and decode would let a producer's cyclic write
// overwrite the chunk being read.
func (s *slot) drainInto(decode func(payload []byte, dst []float32) error, dst []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := 0
	for s.count > 0 {
		ref := s.queue[s.head]
		s.head = (s.head + 1) % len(s.queue)
		s.count--
		s.notFull.Signal()

		if ref.gen != s.gens[ref.chunk] {
			return drained, ErrArenaReuse
		}
		if err := decode(s.chunk(ref.chunk)[:ref.size], dst); err != nil {
			return drained, err
		}
		drained++
	}
	return drained, nil
}

// size reports the number of pending payloads. Racy against concurrent
// producers; callers treat it as a hint.
func (s *slot) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// clear discards all pending payloads without decoding them. The arena and the
// guard are untouched.
func (s *slot) clear() {
	s.mu.Lock()
	s.head = 0
	s.count = 0
	s.notFull.Broadcast()
	s.mu.Unlock()
}

// wake releases any producer blocked in put so it can observe the closed flag.
func (s *slot) wake() {
	s.mu.Lock()
	s.notFull.Broadcast()
	s.mu.Unlock()
}
