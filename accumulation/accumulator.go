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

// Package accumulation implements synchronous, compressed gradient
// accumulation for data-parallel training inside one process.
//
// A fixed number of parties (workers) share one Accumulator. Each worker
// accumulates its local delta, broadcasts a threshold-compressed payload into
// every worker's bounded mailbox, and independently drains its own mailbox to
// decode-accumulate pending payloads before applying an optimizer step. Every
// payload reaches every mailbox, including the sender's own; within one
// mailbox order is FIFO, across mailboxes no order is guaranteed because
// decode-accumulation is commutative.
package accumulation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcelomata/deeplearning4j/affinity"
	"github.com/marcelomata/deeplearning4j/internal/telemetry"
)

// Construction defaults.
const (
	DefaultThreshold      = 1e-3
	DefaultBoundary       = 1.0
	DefaultArenaBytes     = 100 * 1024 * 1024
	DefaultQueueCapacity  = 5
	DefaultBarrierTimeout = 100 * time.Millisecond
)

// StepFunc performs an in-place optimizer step using the summed updates.
type StepFunc func(params, updates []float32)

// ScaledStepFunc is a StepFunc with an additional scaling factor.
type ScaledStepFunc func(params, updates []float32, alpha float64)

// MessageHandler is the pluggable compression codec. BroadcastUpdates reads a
// worker's dense accumulation buffer, produces a compressed payload, and hands
// it to the accumulator's dispatch entry point; Decode adds a payload's values
// into dst in place, never overwriting.
type MessageHandler interface {
	// Initialize binds the handler to its accumulator. Called once from the
	// constructor, before any broadcast.
	Initialize(a *Accumulator)

	// BroadcastUpdates compresses buf and dispatches the payload via
	// Accumulator.ReceiveUpdate. It may mutate buf (extracting the encoded
	// magnitude is what keeps the residual for later cycles). Producing no
	// payload is valid when nothing in buf is significant.
	BroadcastUpdates(buf []float32) error

	// Decode adds the payload's values into dst in place.
	Decode(payload []byte, dst []float32) error
}

// Options configures Accumulator construction. The zero value of every field
// except Parties selects the documented default.
type Options struct {
	// Parties is the fixed number of parallel workers. Required, >= 1.
	Parties int

	// Threshold is the minimum magnitude an element must reach to be encoded.
	// Only used when Handler is nil. Default 1e-3.
	Threshold float64

	// Boundary caps the fraction of elements any single payload may mark
	// significant, in (0, 1]. Only used when Handler is nil. Default 1.0
	// (no limit).
	Boundary float64

	// ArenaBytes sizes each slot's payload arena. A payload's duplicated
	// size must fit within ArenaBytes/QueueCapacity. Default 100MB.
	ArenaBytes int

	// QueueCapacity bounds each slot's mailbox. Default 5.
	QueueCapacity int

	// BarrierTimeout bounds the soft barrier wait after each broadcast.
	// Default 100ms.
	BarrierTimeout time.Duration

	// Handler overrides the default threshold codec.
	Handler MessageHandler

	// Affinity overrides the default single-device resource provider.
	Affinity affinity.Provider
}

// Accumulator is the shared accumulation engine. All methods are safe for
// concurrent use by the registered worker goroutines; there is no global
// lock, concurrency is structured per slot.
type Accumulator struct {
	parties        int
	handler        MessageHandler
	provider       affinity.Provider
	slots          []*slot
	queueCapacity  int
	chunkSize      int
	barrier        *softBarrier
	barrierTimeout time.Duration

	workerCounter atomic.Int32
	workers       sync.Map // goroutine id -> *workerContext
	epoch         atomic.Uint64

	closed          atomic.Bool
	closeOnce       sync.Once
	barrierTimeouts atomic.Uint64
}

// New creates an accumulator for the given number of parties with default
// options.
func New(parties int) (*Accumulator, error) {
	return NewWithOptions(Options{Parties: parties})
}

// NewWithOptions creates and validates an accumulator with explicit options.
// Configuration errors are fatal here, never at broadcast time.
func NewWithOptions(opts Options) (*Accumulator, error) {
	if opts.Parties < 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("parties must be positive, got %d", opts.Parties)}
	}
	provider := opts.Affinity
	if provider == nil {
		provider = affinity.SingleDevice{}
	}
	// Single-device systems are the edge case where oversubscription is
	// allowed: cpu-only hosts and small models on one accelerator.
	if devices := provider.Devices(); opts.Parties > devices && devices != 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("number of parties %d exceeds number of devices %d", opts.Parties, devices)}
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("encoding threshold must be positive, got %g", threshold)}
	}
	boundary := opts.Boundary
	if boundary == 0 {
		boundary = DefaultBoundary
	}
	if boundary <= 0 || boundary > 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("boundary must be in (0, 1], got %g", boundary)}
	}
	queueCapacity := opts.QueueCapacity
	if queueCapacity == 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if queueCapacity < 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("queue capacity must be positive, got %d", queueCapacity)}
	}
	arenaBytes := opts.ArenaBytes
	if arenaBytes == 0 {
		arenaBytes = DefaultArenaBytes
	}
	chunkSize := arenaBytes / queueCapacity
	if chunkSize < 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("arena of %d bytes cannot back %d queue slots", arenaBytes, queueCapacity)}
	}
	barrierTimeout := opts.BarrierTimeout
	if barrierTimeout <= 0 {
		barrierTimeout = DefaultBarrierTimeout
	}
	handler := opts.Handler
	if handler == nil {
		handler = NewEncodingHandlerWithBoundary(threshold, boundary)
	}

	a := &Accumulator{
		parties:        opts.Parties,
		handler:        handler,
		provider:       provider,
		queueCapacity:  queueCapacity,
		chunkSize:      chunkSize,
		barrier:        newSoftBarrier(opts.Parties),
		barrierTimeout: barrierTimeout,
	}
	a.slots = make([]*slot, opts.Parties)
	for i := range a.slots {
		a.slots[i] = newSlot(queueCapacity, chunkSize)
	}
	handler.Initialize(a)
	return a, nil
}

// Parties returns the fixed number of workers this accumulator serves.
func (a *Accumulator) Parties() int { return a.parties }

// Touch registers the calling goroutine as a worker, lazily and at most once.
// With more than one device and more than one party, the worker's index is
// the device its thread is bound to; a device index outside the party range
// is a configuration mismatch and fails here, at first use. Otherwise indices
// come from an atomic post-increment of the worker counter.
//
// Subsequent calls from the same goroutine are no-ops.
func (a *Accumulator) Touch() error {
	gid := goroutineID()
	if _, ok := a.workers.Load(gid); ok {
		return nil
	}
	var idx int
	if a.provider.Devices() > 1 && a.parties > 1 {
		idx = a.provider.DeviceForCurrentThread()
		if idx < 0 || idx >= a.parties {
			return &ConfigurationError{Reason: fmt.Sprintf("device index %d for current thread is outside the party range [0, %d)", idx, a.parties)}
		}
	} else {
		idx = int(a.workerCounter.Add(1)) - 1
		if idx >= a.parties {
			return &ConfigurationError{Reason: fmt.Sprintf("worker %d registered, but accumulator was configured for %d parties", idx+1, a.parties)}
		}
	}
	a.workers.Store(gid, &workerContext{index: idx})
	return nil
}

// WorkerIndex returns the index assigned to the calling goroutine by Touch.
// It reports false when the goroutine is not registered.
func (a *Accumulator) WorkerIndex() (int, bool) {
	ctx, err := a.context()
	if err != nil {
		return 0, false
	}
	return ctx.index, true
}

// StoreUpdate accumulates delta into the calling worker's buffer, broadcasts
// a compressed payload of the buffer to every slot, and performs a soft
// barrier sync. The first call fixes the worker's buffer shape; it stays
// fixed until Reset.
//
// A barrier timeout is not an error: not every broadcast cycle requires every
// worker to have arrived. Encoder and dispatch failures propagate.
func (a *Accumulator) StoreUpdate(delta []float32) error {
	ctx, err := a.context()
	if err != nil {
		return err
	}
	epoch := a.epoch.Load()
	if ctx.buffer == nil || ctx.epoch != epoch {
		// The buffer lives outside every slot arena so cyclic reuse can
		// never alias it.
		ctx.buffer = make([]float32, len(delta))
		ctx.epoch = epoch
	}
	if len(delta) != len(ctx.buffer) {
		return &ConfigurationError{Reason: fmt.Sprintf("delta length %d does not match the accumulation buffer length %d committed by this worker", len(delta), len(ctx.buffer))}
	}
	for i, v := range delta {
		ctx.buffer[i] += v
	}

	if err := a.handler.BroadcastUpdates(ctx.buffer); err != nil {
		return err
	}

	if !a.barrier.Await(a.barrierTimeout) {
		a.barrierTimeouts.Add(1)
		telemetry.RecordBarrierTimeout()
	}
	return nil
}

// ReceiveUpdate fans one compressed payload out to every slot, the sender's
// own included. Slots are taken in fixed ascending index order; any code path
// holding more than one slot guard must use the same order.
//
// Each slot gets an independent arena-owned copy. A full mailbox blocks the
// caller (deliberate backpressure; dropping would break the aggregation
// semantics). If the accumulator is closed while blocked, the remaining
// fan-out is aborted and ErrInterruptedDispatch escalates: a partial
// broadcast must not look like success.
func (a *Accumulator) ReceiveUpdate(payload []byte) error {
	for i, s := range a.slots {
		if err := s.put(payload, &a.closed); err != nil {
			if _, ok := err.(*CapacityError); ok {
				telemetry.RecordCapacityError()
			}
			return fmt.Errorf("dispatch to slot %d failed: %w", i, err)
		}
	}
	telemetry.RecordBroadcast(len(payload))
	return nil
}

// ApplyUpdate drains the calling worker's own slot without blocking, decodes
// every pending payload into updates (summing, never overwriting), and
// invokes fn only when at least one payload was drained. It returns the
// number of payloads applied.
//
// When several payloads were pending, fn receives their raw sum, not a mean.
func (a *Accumulator) ApplyUpdate(fn StepFunc, params, updates []float32) (int, error) {
	return a.apply(params, updates, func() { fn(params, updates) })
}

// ApplyUpdateScaled is ApplyUpdate with an additional scaling factor passed
// through to the step function.
func (a *Accumulator) ApplyUpdateScaled(fn ScaledStepFunc, params, updates []float32, alpha float64) (int, error) {
	return a.apply(params, updates, func() { fn(params, updates, alpha) })
}

func (a *Accumulator) apply(params, updates []float32, step func()) (int, error) {
	ctx, err := a.context()
	if err != nil {
		return 0, err
	}
	for i := range updates {
		updates[i] = 0
	}
	drained, err := a.slots[ctx.index].drainInto(a.handler.Decode, updates)
	if err != nil {
		return drained, err
	}
	if drained > 0 {
		step()
		telemetry.RecordApply(drained)
	}
	return drained, nil
}

// GetFreeSpace returns a best-effort hint of how many more updates worker's
// mailbox can take: QueueCapacity - pending - registered workers. It is not
// race-free against concurrent producers and never fails; out-of-range
// workers report 0.
func (a *Accumulator) GetFreeSpace(worker int) int {
	if worker < 0 || worker >= a.parties {
		return 0
	}
	return a.queueCapacity - a.slots[worker].size() - int(a.workerCounter.Load())
}

// BarrierTimeouts returns the number of benign soft-barrier timeouts observed
// since construction. Timeout suppression is an inspectable outcome, not a
// discarded exception.
func (a *Accumulator) BarrierTimeouts() uint64 {
	return a.barrierTimeouts.Load()
}

// Reset clears transient state so one instance can serve independent runs:
// every worker's accumulation buffer is dropped (reallocated lazily on next
// use), the worker counter restarts at zero, and every mailbox is emptied.
// Arenas, guards, queue capacity and arena budget are untouched.
func (a *Accumulator) Reset() {
	a.epoch.Add(1)
	a.workerCounter.Store(0)
	for _, s := range a.slots {
		s.clear()
	}
}

// Close marks the accumulator closed and wakes every producer blocked on a
// full mailbox so it can fail with ErrInterruptedDispatch. Idempotent.
func (a *Accumulator) Close() {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		for _, s := range a.slots {
			s.wake()
		}
	})
}

func (a *Accumulator) context() (*workerContext, error) {
	v, ok := a.workers.Load(goroutineID())
	if !ok {
		return nil, &ConfigurationError{Reason: "calling goroutine is not a registered worker; call Touch first"}
	}
	return v.(*workerContext), nil
}
