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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcelomata/deeplearning4j/accumulation"
	"github.com/marcelomata/deeplearning4j/affinity"
	"github.com/marcelomata/deeplearning4j/internal/checkpoint"
	"github.com/marcelomata/deeplearning4j/internal/telemetry"
)

func main() {
	// In plain words (what this tool does):
	//   - accum-sim runs N data-parallel workers against one shared
	//     gradients accumulator. Each worker fabricates a noisy gradient,
	//     broadcasts its threshold-compressed form into every worker's
	//     mailbox, then drains its own mailbox and applies an SGD step.
	//   - All workers therefore descend on the same parameter vector using
	//     the combined (thresholded) view of everyone's gradients, without a
	//     blocking full exchange per step.
	//
	// What to look for:
	//   - The parameter norm shrinking towards zero (the synthetic loss pulls
	//     params to the origin).
	//   - Barrier timeouts staying low when workers run in lockstep.
	//   - With -metrics, payload sizes and broadcast counts on /metrics.
	//   - With -redis, the final params survive to seed the next run.
	var (
		parties   = flag.Int("parties", 4, "number of parallel workers")
		dim       = flag.Int("dim", 4096, "parameter vector dimension")
		steps     = flag.Int("steps", 200, "training steps per worker")
		threshold = flag.Float64("threshold", 1e-3, "encoding threshold (minimum significant magnitude)")
		boundary  = flag.Float64("boundary", 1.0, "max fraction of elements per payload, in (0,1]")
		queueCap  = flag.Int("queue", accumulation.DefaultQueueCapacity, "per-slot mailbox capacity")
		arenaMB   = flag.Int("arena", 100, "per-slot arena budget in MB")
		lr        = flag.Float64("lr", 0.05, "SGD learning rate")
		pin       = flag.Bool("pin", false, "pin worker goroutines to CPUs")
		metrics   = flag.String("metrics", "", "Prometheus /metrics listen address, e.g. :9090 (empty = off)")
		redisAddr = flag.String("redis", "", "Redis address for run checkpoints (empty = off)")
		runID     = flag.String("run", "accum-sim", "checkpoint key for this run lineage")
		seed      = flag.Int64("seed", 42, "base RNG seed")
	)
	flag.Parse()

	if *metrics != "" {
		telemetry.Enable(telemetry.Config{Enabled: true, MetricsAddr: *metrics})
	}

	acc, err := accumulation.NewWithOptions(accumulation.Options{
		Parties:       *parties,
		Threshold:     *threshold,
		Boundary:      *boundary,
		QueueCapacity: *queueCap,
		ArenaBytes:    *arenaMB * 1024 * 1024,
	})
	if err != nil {
		log.Fatalf("accumulator configuration rejected: %v", err)
	}
	defer acc.Close()

	// Shared model parameters. The synthetic gradient of each worker points
	// towards its local params plus noise, so SGD drives the norm down.
	params := make([]float32, *dim)
	for i := range params {
		params[i] = 1.0
	}
	if *redisAddr != "" {
		store := checkpoint.NewRedisStore(*redisAddr, 0)
		defer store.Close()
		restored, err := checkpoint.LoadParams(context.Background(), store, *runID)
		switch {
		case err == nil && len(restored) == *dim:
			params = restored
			fmt.Printf("restored checkpoint %q (norm %.4f)\n", *runID, norm(params))
		case errors.Is(err, checkpoint.ErrNotFound):
			fmt.Printf("no checkpoint %q yet, starting fresh\n", *runID)
		case err != nil:
			log.Fatalf("checkpoint load failed: %v", err)
		default:
			fmt.Printf("checkpoint %q has dimension %d, ignoring\n", *runID, len(restored))
		}
		defer func() {
			if err := checkpoint.SaveParams(context.Background(), store, *runID, params); err != nil {
				log.Printf("checkpoint save failed: %v", err)
			} else {
				fmt.Printf("saved checkpoint %q\n", *runID)
			}
		}()
	}

	var cpus *affinity.CPUSet
	if *pin {
		cpus = affinity.NewCPUSet(0)
	}

	sgd := func(p, updates []float32, alpha float64) {
		for i := range p {
			p[i] -= float32(alpha) * updates[i]
		}
	}

	var (
		paramsMu    sync.Mutex
		stepsTotal  atomic.Int64
		appliedTot  atomic.Int64
		failures    atomic.Int64
		wg          sync.WaitGroup
		start       = time.Now()
		applyBuffer = func() []float32 { return make([]float32, *dim) }
	)

	for w := 0; w < *parties; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			if cpus != nil {
				cpus.Pin(w)
			}
			if err := acc.Touch(); err != nil {
				failures.Add(1)
				log.Printf("worker %d: %v", w, err)
				return
			}
			rng := rand.New(rand.NewSource(*seed + int64(w)))
			grad := make([]float32, *dim)
			updates := applyBuffer()

			for step := 0; step < *steps; step++ {
				paramsMu.Lock()
				for i := range grad {
					grad[i] = params[i] + float32(rng.NormFloat64())*0.01
				}
				paramsMu.Unlock()

				if err := acc.StoreUpdate(grad); err != nil {
					failures.Add(1)
					log.Printf("worker %d step %d: broadcast failed: %v", w, step, err)
					return
				}

				paramsMu.Lock()
				applied, err := acc.ApplyUpdateScaled(sgd, params, updates, *lr/float64(*parties))
				paramsMu.Unlock()
				if err != nil {
					failures.Add(1)
					log.Printf("worker %d step %d: apply failed: %v", w, step, err)
					return
				}
				appliedTot.Add(int64(applied))
				stepsTotal.Add(1)
			}
		}(w)
	}
	wg.Wait()

	fmt.Println("--- accum-sim summary ---")
	fmt.Printf("parties=%d dim=%d steps/worker=%d elapsed=%s\n", *parties, *dim, *steps, time.Since(start).Round(time.Millisecond))
	fmt.Printf("worker steps:       %d\n", stepsTotal.Load())
	fmt.Printf("payloads applied:   %d\n", appliedTot.Load())
	fmt.Printf("barrier timeouts:   %d\n", acc.BarrierTimeouts())
	fmt.Printf("parameter norm:     %.6f\n", norm(params))
	if failures.Load() > 0 {
		fmt.Printf("worker failures:    %d\n", failures.Load())
		os.Exit(1)
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
