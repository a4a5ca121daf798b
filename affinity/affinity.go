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

// Package affinity abstracts the mapping of worker threads to compute
// resources. Single-resource deployments (CPU-only, or a single accelerator)
// are a normal configuration path, not a special case: the default provider
// reports exactly one device and permits oversubscription.
package affinity

// Provider exposes the resource count and a stable thread-to-resource mapping.
// The accumulator uses it to validate the party count at construction and to
// assign worker indices when more than one device exists.
type Provider interface {
	// Devices returns the number of available compute resources, at least 1.
	Devices() int

	// DeviceForCurrentThread returns the resource index the calling thread is
	// bound to, in [0, Devices()). For a single-device provider this is
	// always 0.
	DeviceForCurrentThread() int
}

// SingleDevice is the default Provider: one compute resource, every thread
// mapped to it. Worker indices then come from the accumulator's counter.
type SingleDevice struct{}

// Devices always returns 1.
func (SingleDevice) Devices() int { return 1 }

// DeviceForCurrentThread always returns 0.
func (SingleDevice) DeviceForCurrentThread() int { return 0 }
