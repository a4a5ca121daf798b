//go:build !linux

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

package affinity

import "runtime"

// CPUSet degrades to a single shared resource on platforms without
// sched_setaffinity. Oversubscription on one device is the normal
// single-resource path, so behavior stays correct, just unpinned.
type CPUSet struct {
	n int
}

// NewCPUSet returns a single-device set; the devices argument is ignored.
func NewCPUSet(devices int) *CPUSet {
	_ = devices
	return &CPUSet{n: 1}
}

// Devices returns 1 on non-Linux platforms.
func (c *CPUSet) Devices() int { return c.n }

// DeviceForCurrentThread always returns 0 on non-Linux platforms.
func (c *CPUSet) DeviceForCurrentThread() int { return 0 }

// Pin only locks the goroutine to its OS thread; there is no portable way to
// bind the thread to a CPU here.
func (c *CPUSet) Pin(worker int) {
	_ = worker
	runtime.LockOSThread()
}
