//go:build linux

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

import (
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CPUSet treats the first n logical CPUs as individual compute resources.
// Worker goroutines are expected to call Pin once, which locks them to an OS
// thread and binds that thread to one CPU; DeviceForCurrentThread then reads
// the running CPU back via getcpu(2), giving a stable mapping for pinned
// threads.
type CPUSet struct {
	n int
}

// NewCPUSet returns a CPUSet over min(devices, NumCPU, 64) logical CPUs.
// devices <= 0 means "all available". The 64 cap keeps the affinity masks a
// single word; larger hosts still work on their first 64 cores.
func NewCPUSet(devices int) *CPUSet {
	n := runtime.NumCPU()
	if devices > 0 && devices < n {
		n = devices
	}
	if n > 64 {
		n = 64
	}
	if n < 1 {
		n = 1
	}
	return &CPUSet{n: n}
}

// Devices returns the number of logical CPUs managed by this set.
func (c *CPUSet) Devices() int { return c.n }

// DeviceForCurrentThread returns the CPU the calling thread is currently
// running on, reduced into the set. Only meaningful for pinned threads; an
// unpinned thread gets a best-effort answer. getcpu has no stdlib syscall
// number on every architecture, so this goes through x/sys.
func (c *CPUSet) DeviceForCurrentThread() int {
	var cpu, node int
	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)),
		uintptr(unsafe.Pointer(&node)),
		0)
	if errno != 0 {
		return 0
	}
	return cpu % c.n
}

// Pin locks the calling goroutine to its OS thread and binds that thread to
// the CPU for the given worker index. Errors from sched_setaffinity are
// deliberately swallowed: on cgroup-restricted systems the call may be
// refused, and the fallback is simply no pin.
func (c *CPUSet) Pin(worker int) {
	runtime.LockOSThread()
	cpu := worker % c.n
	mask := [1]uintptr{1 << uint(cpu)}
	_, _, _ = syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY,
		0, // pid 0: current thread
		uintptr(unsafe.Sizeof(mask[0])),
		uintptr(unsafe.Pointer(&mask)))
}
