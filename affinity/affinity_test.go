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

import "testing"

// TestSingleDevice verifies the default provider's fixed answers.
func TestSingleDevice(t *testing.T) {
	var p Provider = SingleDevice{}
	if got := p.Devices(); got != 1 {
		t.Errorf("Devices() = %d, want 1", got)
	}
	if got := p.DeviceForCurrentThread(); got != 0 {
		t.Errorf("DeviceForCurrentThread() = %d, want 0", got)
	}
}

// TestCPUSetSatisfiesProvider pins the interface contract on every platform.
func TestCPUSetSatisfiesProvider(t *testing.T) {
	var p Provider = NewCPUSet(0)
	if p.Devices() < 1 {
		t.Errorf("Devices() = %d, want at least 1", p.Devices())
	}
	if d := p.DeviceForCurrentThread(); d < 0 || d >= p.Devices() {
		t.Errorf("DeviceForCurrentThread() = %d outside [0, %d)", d, p.Devices())
	}
}
