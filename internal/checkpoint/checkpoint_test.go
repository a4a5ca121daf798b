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

package checkpoint

import (
	"context"
	"errors"
	"testing"
)

// TestMarshalUnmarshal_Roundtrip verifies a snapshot survives the codec,
// including the empty vector.
func TestMarshalUnmarshal_Roundtrip(t *testing.T) {
	tests := []struct {
		name   string
		params []float32
	}{
		{"Empty", []float32{}},
		{"Single", []float32{3.25}},
		{"Vector", []float32{0, -1.5, 2.25, 1e-7, -1e7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal(Marshal(tt.params))
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if len(got) != len(tt.params) {
				t.Fatalf("got %d params, want %d", len(got), len(tt.params))
			}
			for i := range got {
				if got[i] != tt.params[i] {
					t.Errorf("params[%d] = %v, want %v", i, got[i], tt.params[i])
				}
			}
		})
	}
}

// TestUnmarshal_RejectsCorruption verifies that damaged blobs surface
// ErrCorrupt instead of decoding garbage.
func TestUnmarshal_RejectsCorruption(t *testing.T) {
	good := Marshal([]float32{1, 2, 3})

	t.Run("TooShort", func(t *testing.T) {
		if _, err := Unmarshal(good[:5]); !errors.Is(err, ErrCorrupt) {
			t.Errorf("got %v, want ErrCorrupt", err)
		}
	})

	t.Run("TruncatedBody", func(t *testing.T) {
		if _, err := Unmarshal(good[:len(good)-4]); !errors.Is(err, ErrCorrupt) {
			t.Errorf("got %v, want ErrCorrupt", err)
		}
	})

	t.Run("FlippedBit", func(t *testing.T) {
		bad := make([]byte, len(good))
		copy(bad, good)
		bad[6] ^= 0x01
		if _, err := Unmarshal(bad); !errors.Is(err, ErrCorrupt) {
			t.Errorf("got %v, want ErrCorrupt", err)
		}
	})

	t.Run("LyingHeader", func(t *testing.T) {
		bad := make([]byte, len(good))
		copy(bad, good)
		bad[0] = 200
		if _, err := Unmarshal(bad); !errors.Is(err, ErrCorrupt) {
			t.Errorf("got %v, want ErrCorrupt", err)
		}
	})
}

// TestMemStore verifies the in-memory Store: CRUD, isolation of stored
// copies, and ErrNotFound on missing keys.
func TestMemStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load of missing key: got %v, want ErrNotFound", err)
	}

	blob := []byte{1, 2, 3}
	if err := s.Save(ctx, "run", blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	blob[0] = 99 // caller's buffer must not alias the stored copy

	got, err := s.Load(ctx, "run")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got[0] != 1 || len(got) != 3 {
		t.Errorf("Load returned %v, want [1 2 3]", got)
	}
	got[1] = 99
	if again, _ := s.Load(ctx, "run"); again[1] != 2 {
		t.Error("mutating a loaded blob leaked into the store")
	}

	if err := s.Delete(ctx, "run"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Load(ctx, "run"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "run"); err != nil {
		t.Errorf("Delete of missing key: got %v, want nil", err)
	}
}

// TestSaveLoadParams exercises the convenience helpers end to end over a
// MemStore.
func TestSaveLoadParams(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	params := []float32{0.5, -0.25, 4096}
	if err := SaveParams(ctx, s, "epoch-3", params); err != nil {
		t.Fatalf("SaveParams failed: %v", err)
	}

	got, err := LoadParams(ctx, s, "epoch-3")
	if err != nil {
		t.Fatalf("LoadParams failed: %v", err)
	}
	for i := range params {
		if got[i] != params[i] {
			t.Errorf("params[%d] = %v, want %v", i, got[i], params[i])
		}
	}

	if _, err := LoadParams(ctx, s, "epoch-4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadParams of missing key: got %v, want ErrNotFound", err)
	}
}
