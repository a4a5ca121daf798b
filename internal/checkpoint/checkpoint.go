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

// Package checkpoint persists parameter vectors across independent training
// runs that share one accumulator instance. Snapshots are self-checking: a
// trailing FNV-1a digest catches truncated or corrupted blobs before they can
// poison a run.
package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
)

// ErrNotFound is returned by Store.Load when no snapshot exists for the key.
var ErrNotFound = errors.New("checkpoint not found")

// ErrCorrupt is returned when a snapshot fails its checksum or framing check.
var ErrCorrupt = errors.New("checkpoint corrupt")

// Store is the minimal persistence surface. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Snapshot wire format, little-endian:
//
//	[n uint32] [n x float32] [fnv64a over the preceding bytes]
const (
	headerBytes = 4
	sumBytes    = 8
)

// Marshal encodes params into a checksummed snapshot blob.
func Marshal(params []float32) []byte {
	out := make([]byte, headerBytes+4*len(params)+sumBytes)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(params)))
	for i, v := range params {
		binary.LittleEndian.PutUint32(out[headerBytes+4*i:], math.Float32bits(v))
	}
	body := out[:len(out)-sumBytes]
	h := fnv.New64a()
	_, _ = h.Write(body)
	binary.LittleEndian.PutUint64(out[len(out)-sumBytes:], h.Sum64())
	return out
}

// Unmarshal decodes a snapshot blob, verifying framing and checksum.
func Unmarshal(data []byte) ([]float32, error) {
	if len(data) < headerBytes+sumBytes {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	if len(data) != headerBytes+4*n+sumBytes {
		return nil, fmt.Errorf("%w: header declares %d params, blob holds %d bytes", ErrCorrupt, n, len(data))
	}
	body := data[:len(data)-sumBytes]
	h := fnv.New64a()
	_, _ = h.Write(body)
	if h.Sum64() != binary.LittleEndian.Uint64(data[len(data)-sumBytes:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	params := make([]float32, n)
	for i := range params {
		params[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[headerBytes+4*i:]))
	}
	return params, nil
}

// SaveParams marshals and stores params under key.
func SaveParams(ctx context.Context, s Store, key string, params []float32) error {
	return s.Save(ctx, key, Marshal(params))
}

// LoadParams fetches and decodes the params stored under key.
func LoadParams(ctx context.Context, s Store, key string) ([]float32, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
