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

// This file implements the default MessageHandler: a threshold codec that
// extracts significant elements from the dense accumulation buffer into a
// sparse payload. Extracted elements are zeroed in the buffer, so the
// sub-threshold remainder keeps accumulating and rides a later broadcast.
package accumulation

import (
	"encoding/binary"
	"math"
)

// Sparse wire format, little-endian:
//
//	[count uint32] then count x ([index uint32][value float32])
const (
	payloadHeaderBytes = 4
	payloadEntryBytes  = 8
)

// EncodingHandler is the default threshold compression codec.
type EncodingHandler struct {
	threshold float32
	boundary  float64
	target    *Accumulator
}

// NewEncodingHandler returns a codec that encodes every element with
// magnitude >= threshold.
func NewEncodingHandler(threshold float64) *EncodingHandler {
	return NewEncodingHandlerWithBoundary(threshold, 1.0)
}

// NewEncodingHandlerWithBoundary additionally caps the fraction of elements
// any single payload may carry. boundary 1.0 means no limit; elements left
// behind by the cap stay in the buffer and are encoded by later broadcasts.
func NewEncodingHandlerWithBoundary(threshold, boundary float64) *EncodingHandler {
	return &EncodingHandler{
		threshold: float32(threshold),
		boundary:  boundary,
	}
}

// Initialize binds the codec to its dispatch target.
func (h *EncodingHandler) Initialize(a *Accumulator) {
	h.target = a
}

// PayloadBytes returns the encoded size of a payload carrying n entries.
func PayloadBytes(entries int) int {
	return payloadHeaderBytes + entries*payloadEntryBytes
}

// MaxPayloadBytes returns the largest payload this codec can produce for a
// buffer of n elements. Useful for sizing the arena budget against the queue
// capacity.
func (h *EncodingHandler) MaxPayloadBytes(n int) int {
	return PayloadBytes(h.MaxEntries(n))
}

// MaxEntries returns the per-payload element cap for a buffer of n elements.
func (h *EncodingHandler) MaxEntries(n int) int {
	if h.boundary >= 1.0 {
		return n
	}
	capped := int(h.boundary * float64(n))
	if capped < 1 {
		capped = 1
	}
	return capped
}

// BroadcastUpdates extracts significant elements from buf into a sparse
// payload and dispatches it to every slot. No dispatch happens when nothing
// in buf reaches the threshold.
func (h *EncodingHandler) BroadcastUpdates(buf []float32) error {
	limit := h.MaxEntries(len(buf))

	var payload []byte
	count := 0
	for i, v := range buf {
		if v < h.threshold && v > -h.threshold {
			continue
		}
		if payload == nil {
			payload = make([]byte, payloadHeaderBytes, payloadHeaderBytes+limit*payloadEntryBytes)
		}
		var entry [payloadEntryBytes]byte
		binary.LittleEndian.PutUint32(entry[0:4], uint32(i))
		binary.LittleEndian.PutUint32(entry[4:8], math.Float32bits(v))
		payload = append(payload, entry[:]...)
		buf[i] = 0
		count++
		if count == limit {
			break
		}
	}
	if count == 0 {
		return nil
	}
	binary.LittleEndian.PutUint32(payload[0:4], uint32(count))
	return h.target.ReceiveUpdate(payload)
}

// Decode adds the payload's values into dst in place.
func (h *EncodingHandler) Decode(payload []byte, dst []float32) error {
	if len(payload) < payloadHeaderBytes {
		return ErrMalformedPayload
	}
	count := int(binary.LittleEndian.Uint32(payload[0:4]))
	if len(payload) != payloadHeaderBytes+count*payloadEntryBytes {
		return ErrMalformedPayload
	}
	for k := 0; k < count; k++ {
		off := payloadHeaderBytes + k*payloadEntryBytes
		idx := int(binary.LittleEndian.Uint32(payload[off : off+4]))
		if idx >= len(dst) {
			return ErrMalformedPayload
		}
		dst[idx] += math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
	}
	return nil
}
