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
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis under "ckpt:<key>". A TTL guards
// against unbounded growth of abandoned runs; choose a duration comfortably
// larger than the gap between runs.
type RedisStore struct {
	c   *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to addr ("127.0.0.1:6379" style). ttl <= 0 selects
// a 7-day default.
func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{c: redis.NewClient(&redis.Options{Addr: addr}), ttl: ttl}
}

func redisKey(key string) string { return fmt.Sprintf("ckpt:%s", key) }

// Save writes the snapshot blob with the store's TTL.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	return s.c.Set(ctx, redisKey(key), data, s.ttl).Err()
}

// Load fetches a snapshot blob, mapping a missing key to ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.c.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes a snapshot. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.c.Del(ctx, redisKey(key)).Err()
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error { return s.c.Close() }

// MemStore is an in-memory Store for tests and demos.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Save stores a copy of data.
func (s *MemStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	return nil
}

// Load returns a copy of the stored blob or ErrNotFound.
func (s *MemStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete removes a blob; missing keys are not an error.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
