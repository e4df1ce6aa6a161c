/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package vars implements the variable store that scripts read and write.
// Values are addressed with dotted/bracketed paths such as "a.b[0].c" (same as "a.b.0.c").
// The path grammar is bounded to mapping keys and sequence indexes; no reflection is used.
package vars

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Resolver lets a live collaborator (e.g. a session client) expose nested
// values and methods to path lookup without being copied into the store.
type Resolver interface {
	Lookup(key string) (any, bool)
}

// Store is a mutable mapping from variable name to value. Keys are never removed.
// It is safe for concurrent use; writes are expected from a single goroutine.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns a store seeded with a shallow copy of seed.
func New(seed map[string]any) *Store {
	s := &Store{values: make(map[string]any, len(seed))}
	s.Seed(seed)
	return s
}

// Seed merges top-level entries into the store, overwriting existing keys.
func (s *Store) Seed(seed map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range seed {
		s.values[k] = v
	}
}

var reIndex = regexp.MustCompile(`\[(\w+)\]`)

// Segments normalizes a path into its segments: bracket indexes become
// dotted segments and a leading dot is stripped.
func Segments(path string) []string {
	p := reIndex.ReplaceAllString(strings.TrimSpace(path), ".$1")
	p = strings.TrimPrefix(p, ".")
	return strings.Split(p, ".")
}

// Lookup resolves path against the store. It returns (nil, false) as soon as a
// segment is absent; there are no partial results.
func (s *Store) Lookup(path string) (any, bool) {
	segs := Segments(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.values[segs[0]]
	if !ok {
		return nil, false
	}
	for _, seg := range segs[1:] {
		cur, ok = Child(cur, seg)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Child resolves one path segment below v.
func Child(v any, key string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		c, ok := t[key]
		return c, ok
	case map[string]string:
		c, ok := t[key]
		return c, ok
	case []any:
		if i, ok := index(key, len(t)); ok {
			return t[i], true
		}
	case []string:
		if i, ok := index(key, len(t)); ok {
			return t[i], true
		}
	case []float64:
		if i, ok := index(key, len(t)); ok {
			return t[i], true
		}
	case []map[string]any:
		if i, ok := index(key, len(t)); ok {
			return t[i], true
		}
	case Resolver:
		return t.Lookup(key)
	}
	return nil, false
}

func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// ErrNotWritable is returned when a path cannot be written without
// discarding an existing value.
var ErrNotWritable = errors.New("path not writable")

// Set stores v under path. Dotted paths write through existing maps and
// slices and create missing maps. Existing data is never replaced by a new
// container: a scalar or Resolver in the way, an index out of range or a
// value of the wrong type for a typed container is an ErrNotWritable.
func (s *Store) Set(path string, v any) error {
	segs := Segments(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(segs) == 1 {
		s.values[segs[0]] = v
		return nil
	}
	cur, ok := s.values[segs[0]]
	if !ok {
		cur = map[string]any{}
		s.values[segs[0]] = cur
	}
	if !container(cur) {
		return fmt.Errorf("%w: %s is not a container", ErrNotWritable, segs[0])
	}
	for i, seg := range segs[1 : len(segs)-1] {
		if m, ok := cur.(map[string]any); ok {
			if _, exists := m[seg]; !exists {
				m[seg] = map[string]any{}
			}
		}
		next, ok := Child(cur, seg)
		if !ok || !container(next) {
			return fmt.Errorf("%w: %s is not a container", ErrNotWritable, strings.Join(segs[:i+2], "."))
		}
		cur = next
	}
	if err := assign(cur, segs[len(segs)-1], v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotWritable, path, err)
	}
	return nil
}

// container reports whether assign can write into v.
func container(v any) bool {
	switch v.(type) {
	case map[string]any, map[string]string, []any, []string, []float64, []map[string]any:
		return true
	}
	return false
}

func assign(c any, key string, v any) error {
	switch t := c.(type) {
	case map[string]any:
		t[key] = v
		return nil
	case map[string]string:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%T value into string map", v)
		}
		t[key] = str
		return nil
	case []any:
		i, ok := index(key, len(t))
		if !ok {
			return fmt.Errorf("index %s out of range [0,%d)", key, len(t))
		}
		t[i] = v
		return nil
	case []string:
		i, ok := index(key, len(t))
		str, isStr := v.(string)
		if !ok || !isStr {
			return fmt.Errorf("index %s of %d strings with %T", key, len(t), v)
		}
		t[i] = str
		return nil
	case []float64:
		i, ok := index(key, len(t))
		f, isNum := Number(v)
		if !ok || !isNum {
			return fmt.Errorf("index %s of %d numbers with %T", key, len(t), v)
		}
		t[i] = f
		return nil
	}
	return fmt.Errorf("cannot write into %T", c)
}

// Keys returns the sorted top-level keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a shallow copy of the top-level mapping.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
