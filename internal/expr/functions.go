/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"fmt"
	"sort"
	"sync"

	"goinstruct/internal/vars"
)

// Func is a native function callable from script text.
// Arguments arrive already resolved by the active Strategy.
type Func func(args ...any) (any, error)

// Functions is the closed registry of named native functions.
// It is safe for concurrent use.
type Functions struct {
	mu sync.RWMutex
	m  map[string]Func
}

// NewFunctions returns a registry pre-populated with the built-ins
// (add, difference, toPercent).
func NewFunctions() *Functions {
	f := &Functions{m: map[string]Func{}}
	f.Register("add", add)
	f.Register("difference", difference)
	f.Register("toPercent", toPercent)
	return f
}

// Register adds or replaces a function.
func (f *Functions) Register(name string, fn Func) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = fn
}

// Lookup returns the function registered under name.
func (f *Functions) Lookup(name string) (Func, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.m[name]
	return fn, ok
}

// Names returns registered names in sorted order.
func (f *Functions) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.m))
	for k := range f.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// add sums numeric arguments; if any argument is not numeric the
// formatted arguments are concatenated instead.
func add(args ...any) (any, error) {
	sum := 0.0
	for _, a := range args {
		n, ok := vars.Number(a)
		if !ok {
			return concat(args), nil
		}
		sum += n
	}
	return sum, nil
}

func concat(args []any) string {
	s := ""
	for _, a := range args {
		s += vars.Format(a)
	}
	return s
}

func difference(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("difference: want 2 arguments, got %d", len(args))
	}
	a, okA := vars.Number(args[0])
	b, okB := vars.Number(args[1])
	if !okA || !okB {
		return nil, fmt.Errorf("difference: non-numeric arguments %v, %v", args[0], args[1])
	}
	return a - b, nil
}

func toPercent(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("toPercent: want 1 argument, got %d", len(args))
	}
	n, ok := vars.Number(args[0])
	if !ok {
		return nil, fmt.Errorf("toPercent: non-numeric argument %v", args[0])
	}
	return n * 100, nil
}
