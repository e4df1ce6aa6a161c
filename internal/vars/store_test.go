/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vars

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type fakeClient struct{ fields map[string]any }

func (f *fakeClient) Lookup(key string) (any, bool) {
	v, ok := f.fields[key]
	return v, ok
}

func TestLookupNestedPaths(t *testing.T) {
	s := New(map[string]any{
		"a": map[string]any{"b": []any{10.0, 20.0}},
	})
	v, ok := s.Lookup("a.b[1]")
	if !ok || v != 20.0 {
		t.Fatalf("a.b[1] = %v, %v; want 20", v, ok)
	}
	v, ok = s.Lookup("a.b.0")
	if !ok || v != 10.0 {
		t.Fatalf("a.b.0 = %v, %v; want 10", v, ok)
	}
	if v, ok := s.Lookup("a.c"); ok || v != nil {
		t.Fatalf("a.c should not resolve, got %v", v)
	}
	if _, ok := s.Lookup("a.b[5]"); ok {
		t.Fatalf("out of range index should not resolve")
	}
	if _, ok := s.Lookup("a.b.x"); ok {
		t.Fatalf("non-numeric index should not resolve")
	}
	if _, ok := s.Lookup(".a.b[0]"); !ok {
		t.Fatalf("leading dot should be stripped")
	}
	if _, ok := s.Lookup("missing.deep.path"); ok {
		t.Fatalf("missing root should not resolve")
	}
}

func TestLookupThroughResolver(t *testing.T) {
	client := &fakeClient{fields: map[string]any{"status": map[string]any{"budget": 30.0}}}
	s := New(map[string]any{"client": client})
	v, ok := s.Lookup("client.status.budget")
	if !ok || v != 30.0 {
		t.Fatalf("client.status.budget = %v, %v", v, ok)
	}
	if _, ok := s.Lookup("client.nope"); ok {
		t.Fatalf("resolver miss should not resolve")
	}
}

func TestSetCreatesNestedMaps(t *testing.T) {
	s := New(nil)
	s.Set("x", 5.0)
	s.Set("player.score.total", 12.0)
	s.Set("player.name", "Sam")
	if v, _ := s.Lookup("x"); v != 5.0 {
		t.Fatalf("x = %v", v)
	}
	if v, _ := s.Lookup("player.score.total"); v != 12.0 {
		t.Fatalf("player.score.total = %v", v)
	}
	if v, _ := s.Lookup("player.name"); v != "Sam" {
		t.Fatalf("player.name = %v", v)
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"player", "x"}) {
		t.Fatalf("Keys = %v", got)
	}
}

func TestSetWritesThroughExistingContainers(t *testing.T) {
	client := &fakeClient{fields: map[string]any{"budget": 30.0}}
	s := New(map[string]any{
		"a":      []any{10.0, 20.0},
		"tr":     map[string]string{"hi": "Hallo"},
		"rows":   []any{map[string]any{"n": 1.0}},
		"client": client,
		"count":  3.0,
	})
	if err := s.Set("a[1]", 5.0); err != nil {
		t.Fatalf("set a[1]: %v", err)
	}
	if v, ok := s.Lookup("a[0]"); !ok || v != 10.0 {
		t.Fatalf("a[0] = %v, %v; sibling lost", v, ok)
	}
	if v, _ := s.Lookup("a[1]"); v != 5.0 {
		t.Fatalf("a[1] = %v", v)
	}
	if err := s.Set("tr.bye", "Tschuess"); err != nil {
		t.Fatalf("set tr.bye: %v", err)
	}
	if v, ok := s.Lookup("tr.hi"); !ok || v != "Hallo" {
		t.Fatalf("tr.hi = %v, %v; sibling lost", v, ok)
	}
	if err := s.Set("rows[0].m", 2.0); err != nil {
		t.Fatalf("set rows[0].m: %v", err)
	}
	if v, ok := s.Lookup("rows[0].n"); !ok || v != 1.0 {
		t.Fatalf("rows[0].n = %v, %v", v, ok)
	}

	rejected := []struct {
		path string
		v    any
	}{
		{"a[2]", 1.0},
		{"tr.n", 1.0},
		{"client.budget", 1.0},
		{"client.deep.x", 1.0},
		{"count.x", 1.0},
		{"a[0].x", 1.0},
	}
	for _, tc := range rejected {
		if err := s.Set(tc.path, tc.v); !errors.Is(err, ErrNotWritable) {
			t.Errorf("Set(%q) err = %v, want ErrNotWritable", tc.path, err)
		}
	}
	if v, ok := s.Lookup("client"); !ok || v != client {
		t.Fatalf("resolver replaced: %#v", v)
	}
	if v, _ := s.Lookup("count"); v != 3.0 {
		t.Fatalf("count = %v", v)
	}
	if got, _ := s.Lookup("a"); len(got.([]any)) != 2 {
		t.Fatalf("a resized: %v", got)
	}
}

func TestSegments(t *testing.T) {
	cases := map[string][]string{
		"a.b[0].c": {"a", "b", "0", "c"},
		".a":       {"a"},
		"a[x][1]":  {"a", "x", "1"},
		"name":     {"name"},
	}
	for in, want := range cases {
		if got := Segments(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("Segments(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatAndNumber(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{5.0, "5"},
		{0.25, "0.25"},
		{nil, ""},
		{"txt", "txt"},
		{7, "7"},
		{true, "true"},
		{json.Number("42"), "42"},
	}
	for _, c := range cases {
		if got := Format(c.in); got != c.want {
			t.Fatalf("Format(%v) = %q, want %q", c.in, got, c.want)
		}
	}
	if f, ok := Number(json.Number("1.5")); !ok || f != 1.5 {
		t.Fatalf("Number(json.Number) = %v, %v", f, ok)
	}
	if _, ok := Number("abc"); ok {
		t.Fatalf("Number(abc) should fail")
	}
}
