/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"goinstruct/internal/gate"
	"goinstruct/internal/instruction"
	"goinstruct/internal/vars"
)

// consoleSurface prints a page whenever the page, the forward control or the
// completion state changes. Render runs under the session lock and only writes.
type consoleSurface struct {
	mu   *sync.Mutex
	out  io.Writer
	last *instruction.View
}

func newConsoleSurface(out io.Writer, mu *sync.Mutex) *consoleSurface {
	return &consoleSurface{mu: mu, out: out}
}

func (c *consoleSurface) Render(v instruction.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil && c.last.Page == v.Page && c.last.ForwardEnabled == v.ForwardEnabled &&
		c.last.Progress.Complete == v.Progress.Complete && c.last.Stage == v.Stage {
		return
	}
	pageChanged := c.last == nil || c.last.Page != v.Page
	c.last = &v
	if !pageChanged {
		writeStatus(c.out, v)
		return
	}
	writeView(c.out, v)
}

func writeView(w io.Writer, v instruction.View) {
	_, _ = fmt.Fprintf(w, "\n── page %d / %d ──\n", v.Page, v.Progress.LastPage)
	if v.Header != "" {
		_, _ = fmt.Fprintf(w, "[%s]\n", v.Header)
	}
	if v.Title != "" {
		_, _ = fmt.Fprintf(w, "# %s\n", v.Title)
	}
	if v.Stage != "" {
		_, _ = fmt.Fprintf(w, "stage: %s\n", v.Stage)
	}
	if t := v.Text(); t != "" {
		_, _ = fmt.Fprintln(w, t)
	}
	var hidden []string
	for name, e := range v.Elements {
		switch {
		case e.Hidden:
			hidden = append(hidden, name+" (hidden)")
		case e.Invisible:
			hidden = append(hidden, name+" (invisible)")
		}
	}
	if len(hidden) > 0 {
		sort.Strings(hidden)
		_, _ = fmt.Fprintf(w, "not shown: %s\n", strings.Join(hidden, ", "))
	}
	writeStatus(w, v)
}

func writeStatus(w io.Writer, v instruction.View) {
	switch {
	case v.Progress.Complete:
		_, _ = fmt.Fprintln(w, "instructions complete")
	case !v.ForwardEnabled:
		_, _ = fmt.Fprintf(w, "next is locked; waiting for: %s\n", strings.Join(v.Armed, ", "))
	default:
		_, _ = fmt.Fprintln(w, "next is available")
	}
}

const consoleHelp = `commands:
  n, next                      go to the next page
  p, back                      go to the previous page
  emit <widget> <signal> [v]   send a widget signal (e.g. emit insurance change)
  get <path>                   print a variable (e.g. get exp_params.rounds)
  page                         print the current page again
  help                         show this help
  q, quit                      leave`

// runConsole drives sess from line commands on in. Signals go to board, the
// same widget directory the session's gates attach to.
func runConsole(ctx context.Context, sess *instruction.Session, board *gate.Board, mu *sync.Mutex, in io.Reader, out io.Writer) error {
	say := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(out, format, args...)
	}
	sc := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sc.Scan() {
			return sc.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "n", "next":
			err := sess.NextPage(ctx)
			switch {
			case errors.Is(err, instruction.ErrForwardDisabled):
				say("next is locked; waiting for: %s\n", strings.Join(sess.View().Armed, ", "))
			case err != nil:
				return err
			}
		case "p", "back":
			if err := sess.PreviousPage(ctx); err != nil {
				return err
			}
		case "emit":
			if len(fields) < 3 {
				say("usage: emit <widget> <signal> [value]\n")
				continue
			}
			var value any
			if len(fields) > 3 {
				value = parseValue(strings.Join(fields[3:], " "))
			}
			if !board.Emit(fields[1], fields[2], value) {
				say("no widget %q (have: %s)\n", fields[1], strings.Join(board.Names(), ", "))
			}
		case "get":
			if len(fields) != 2 {
				say("usage: get <path>\n")
				continue
			}
			v, ok := sess.Store().Lookup(fields[1])
			if !ok {
				say("%s is not set\n", fields[1])
				continue
			}
			say("%s = %s\n", fields[1], vars.Format(v))
		case "page":
			v := sess.View()
			mu.Lock()
			writeView(out, v)
			mu.Unlock()
		case "help", "?":
			say("%s\n", consoleHelp)
		case "q", "quit", "exit":
			return nil
		default:
			say("unknown command %q; type help\n", fields[0])
		}
	}
}

// parseValue reads numbers as float64 and everything else as text.
func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
