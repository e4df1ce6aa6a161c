/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package expr evaluates the small expression language used by set and event
// directives: literals, variable paths and calls into a closed registry of
// native functions. There is no general-purpose code evaluation.
package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	applog "goinstruct/internal/log"
	"goinstruct/internal/vars"
)

var (
	// ErrUnknownFunction is returned when a call names neither a registered
	// function nor a function-valued variable.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrNotCall is returned by Event when the argument is not a call.
	ErrNotCall = errors.New("not a function call")
	// ErrMalformedSet is returned by Set when the argument is not "name = expr".
	ErrMalformedSet = errors.New("malformed assignment")
)

// Strategy decides how call arguments are resolved.
type Strategy interface {
	Name() string
	Arg(e *Evaluator, arg string) (any, error)
}

var (
	// Recursive evaluates nested calls, then variables, then literals.
	// Used by set.
	Recursive Strategy = recursive{}
	// Flat passes numeric literals through and looks everything else up
	// directly; unknown names become nil. Used by event.
	Flat Strategy = flat{}
)

type recursive struct{}

func (recursive) Name() string { return "recursive" }

func (recursive) Arg(e *Evaluator, arg string) (any, error) {
	if c, ok := ParseCall(arg); ok {
		return e.call(c, Recursive)
	}
	if v, ok := e.store.Lookup(strings.TrimSpace(arg)); ok {
		return v, nil
	}
	return Literal(arg), nil
}

type flat struct{}

var reFlatNumber = regexp.MustCompile(`^\s*(\d+\.?\d*|\.\d+)\s*$`)

func (flat) Name() string { return "flat" }

func (flat) Arg(e *Evaluator, arg string) (any, error) {
	if reFlatNumber.MatchString(arg) {
		f, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err == nil {
			return f, nil
		}
	}
	v, _ := e.store.Lookup(strings.TrimSpace(arg))
	return v, nil
}

// Evaluator binds a variable store to a function registry.
type Evaluator struct {
	store *vars.Store
	funcs *Functions
	log   *slog.Logger
}

// New returns an evaluator. A nil registry gets the built-ins.
func New(store *vars.Store, funcs *Functions) *Evaluator {
	if funcs == nil {
		funcs = NewFunctions()
	}
	return &Evaluator{store: store, funcs: funcs, log: applog.WithComponent("expr")}
}

// Functions exposes the registry so hosts can add their own.
func (e *Evaluator) Functions() *Functions { return e.funcs }

// Set evaluates "name = expr" with the Recursive strategy and stores the result.
func (e *Evaluator) Set(arg string) error {
	name, rhs, ok := ParseAssignment(arg)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformedSet, arg)
	}
	v, err := e.Eval(rhs, Recursive)
	if err != nil {
		return err
	}
	if err := e.store.Set(name, v); err != nil {
		return err
	}
	e.log.Debug("set", slog.String("name", name), slog.Any("value", v))
	return nil
}

// Event evaluates "fn(args)" or "name = fn(args)" with the Flat strategy.
// The call's result is stored only in the assignment form.
func (e *Evaluator) Event(arg string) (any, error) {
	name, rhs, assign := ParseAssignment(arg)
	if !assign {
		rhs = arg
	}
	c, ok := ParseCall(rhs)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotCall, arg)
	}
	v, err := e.call(c, Flat)
	if err != nil {
		return nil, err
	}
	if assign {
		if err := e.store.Set(name, v); err != nil {
			return v, err
		}
	}
	e.log.Debug("event", slog.String("call", c.Name), slog.Bool("assign", assign))
	return v, nil
}

// Eval evaluates a single expression: an assignment, a call or a bare argument.
func (e *Evaluator) Eval(s string, st Strategy) (any, error) {
	if name, rhs, ok := ParseAssignment(s); ok {
		v, err := e.Eval(rhs, st)
		if err != nil {
			return nil, err
		}
		if err := e.store.Set(name, v); err != nil {
			return nil, err
		}
		return v, nil
	}
	if c, ok := ParseCall(s); ok {
		return e.call(c, st)
	}
	return st.Arg(e, s)
}

func (e *Evaluator) call(c Call, st Strategy) (any, error) {
	fn, err := e.resolve(c.Name)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(c.Args))
	for _, a := range c.Args {
		v, err := st.Arg(e, a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %q: %w", c.Name, a, err)
		}
		args = append(args, v)
	}
	v, err := fn(args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	return v, nil
}

// resolve prefers the registry and falls back to function-valued variables.
func (e *Evaluator) resolve(name string) (Func, error) {
	if fn, ok := e.funcs.Lookup(name); ok {
		return fn, nil
	}
	if v, ok := e.store.Lookup(name); ok {
		switch f := v.(type) {
		case Func:
			return f, nil
		case func(...any) (any, error):
			return f, nil
		case func(...any) any:
			return func(args ...any) (any, error) { return f(args...), nil }, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
}
