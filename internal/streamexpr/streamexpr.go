// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package streamexpr compiles and evaluates user stream expressions. An
// expression is a boolean predicate over one stream and its request context:
// context fields are referenced by bare name, stream fields through the
// `stream` variable, and expr's comparison, boolean, `in`, `contains` and
// `matches` operators are all available. Evaluation is deterministic and
// never mutates the environment.
package streamexpr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
)

// CompileError reports a rejected expression together with its source text,
// so callers can surface which of their expressions is broken.
type CompileError struct {
	Expression string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile expression %q: %v", e.Expression, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Env is the evaluation environment for one stream. Build it with NewEnv.
type Env map[string]any

// NewEnv combines the request-level context fields (bare names) with one
// stream's field view (under "stream") and binds the helper predicates to
// that stream.
func NewEnv(contextFields map[string]any, stream map[string]any) Env {
	env := make(Env, len(contextFields)+5)
	for k, v := range contextFields {
		env[k] = v
	}
	env["stream"] = stream
	env["seadex"] = func() bool {
		tag, ok := stream["seadex"].(map[string]any)
		if !ok {
			return false
		}
		is, _ := tag["isSeadex"].(bool)
		return is
	}
	env["exists"] = func(v any) bool { return v != nil }
	env["istrue"] = func(v any) bool {
		b, ok := v.(bool)
		return ok && b
	}
	env["isfalse"] = func(v any) bool {
		b, ok := v.(bool)
		return ok && !b
	}
	return env
}

// Program is a compiled stream expression, safe for concurrent evaluation.
type Program struct {
	src     string
	program *vm.Program
}

// Compile parses and type-checks an expression. Unknown names are allowed
// and evaluate to nil, so expressions can probe fields the current request
// does not populate. Failures come back as *CompileError.
func Compile(expression string) (*Program, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, &CompileError{Expression: expression, Err: errors.New("empty expression")}
	}

	program, err := expr.Compile(trimmed,
		expr.Env(Env{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		// expr's type() builtin would otherwise shadow the `type` context
		// field at compile time.
		expr.DisableBuiltin("type"),
	)
	if err != nil {
		return nil, &CompileError{Expression: trimmed, Err: err}
	}
	return &Program{src: trimmed, program: program}, nil
}

// CompileAll compiles every expression in order, failing on the first bad
// one.
func CompileAll(expressions []string) ([]*Program, error) {
	if len(expressions) == 0 {
		return nil, nil
	}
	out := make([]*Program, 0, len(expressions))
	for _, e := range expressions {
		p, err := Compile(e)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Source returns the expression text the program was compiled from.
func (p *Program) Source() string { return p.src }

// Match evaluates the predicate against one environment. Evaluation errors,
// such as comparing a missing field numerically, are returned rather than
// treated as a verdict.
func (p *Program) Match(env Env) (bool, error) {
	// The VM's fast-map fetch asserts the exact map[string]any type, which
	// the named Env type does not satisfy.
	out, err := expr.Run(p.program, map[string]any(env))
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", p.src, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", p.src, out)
	}
	return matched, nil
}

// Select returns the items satisfying the predicate. envFor supplies each
// item's environment. Items whose evaluation errors are treated as not
// matching; the first such error is logged once per call.
func Select[S any](program *Program, items []S, envFor func(S) Env) []S {
	if program == nil {
		return items
	}

	logged := false
	var out []S
	for _, item := range items {
		ok, err := program.Match(envFor(item))
		if err != nil {
			if !logged {
				log.Debug().Err(err).Msg("streamexpr: evaluation failed, treating as no match")
				logged = true
			}
			continue
		}
		if ok {
			out = append(out, item)
		}
	}
	return out
}
