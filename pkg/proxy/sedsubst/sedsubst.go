// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sedsubst runs sed substitution expressions for the !s command.
//
// Expressions are whole sed programs, so "s/a/b/", "s#a#b#g" and friends
// all work as they would on a command line. Two departures from a raw sed
// run: a missing closing delimiter is forgiven ("s/a/b" works), and an
// expression that changes nothing reports a no-match error instead of
// succeeding silently.
package sedsubst

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rwtodd/Go.Sed/sed"

	"github.com/aiku/seance/pkg/proxy"
)

// Engine applies sed expressions to message content. It is stateless and
// safe for concurrent use.
type Engine struct{}

var _ proxy.Substituter = (*Engine)(nil)

// New creates a substitution engine.
func New() *Engine {
	return &Engine{}
}

// Substitute runs expression over current and returns the rewritten text.
// A bad expression returns ErrSubstitutionSyntax; an expression that leaves
// the text unchanged returns ErrSubstitutionNoMatch.
func (e *Engine) Substitute(current, expression string) (string, error) {
	program, err := compile(expression)
	if err != nil {
		return "", fmt.Errorf("%w: %v", proxy.ErrSubstitutionSyntax, err)
	}
	out, err := program.RunString(current)
	if err != nil {
		return "", fmt.Errorf("%w: %v", proxy.ErrSubstitutionSyntax, err)
	}
	// The sed engine newline-terminates the final line; undo that when the
	// input was not newline-terminated so the comparison below is honest.
	if !strings.HasSuffix(current, "\n") {
		out = strings.TrimSuffix(out, "\n")
	}
	if out == current {
		return "", proxy.ErrSubstitutionNoMatch
	}
	return out, nil
}

// compile parses the expression, retrying once with the expression's own
// delimiter appended so "s/a/b" parses like "s/a/b/".
func compile(expression string) (*sed.Engine, error) {
	program, err := sed.New(strings.NewReader(expression))
	if err == nil {
		return program, nil
	}
	if len(expression) >= 2 && expression[0] == 's' {
		delim, _ := utf8.DecodeRuneInString(expression[1:])
		if program, retryErr := sed.New(strings.NewReader(expression + string(delim))); retryErr == nil {
			return program, nil
		}
	}
	return nil, err
}
