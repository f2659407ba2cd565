// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sedsubst_test

import (
	"errors"
	"testing"

	"github.com/aiku/seance/pkg/proxy"
	"github.com/aiku/seance/pkg/proxy/sedsubst"
)

// TestSubstitute exercises the expression shapes users actually type.
func TestSubstitute(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		current    string
		expression string
		want       string
	}{
		{"basic", "hello world", "s/world/there/", "hello there"},
		{"global flag", "banana", "s/a/o/g", "bonono"},
		{"missing trailing delimiter", "hello world", "s/world/there", "hello there"},
		{"missing trailing delimiter with flag-less tail", "typo here", "s/typo/fix", "fix here"},
		{"hash delimiter", "a/b", "s#/#-#", "a-b"},
		{"pipe delimiter", "one two", "s|two|2|", "one 2"},
		{"multiline content", "one\ntwo", "s/two/2/", "one\n2"},
		{"replacement with spaces", "say hi", "s/hi/hello there/", "say hello there"},
		{"empty replacement", "well, fine", "s/well, //", "fine"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := sedsubst.New().Substitute(tc.current, tc.expression)
			if err != nil {
				t.Fatalf("Substitute(%q, %q) error: %v", tc.current, tc.expression, err)
			}
			if got != tc.want {
				t.Errorf("Substitute(%q, %q) = %q, want %q", tc.current, tc.expression, got, tc.want)
			}
		})
	}
}

// TestSubstituteNoMatch verifies an expression that changes nothing is an
// error rather than a silent success.
func TestSubstituteNoMatch(t *testing.T) {
	t.Parallel()
	_, err := sedsubst.New().Substitute("hello world", "s/absent/x/")
	if !errors.Is(err, proxy.ErrSubstitutionNoMatch) {
		t.Fatalf("expected ErrSubstitutionNoMatch, got %v", err)
	}
}

// TestSubstituteSyntaxError verifies a broken expression maps onto the
// syntax sentinel.
func TestSubstituteSyntaxError(t *testing.T) {
	t.Parallel()
	for _, expression := range []string{"s/[/x/", "s"} {
		_, err := sedsubst.New().Substitute("hello", expression)
		if !errors.Is(err, proxy.ErrSubstitutionSyntax) {
			t.Errorf("Substitute(%q): expected ErrSubstitutionSyntax, got %v", expression, err)
		}
	}
}

// TestSubstituteIdentityRewrite documents that a rewrite producing the same
// text counts as no match, even though the pattern technically matched.
func TestSubstituteIdentityRewrite(t *testing.T) {
	t.Parallel()
	_, err := sedsubst.New().Substitute("hello", "s/hello/hello/")
	if !errors.Is(err, proxy.ErrSubstitutionNoMatch) {
		t.Fatalf("expected ErrSubstitutionNoMatch, got %v", err)
	}
}
