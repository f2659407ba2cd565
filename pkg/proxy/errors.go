// Copyright 2024-2026 Aiku AI

package proxy

import "errors"

// Sentinel errors for the failure categories the engine distinguishes.
// Gateway adapters wrap platform errors onto these so the core can apply
// its failure policy with errors.Is; anything that matches none of them is
// treated as unknown (fail the operation, log, keep running).
var (
	// ErrPermissionDenied means the bot lacks a permission for the
	// requested operation. Recoverable: the engine logs and moves on.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimited means the platform throttled the request. The
	// gateway layer retries with backoff; if it still surfaces, the
	// engine may re-attempt the operation once.
	ErrRateLimited = errors.New("rate limited")

	// ErrTargetNotFound means a command's target message has no live
	// mapping, or the platform no longer knows the message.
	ErrTargetNotFound = errors.New("target message not found")

	// ErrSubstitutionSyntax means a !s expression failed to parse.
	ErrSubstitutionSyntax = errors.New("substitution expression invalid")

	// ErrSubstitutionNoMatch means a !s expression parsed but changed
	// nothing. Reported to the user rather than silently ignored.
	ErrSubstitutionNoMatch = errors.New("substitution matched nothing")

	// ErrUnsupported means the gateway does not implement the operation
	// on its platform (the experimental Telegram subset).
	ErrUnsupported = errors.New("operation not supported on this platform")
)
