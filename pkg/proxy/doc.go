// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package proxy implements the platform-neutral core of Séance: a bot that
// lets a single reference user speak through a bot persona.
//
// When the reference user posts a message matching the configured tag
// pattern, the engine deletes the original, re-posts the extracted content
// under the bot's identity, and records an original-to-proxied message
// mapping. Follow-up commands (!edit, !s/old/new/, !status, !presence, !nick)
// operate on those mappings and on the bot persona itself.
//
// # Core Types
//
// [Rule] holds the immutable per-instance configuration: the reference user,
// the compiled tag pattern (which must contain a named capture group
// "content"), the optional command prefix, and the force-reproxy emoji set.
//
// [Store] is the in-memory bidirectional mapping between original and
// proxied message IDs, with per-message key locks so concurrent pipelines
// for different messages never serialize on each other.
//
// [Engine] wires Rule, Store, a [Gateway], and a [Substituter] together and
// exposes one handler per inbound event kind. Handlers are safe for
// concurrent use; adapters are expected to call them from per-event
// goroutines so platform event intake is never blocked on REST calls.
//
// # Gateway
//
// All platform I/O goes through the [Gateway] interface. The engine never
// imports a platform SDK; adapters live in their own packages and translate
// both directions. Adapter errors are mapped onto the sentinel errors in
// this package (ErrPermissionDenied, ErrRateLimited and so on) so the
// engine can apply its failure policy without knowing the platform.
//
// # Failure Policy
//
// Recoverable failures never crash the pipeline: a delete the bot lacks
// permission for leaves the original visible and is logged, a failed
// proxied send records no mapping, and command failures are surfaced to the
// reference user only as a single reaction on the command message. Details
// go to the log, never to the channel.
//
// # Sub-packages
//
//   - sedsubst runs sed substitution expressions for the !s command.
package proxy
