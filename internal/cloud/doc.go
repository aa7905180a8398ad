// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the completion gateway: one chat completion request to an
// OpenAI-compatible endpoint per call.
//
// Requests carry the configured model, the full flattened message log and a
// fixed temperature. The API key is read from the credential store on every
// call, so logging in or out takes effect immediately.
//
// # Errors
//
//   - ErrMissingCredential: no key; nothing was sent
//   - *UpstreamError: the endpoint answered with a failure or no choices
//   - *TransportError: no response arrived (network failure, cancellation)
//
// There are no retries. The caller decides whether to resend.
package cloud
