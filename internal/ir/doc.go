// Package ir provides the value and fact types shared by every layer of the
// evaluator.
//
// This package contains type definitions and encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - IRNull may appear in bindings, never in a stored fact
//   - Entity references are a distinct kind (IRRef), never a plain string
//   - Hashes are computed over RFC 8785 canonical JSON only
package ir
