// Package textutil provides text helpers for filename sanitization and
// document title derivation.
//
// The primary use cases are:
//   - Sanitizing filenames and path segments for safe filesystem use
//   - Deriving display titles for processed documents from their filenames
package textutil
