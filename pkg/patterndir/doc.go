// Package patterndir manages a directory of independent record stores.
//
// Agent plugins keep their state as a directory (conventionally
// ".claude-patterns/") holding one JSON document per concern:
// "patterns.json", "quality_history.json", "agent_feedback.json" and so on.
// A Dir owns such a directory: it validates store names against path
// traversal, opens each document as a recordstore.Store with directory-wide
// defaults, and tracks every store it has opened in a manifest with a stable
// UUID per store.
//
// Configuration layers, highest precedence first:
//
//  1. PATTERNS_* environment variables (PATTERNS_CORRUPT_POLICY, ...)
//  2. <dir>/config.yaml
//  3. built-in defaults
//
// The manifest ("manifest.json") is itself persisted through recordstore.
package patterndir
