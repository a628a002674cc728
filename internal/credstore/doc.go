// Package credstore provides persistent storage for per-subject credential
// sets.
//
// Three backends with different deployment tradeoffs:
//   - Memory: in-process map, optionally seeded from an environment
//     variable (local mode; lost on restart)
//   - SQLite: one row per subject with upsert semantics (remote
//     multi-tenant mode)
//   - Keyring: OS-native credential storage, one entry per subject
//     (single-operator deployments)
//
// Remote mode requires durable storage (sqlite or keyring); the memory
// backend is only suitable for local mode and tests.
package credstore
