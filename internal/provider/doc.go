// Package provider supplies valid upstream access tokens to API callers.
//
// Two provider variants sit behind one capability interface:
//   - StaticProvider: a fixed single-tenant credential from process
//     configuration, never refreshed (local mode)
//   - StoredProvider: per-subject credentials from a credential store,
//     renewed through the OAuth Refresher before they expire (remote mode)
//
// The Refresher owns the refresh-token grant against the upstream
// authorization endpoint. Refreshes pass rate-limit admission, are
// single-flighted per subject, and never touch storage on failure.
//
// A small process-wide registry (Initialize/Active) holds the active
// provider; tests reset it with ResetForTest.
package provider
