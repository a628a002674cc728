package provider

import "errors"

// Provider failures are typed so the HTTP boundary can distinguish
// authorization failures from service failures.
var (
	// ErrMissingConfiguration means the provider was asked for a token
	// without the process configuration it needs.
	ErrMissingConfiguration = errors.New("token provider not configured")

	// ErrUnknownSubject means no credential set is stored for the subject.
	// Recoverable by re-authorizing the subject.
	ErrUnknownSubject = errors.New("unknown subject")

	// ErrExpiredCredential means a non-refreshable provider holds an
	// expired token. Surfaced as an authorization failure.
	ErrExpiredCredential = errors.New("credential expired")

	// ErrNotRefreshable means a refresh was attempted on a credential set
	// without a refresh token.
	ErrNotRefreshable = errors.New("credential set is not refreshable")

	// ErrRefreshFailed means the upstream rejected the refresh token or
	// returned an error response. Stored state is left untouched.
	ErrRefreshFailed = errors.New("token refresh rejected by upstream")

	// ErrInvalidSession means the inbound session token failed validation.
	ErrInvalidSession = errors.New("invalid session token")
)
