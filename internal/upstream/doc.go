// Package upstream holds the fixed endpoints of the accounting API and the
// HTTP transport used for calls against it.
//
// Every request through Transport passes rate-limit admission first; the
// upstream enforces a fixed-window quota and counts rejected requests
// against the caller, so admission happens locally before any bytes are
// sent. Token refresh handshakes go through the same limiter (see
// internal/provider), keeping the whole process under one quota.
package upstream
