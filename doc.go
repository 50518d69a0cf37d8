// Package client implements the client side of a phone-number-authenticated
// event application: session reconciliation against a hosted identity
// provider, a credential-aware HTTP client for the application backend, and a
// navigation guard that gates route transitions on the reconciled state.
//
// Session lifecycle:
//   - SessionStore owns the single mutable Session. It is driven from three
//     independently-timed sources: the identity provider's auth-change stream,
//     locally persisted session data, and the backend's authoritative profile
//     record. The provider is authoritative for "logged in"; backend sync is
//     best-effort enrichment and never fails a login on its own.
//   - ReadySignal is a one-shot barrier resolved on the provider's first
//     auth-change emission. The Guard awaits it before trusting any locally
//     restored session, so a hard reload never produces a spurious redirect to
//     the login screen.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the SessionStore to
//     describe login, signup, logout, and session-restore events. Sinks run
//     best-effort (errors are logged) so you can forward them to a database or
//     queue without blocking authentication.
package client
