// Package api hosts the HTTP handlers behind /api/v1/.
//
// Handler coordinates request validation, authentication, and response
// shaping while delegating persistence to storage.Repository implementations
// injected at construction time. Access tokens are verified by an
// auth.TokenIssuer and confirmation codes go out through a mail.Mailer; the
// package does not reach for globals and expects callers to supply fully
// configured dependencies.
//
// Handler implementations assume upstream middleware from internal/server has
// already enforced rate limiting, metrics, auditing, and logging concerns.
// New routes should preserve that contract by leaning on the middleware
// guarantees established in the server stack.
package api
