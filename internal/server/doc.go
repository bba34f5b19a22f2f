// Package server assembles the YaMDb HTTP API behind a single multiplexer.
//
// Every route runs through the same middleware chain of request IDs, logging,
// security headers, CORS, metrics, rate limiting, token resolution, and audit,
// so handlers share common protections and instrumentation.
package server
