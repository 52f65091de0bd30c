// Package middleware provides the HTTP middleware chain for the
// booking proxy: request IDs, panic recovery, access logging, and the
// entry-endpoint rate limit.
package middleware
