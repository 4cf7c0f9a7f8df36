// Package api exposes the catalog over HTTP: public product endpoints,
// read-only monitoring endpoints, and JWT-guarded admin endpoints. Every
// request passes a per-client rate limiter and a tracing/logging middleware.
package api
