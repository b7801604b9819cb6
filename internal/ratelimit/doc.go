// Package ratelimit implements the shared rate-limited client that
// guards every outbound call to an external service. Each service has
// one token-bucket budget; all adapters issuing calls for the same
// service share it, so no caller can starve another's quota.
package ratelimit
