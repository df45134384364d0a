// Package admission throttles requests per client before they reach any
// handler.
//
// Two scopes apply to every request, in order:
//   - client: keyed by client IP, one (per-minute, per-hour) pair for all paths.
//   - endpoint: keyed by client IP plus the longest configured path prefix
//     matching the request, with a fallback pair for unmatched paths.
//
// Each scope is a Limiter holding sliding 60s and 3600s windows per key.
// A request is counted only when it is admitted; a rejected request leaves
// the window untouched. State is in memory and starts empty on boot.
package admission
