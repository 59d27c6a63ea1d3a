// Package dispatch sends admin console requests to the Driftline data API.
//
// Every state-changing call goes through the Dispatcher, which owns the
// protocol details the rest of the console should never reimplement:
//
//   - CSRF: non-read requests carry X-CSRF-Token resolved from the readable
//     cookie (double-submit; the server compares header to cookie).
//   - Step-up: callers holding an elevated-privilege grant pass its token,
//     attached as X-Admin-Step-Up-Token.
//   - Idempotency: each mutation mints one Idempotency-Key at construction
//     time. Origin-fallback retries of that call reuse the key; a fresh
//     user-initiated resubmission mints a new one.
//   - Origin fallback: candidate origins are tried in order, advancing only
//     on transport-level failures. An HTTP error response is final and is
//     returned as-is from whichever origin produced it.
//   - Normalization: bodies are parsed as the {data, message, error}
//     envelope; malformed or empty bodies degrade to a nil envelope rather
//     than an error. Any non-2xx status is a failure regardless of body.
//
// Responses are never retried beyond origin selection; retry of a failed
// mutation is always an explicit user action.
package dispatch
