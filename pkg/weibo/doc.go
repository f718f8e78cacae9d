// Package weibo is the transport for the Weibo v2 REST API.
//
// Client.Invoke is the single entry point every endpoint goes through. It
// attaches the OAuth2 access token, paces calls with a ratelimit.Limiter and
// turns responses into typed errors from pkg/errors:
//
//   - HTTP 429 and vendor codes 10022, 10023 and 10024 become rate_limit
//     errors and are returned without retrying; callers resolve them with
//     retry.Policy.
//   - An error body delivered with HTTP 200 is still an error.
//   - Connection failures are retried once after a reconnect.
//   - 404 and 5xx responses are retried a bounded number of times.
//
// Post keeps the raw JSON of each status so archives receive the exact
// bytes the API returned.
package weibo
