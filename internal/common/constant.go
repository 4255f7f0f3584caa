package common

// AuthHeaderName is the HTTP header carrying the bearer credential on every
// gateway call and websocket handshake.
const AuthHeaderName = "Authorization"

// BearerPrefix precedes the access token in AuthHeaderName.
const BearerPrefix = "Bearer "

// MaxBatchSize is the per-call record limit for bulk operations, matching the
// backing document store's batch write limit. Larger batches are rejected
// before any network or storage call.
const MaxBatchSize = 500
