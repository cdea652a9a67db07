// Package relay is the REST client for the message-relay service.
//
// It covers the five collaborator contracts the client core consumes:
// conversation listing, change-detected message fetches, sends, notes
// CRUD, and authentication. The relay computes a content fingerprint per
// conversation; GetMessages reports whether the authoritative set differs
// from the caller's cached copy so polling stays cheap.
//
// Server payloads are dynamically shaped (optional fields, ids that may
// arrive as strings or numbers). All of that is absorbed at this boundary:
// wire types make required vs optional fields explicit and validation
// happens during decode, so internal components never branch on "is this
// field present".
//
// Error taxonomy:
//   - ErrUnauthenticated: the server rejected credentials (HTTP 401),
//     uniform across every call
//   - ErrEmptyBody, ErrNoRecipient: validation failures caught before any
//     network traffic
//   - *ServerError: the server answered with a non-auth error status
//   - anything else: transport failure, wrapped with call context
//
// GetMessages and the other reads are idempotent and safe to repeat, so
// they retry transport and 5xx failures inside a small bounded backoff
// budget. Sends are fire-once and never retried.
package relay
