// Package gateway orchestrates the coven-chat server components.
//
// # Overview
//
// The gateway owns the data store, the conversation service, the event
// broadcaster, and the HTTP server. When server.grpc_addr is set it also
// serves the standard gRPC health service.
//
// # HTTP API
//
// Every API route requires an identity: a Bearer JWT when auth.jwt_secret is
// configured, otherwise the X-User-ID header (development only).
//
//	GET  /my/conversations                  list the caller's conversations
//	POST /conversations                     {user_id, message} start a conversation
//	GET  /conversations/{conversationID}    one conversation, caller-relative
//	POST /conversations/{conversationID}/read
//	GET  /messages/{conversationID}         messages in chronological order
//	POST /messages/{conversationID}         {to, message} send a message
//	GET  /events                            SSE stream of the caller's messages
//
// Health endpoints need no auth:
//
//	GET /health        liveness
//	GET /health/ready  503 once shutdown has started
//
// # Errors
//
// Handlers map conversation errors to statuses: ErrForbidden is 403,
// ErrNotFound 404, ErrInvalidArgument 400, and a *ConflictError 409 with the
// existing conversation in the body. Anything else is logged and returned as 500.
//
// # Idempotency
//
// POST /messages/{conversationID} honors an Idempotency-Key header. A repeat
// of a completed request replays the stored message with
// Idempotent-Replayed: true; a repeat while the first is in flight gets 409.
package gateway
