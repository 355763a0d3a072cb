// Package auth authenticates chat API requests.
//
// # Identity
//
// Every request handled by the chat API carries exactly one user id. The
// conversation service trusts that id as the sender of messages and the viewer
// of conversations; no request body field can override it.
//
// # JWT
//
// With auth.jwt_secret configured, HTTPAuthMiddleware requires
//
//	Authorization: Bearer <token>
//
// where the token is HS256-signed and its "sub" claim is the user id.
// Tokens can be minted with JWTVerifier.Generate (see `coven-chat token`).
//
// # Header Identity
//
// Without a secret, HeaderIdentityMiddleware reads the X-User-ID header
// instead. It performs no verification and is meant for local development.
//
// # Context
//
//	ctx = auth.WithAuth(ctx, &auth.AuthContext{UserID: "u1", Method: auth.MethodJWT})
//	id := auth.UserIDFromContext(ctx)
package auth
