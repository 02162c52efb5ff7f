// Package auth guards the till HTTP API with HS256 JWT bearer tokens.
//
// Tokens are minted locally (`till token --subject front-counter`) with the
// configured auth.jwt_secret and carry the caller's name in "sub". The
// Middleware verifies the token on every /api request and exposes the subject
// to handlers through FromContext / Subject.
//
// Auth is off when no secret is configured; the server then only listens where
// the config says, which defaults to localhost.
package auth
