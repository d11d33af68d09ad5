// Package auth provides viewer authentication for the courier API.
//
// Viewers present HS256-signed JWTs whose "sub" claim is their user ID.
// The HTTP middleware verifies the token and threads the viewer ID
// through the request context; handlers read it back with
// ViewerFromContext and pass it explicitly into the conversation layer.
// No handler ever consults ambient session state.
package auth
