// Package api provides the HTTP REST API, SSE streams, and WebSocket relay
// for the gateway.
//
// It is a thin adapter: request decoding, error mapping, and response
// encoding around the device manager, scenario manager, room manager, and
// SSE fan-out. No domain logic lives here.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication is optional: with security.jwt.secret unset the API is
// open (trusted-LAN deployment); when set, mutating endpoints require a
// bearer token signed with the shared secret.
package api
