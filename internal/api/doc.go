// Package api exposes rooms over HTTP.
//
// Routes:
//
//	GET   /health       dependency status
//	GET   /new          302 to a freshly minted identity
//	POST  /{identity}   replace a button config (title required)
//	PATCH /{identity}   shallow-merge into a button config
//	GET   /{identity}   WebSocket upgrade to a viewer session
//	GET   /?key=...     same, identity taken from the key query parameter
//
// Invalid update bodies get a 400 with the structured Error body.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
