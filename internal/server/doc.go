// Package server exposes the playback feed over HTTP.
//
// # Routes
//
//	GET /sse?uri=<subscriber>  server-sent event stream of playback events
//	GET /ws?uri=<subscriber>   the same stream over a WebSocket
//	GET /auth                  start the Spotify authorization-code flow
//	GET /auth/callback         finish it and store the subscriber's tokens
//	GET /healthz               liveness and active subscription count
//	GET /metrics               prometheus exposition
//
// A static directory may be mounted at / for a browser client.
//
// # Router Infrastructure
//
// [BasicRouter] uses [http.ServeMux] internally with method filtering. [Middleware] added with
// [BasicRouter.Use] wraps every route registered afterwards, first added outermost.
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Streams
//
// Each stream request opens one subscription on a [Subscriber]. The handler forwards events until
// the subscription's channel closes or a write fails, then cancels the subscription.
package server
