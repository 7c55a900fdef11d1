// Package ws runs the real-time sync channel over a hand-rolled WebSocket
// server.
//
// Components:
//   - Listener: TCP accept loop on its own port, one goroutine per client
//   - Handler: per-connection state machine (handshake, frame loop, close)
//   - Registry: the set of open connections
//   - Broadcaster: fan-out of one message to every open connection
//
// Frames are decoded in order and handed to a Dispatcher synchronously, so
// messages from one client are processed strictly in arrival order. Writes
// to a connection are serialized because replies and broadcasts come from
// different goroutines.
//
// Example Usage:
//
//	registry := ws.NewRegistry()
//	broadcaster := ws.NewBroadcaster(registry, metrics, logger)
//	router := dispatch.NewRouter(store, broadcaster, metrics, logger)
//	handler := ws.NewHandler(ws.DefaultHandlerConfig(), registry, router, metrics, logger)
//	listener := ws.NewListener(":5001", handler, registry, time.Second, logger)
//	go listener.ListenAndServe(ctx)
package ws
