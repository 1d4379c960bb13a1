// Package stream delivers telemetry samples to subscribers.
//
// Two sources share the Source contract: Client keeps a long-lived
// connection to a push endpoint (SSE or WebSocket) and reconnects with
// bounded exponential backoff; LocalClient generates samples on a local
// ticker when no live endpoint is reachable. Consumers depend only on
// Subscribe/SubscribeToStatus and never on the transport.
//
// All callbacks of one source run on a single dispatcher goroutine, in the
// order samples were received. A panicking subscriber is logged and skipped.
package stream
