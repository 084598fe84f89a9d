// Package transport defines the link abstraction used by lanhop transfers.
//
// A transfer uses one connection: the sender dials, writes a single frame
// and closes; the receiver reads that frame and closes. Implementations:
//   - tcp: the default link, plain TCP sockets
//   - quic: one QUIC stream per transfer over a short-lived connection
//   - mem: in-process pipes, for tests and embedding
package transport
