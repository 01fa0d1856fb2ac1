/*
Package hotstore wraps a Redis-compatible service as the engine's fast
coordination store (component A). It exposes a connection-lifecycle state
machine (disconnected/connecting/connected/reconnecting/error/closing/
closed), key/hash/set/sorted-set primitives, pattern scanning, pub/sub on
a dedicated subscriber connection, and an optimistic watch-multi-exec
transaction primitive used by the lease manager for atomic multi-key
acquisition.

Reconnection uses exponential backoff bounded by a maximum attempt count,
after which the client settles into the error state rather than retrying
forever.
*/
package hotstore
