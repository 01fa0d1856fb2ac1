/*
Package hotstate implements the hot-store operations layer (component M):
writing and clearing a PR's ephemeral hot-state keys, caching its cold
state for fast reads, hydrating the cache and dependency sets from the
cold store at startup, and sweeping orphaned PR entries or heartbeat-
expired agent assignments.

This is distinct from internal/hotstore (component A), which is the raw
connection/primitive client; hotstate is the PR-keyspace policy layer
built on top of it.
*/
package hotstate
