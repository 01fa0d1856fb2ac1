/*
Package sync implements the cold/hot state-sync coordinator (component
O). It is the only component that writes the hot-state display block
into the canonical task-list document: HydrateAtStartup runs crash
recovery once at boot, a periodic timer flushes the display block on the
configured interval, and an event-bus subscription refreshes a single
PR's cold-state cache immediately after a transition commits, so reads
against the hot store stay close to current between flushes.
*/
package sync
