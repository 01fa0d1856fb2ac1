/*
Package registry implements the agent registry and heartbeat monitor
(component P). Agents are represented as agent:<id> hashes in the hot
store; Register/Heartbeat/Deregister maintain that record, and a
background loop periodically scans every agent, reclaiming file leases
and clearing the hot state of any agent whose heartbeat has exceeded the
configured timeout.
*/
package registry
