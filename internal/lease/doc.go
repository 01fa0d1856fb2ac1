// Package lease implements the file-lease manager (component F): atomic
// multi-key acquisition over the hot store with a pre-check/atomic-set/
// local-tracking protocol, paired-file expansion via internal/pairedfiles,
// per-agent heartbeat renewal, and grace-period expiry. Release is always a
// silent no-op for files the caller doesn't hold.
package lease
