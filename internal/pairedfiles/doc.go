// Package pairedfiles implements the paired-file expander (component E):
// given a requested file set, it discovers companion test/source files
// using a configured, language-agnostic pattern list rather than hardcoded
// rules, so callers can narrow or extend the pattern list without touching
// this package.
package pairedfiles
