// Package daemon coordinates the long-running consumer process.
//
// It holds a flock-based program lock scoped to the configured flavor so a
// second instance for the same exchange cannot start, runs preflight checks
// before consuming, and exposes status, ledger lookups and a test
// notification to the IPC server.
package daemon
