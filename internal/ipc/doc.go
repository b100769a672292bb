// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// The socket path is scoped to the configured flavor, so one host can run a
// consumer per exchange and address each one separately.
package ipc
