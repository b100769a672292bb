// Package logs reads the daemon log file for the CLI and IPC tail commands.
package logs
