// Command rmqmeta consumes documents from RabbitMQ, extracts named entities
// and stores one metadata record per document.
//
// The same binary is the CLI and the daemon: `rmqmeta start` launches a
// detached `rmqmeta daemon` process and every other command talks to it over
// the unix socket in the log directory. Commands that only read local state
// (config, extract, publish, status when offline) work without a daemon.
package main
