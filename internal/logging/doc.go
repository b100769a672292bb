// Package logging assembles structured slog loggers and formatting helpers used
// across rmqmeta.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with message ids, routing keys, and stages. The console handler
// promotes the routing key and message id into a bracketed subject so one
// message can be followed through a busy log.
package logging
