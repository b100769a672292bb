// Package notifications delivers pipeline alerts via pluggable notifiers.
//
// Two transports are supported: SMTP email to the configured to_line
// recipients, and an ntfy topic. Both may be active at once; with neither
// configured the service degrades to a no-op and callers log a warning
// instead. Events are formatted once and fanned out to every transport so the
// quarantine sink does not need to know which ones are enabled.
package notifications
