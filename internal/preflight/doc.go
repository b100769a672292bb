// Package preflight provides readiness checks for the broker, the document
// store, the external tools and the directories the pipeline writes to.
//
// The daemon runs RunAll before it starts consuming and refuses to start
// while a required check fails. The CLI status command shows the same
// results alongside the ledger summary.
package preflight
