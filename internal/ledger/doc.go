// Package ledger keeps a local SQLite history of processed deliveries.
//
// One row is written per terminal pipeline outcome, including redeliveries,
// so an operator can trace duplicates and find the quarantine file for a
// failed message. The ledger backs 'rmqmeta status' and is independent of the
// document store: losing it loses history, never metadata.
package ledger
