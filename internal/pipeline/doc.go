// Package pipeline drives one message from routing key and body to a stored
// metadata record and a relocated document.
//
// Controller.Process walks RECEIVED, MATERIALIZED, EXTRACTED, PERSISTED and
// RELOCATED. Every failure is converted into exactly one failure terminal
// state and the raw body is handed to the quarantine sink; the caller
// acknowledges the message once Process returns without error. Process only
// returns an error when the body could not be quarantined, in which case the
// message must be redelivered.
//
// Records are persisted before the document is moved. When the move fails the
// record is deleted again so the store never points at a file that is not in
// its destination directory.
package pipeline
