// Package docstore persists metadata records.
//
// Four backends sit behind the Store interface: an embedded SQLite database
// (the default), PostgreSQL through the pgx database/sql driver, MongoDB, and
// Cloud Firestore. Every backend keys records by their ULID so a redelivered
// message overwrites rather than duplicates, and every backend supports
// Delete so the pipeline can roll back a record whose document could not be
// relocated.
package docstore
