// Package database provides the SQLite connection and migration framework
// for the AV Gateway.
//
// The database holds the persistent key-value state store. Migrations are
// embedded into the binary via the top-level migrations package and applied
// at startup, each in its own transaction.
package database
