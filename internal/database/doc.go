// Package database manages the PostgreSQL connection pool of the
// observation archive and its schema.
//
// The archive is append-only: lotwatch writes one row per lot per applied
// refresh and never reads it back.
package database
