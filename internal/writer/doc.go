// Package writer implements the batch writer of the observation archive.
//
// Every applied lots page becomes one lot_observations row per lot. Rows
// are queued without blocking the caller and written with pgx batches on
// size or interval. The table is append-only.
package writer
