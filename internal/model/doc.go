// Package model defines the lot-listing records shared across lot-watch.
//
// Records mirror the JSON the lots endpoints return.
//
// Conventions:
//   - IDs: int64 row_id values assigned by the server
//   - Prices and deposits: float64 in the auction currency
//   - Client-only annotations: keys prefixed with "_" plus the web_module namespace
package model
