// Package refresh keeps the lot working set current.
//
// The Refresher owns the visible window (and the optional full window)
// and mutates them only on its own event loop goroutine:
//   - Polls the lots endpoint on a timer while push is unavailable
//   - Applies push messages (lots_changed, lot_update, auction_end)
//   - Tags every fetch with a sequence number and drops stale responses
//   - Hands every applied page to an optional observer for archiving
package refresh
