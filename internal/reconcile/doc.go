// Package reconcile merges freshly fetched lot pages into the lot
// collections held by the page.
//
// A reconciliation pass:
//   - Snapshots client-only annotations ("_" keys and web_module) by row_id
//   - Replaces matched records in place and appends new ones in fetch order
//   - Runs the after-lots hook over the whole page
//   - Points every lot at the shared auction registration
//   - Restores the snapshotted annotations
//
// Passes run to completion and are not safe for concurrent use; callers
// serialize them (see package refresh).
package reconcile
