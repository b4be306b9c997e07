// Package registration holds the auction registrations shared by every lot
// on the page.
//
// The Registry:
//   - Maps an auction row_id to the single registration instance for it
//   - Hands the same pointer to every lot of that auction
//   - Merges updates into that instance in place so all lots see them
//   - Never deletes entries; newer data supersedes them
package registration
